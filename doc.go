// Package streamshard is a streaming HTTP/2 and HTTP/3 client engine built
// around an RFC 9535 streaming JSONPath evaluator: it matches and yields
// JSON records out of a response body as they arrive on the wire, without
// ever buffering the whole response.
//
// # Basic Usage
//
// Build an Engine once and reuse it across requests; it owns the
// connection pools and per-origin protocol intelligence:
//
//	engine := streamshard.NewEngine()
//
//	req := &streamshard.Request{
//	    Method: "GET",
//	    URL:    mustParseURL("https://example.com/events"),
//	    Header: streamshard.NewHeader(),
//	}
//
//	resp, err := engine.Execute(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer resp.Close()
//
//	header, status, _ := resp.Header()
//	fmt.Println("status:", status, "content-type:", header.Get("Content-Type"))
//
//	for {
//	    v, err := resp.Next()
//	    if errors.Is(err, streamshard.Done) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(string(v.([]byte)))
//	}
//
// # Matching records with a compiled path
//
// Compile a JSONPath expression once and pass it with WithPath; Next then
// yields one json.RawMessage per matched record instead of raw body
// chunks:
//
//	prog, err := jsonpath.Compile("$.items[*]")
//	if err != nil {
//	    return err
//	}
//	resp, err := engine.Execute(ctx, req, streamshard.WithPath(prog))
//
// # Protocol selection
//
// By default Execute lets AutoStrategy pick HTTP/2 or HTTP/3 per origin
// and fall back across Alt-Svc endpoints and the other baseline protocol
// on failure. WithProtocolHint (or Request.ProtocolHint) pins a single
// call to one protocol, bypassing that decision policy entirely.
//
// # Error Handling
//
// Failures from Execute and from reading a ResponseStream surface as an
// *EngineError carrying a Kind from the package's failure taxonomy (a
// closed stream reports the sentinel ErrClosed instead, and
// jsonpath.Compile reports a *jsonpath.CompileError):
//
//	var ee *streamshard.EngineError
//	if errors.As(err, &ee) {
//	    fmt.Println("kind:", ee.Kind, "origin:", ee.Origin)
//	}
package streamshard
