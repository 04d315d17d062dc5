package streamshard

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/streamshard/streamshard/internal/chunk"
	"github.com/streamshard/streamshard/internal/intelligence"
	"github.com/streamshard/streamshard/internal/protocol"
	"github.com/streamshard/streamshard/internal/protocol/h3"
	"github.com/streamshard/streamshard/internal/telemetry/log"
)

// AutoStrategy implements the six-step decision policy of §4.9: try the
// origin's preferred protocol, fall back across any advertised Alt-Svc
// endpoints, and as a last resort try the other baseline protocol once.
//
// h2/h3 are held as the protocol.Strategy interface rather than concrete
// *h2.Strategy/*h3.Strategy so tests can substitute fakes without dialing
// real connections; production callers pass the concrete strategies, which
// satisfy the interface directly.
type AutoStrategy struct {
	h2     protocol.Strategy
	h3     protocol.Strategy
	table  *intelligence.Table
	logger *zap.Logger
}

// NewAutoStrategy assembles the strategy from its protocol and intelligence
// collaborators. A nil logger falls back to the package default.
func NewAutoStrategy(h2s, h3s protocol.Strategy, table *intelligence.Table, logger *zap.Logger) *AutoStrategy {
	if logger == nil {
		logger = log.Default()
	}
	return &AutoStrategy{h2: h2s, h3: h3s, table: table, logger: logger}
}

func (a *AutoStrategy) ProtocolName() string { return "auto" }

func (a *AutoStrategy) SupportsPush() bool { return false }

func (a *AutoStrategy) MaxConcurrentStreams() int64 { return a.h3.MaxConcurrentStreams() }

func (a *AutoStrategy) strategyFor(proto intelligence.Protocol) protocol.Strategy {
	if proto == intelligence.H2 {
		return a.h2
	}
	return a.h3
}

func other(proto intelligence.Protocol) intelligence.Protocol {
	if proto == intelligence.H2 {
		return intelligence.H3
	}
	return intelligence.H2
}

func originOf(u *url.URL) intelligence.Origin {
	port := u.Port()
	p := 0
	if port != "" {
		p, _ = strconv.Atoi(port)
	} else if u.Scheme == "https" {
		p = 443
	} else {
		p = 80
	}
	return intelligence.Origin{Scheme: u.Scheme, Host: u.Hostname(), Port: p}
}

func toWireRequest(req *Request) *protocol.Request {
	var ct string
	var body []byte
	if req.Body != nil {
		ct = req.Body.ContentType()
		b, err := req.Body.Reader()
		if err == nil {
			body = b
		}
	}
	var header []chunk.NameValue
	if req.Header != nil {
		for _, f := range req.Header.Fields() {
			header = append(header, chunk.NameValue{Name: f.Name, Value: f.Value})
		}
	}
	return &protocol.Request{
		Method:      req.Method,
		URL:         req.URL,
		Header:      header,
		Body:        body,
		ContentType: ct,
		Timeout:     req.Timeout,
	}
}

// Execute runs the §4.9 decision policy and returns a Channel carrying the
// winning attempt's frames. Execute never blocks past spawning its driving
// goroutine.
func (a *AutoStrategy) Execute(ctx context.Context, req *Request) (*chunk.Channel, error) {
	out := chunk.New()
	go a.run(ctx, req, out)
	return out, nil
}

func (a *AutoStrategy) run(ctx context.Context, req *Request, out *chunk.Channel) {
	defer out.Close()
	origin := originOf(req.URL)

	// Step 1: the loopback-plaintext dispatch rule excludes H3 entirely.
	if h3.Excluded(req.URL) {
		_, _, frames, _ := a.attempt(ctx, a.h2, req, out)
		forward(ctx, frames, out)
		return
	}

	// Step 2+3: ask intelligence, execute, verify.
	preferred := a.table.PreferredProtocol(origin)
	log.ProtocolDecision(a.logger, originString(origin), preferred.String())
	verified, headers, frames, attemptErr := a.attempt(ctx, a.strategyFor(preferred), req, out)
	if verified {
		a.table.TrackSuccess(origin, preferred)
		a.recordAltSvc(origin, headers)
		return
	}

	// Step 4: failure.
	a.table.TrackFailure(origin, preferred)
	log.ProtocolFallback(a.logger, originString(origin), preferred.String(), "alt-svc", attemptErr)

	// Step 5: iterate Alt-Svc endpoints in insertion order.
	for _, ep := range a.table.AltSvcEndpoints(origin) {
		altProto, ok := protocolFromToken(ep.Protocol)
		if !ok {
			continue
		}
		rewritten := req.WithURL(rewriteURL(req.URL, ep))
		epVerified, epHeaders, epFrames, _ := a.attempt(ctx, a.strategyFor(altProto), rewritten, out)
		if epVerified {
			a.table.SetEndpointStatus(origin, ep.Protocol, ep.Host, ep.Port, intelligence.Valid)
			a.table.TrackSuccess(origin, altProto)
			a.recordAltSvc(origin, epHeaders)
			return
		}
		a.table.SetEndpointStatus(origin, ep.Protocol, ep.Host, ep.Port, intelligence.Invalid)
		a.table.TrackFailure(origin, altProto)
		frames = epFrames
	}

	// Step 6: one try at the other baseline protocol, if intelligence
	// permits it.
	fallback := other(preferred)
	if a.table.ShouldRetry(origin, fallback) {
		fallbackVerified, fallbackHeaders, fallbackFrames, _ := a.attempt(ctx, a.strategyFor(fallback), req, out)
		if fallbackVerified {
			a.table.TrackSuccess(origin, fallback)
			a.recordAltSvc(origin, fallbackHeaders)
			return
		}
		a.table.TrackFailure(origin, fallback)
		forward(ctx, fallbackFrames, out)
		return
	}

	forward(ctx, frames, out)
}

// attempt executes req against strat and streams its Headers/Body/Trailers
// frames straight onto out as soon as verify's §4.9.1 condition is
// satisfied by the frames seen so far — decidable once Headers arrives
// (non-5xx-proxy status), or, for H3, once either a body byte or an
// explicit content-length:0 is known. Frames seen before that point are
// buffered only long enough to decide; once live, every further frame goes
// straight to out without ever sitting in memory. An attempt that never
// verifies (fails outright, or the wire closes before verification)
// returns its buffered frames unsent so the caller can try the next
// endpoint or, if nothing is left to try, forward them itself.
//
// headers is returned alongside the verdict because once an attempt goes
// live its HeadersFrame has already been handed to out and is no longer
// available in any returned slice — callers that need it (Alt-Svc
// bookkeeping) must take it from here.
func (a *AutoStrategy) attempt(ctx context.Context, strat protocol.Strategy, req *Request, out *chunk.Channel) (verified bool, headers *chunk.HeadersFrame, unverifiedFrames []chunk.Frame, lastErr error) {
	ch, err := strat.Execute(ctx, toWireRequest(req))
	if err != nil {
		return false, nil, []chunk.Frame{chunk.ErrorFrame{Message: err.Error()}}, err
	}

	proto := strat.ProtocolName()
	var pending []chunk.Frame
	live := false

	for {
		f, ok := ch.Recv()
		if !ok {
			if live {
				return true, headers, nil, lastErr
			}
			return false, headers, pending, lastErr
		}

		if hf, isHeaders := f.(chunk.HeadersFrame); isHeaders && headers == nil {
			h := hf
			headers = &h
		}

		if live {
			_ = out.Send(ctx, f)
			switch v := f.(type) {
			case chunk.EndFrame:
				return true, headers, nil, lastErr
			case chunk.ErrorFrame:
				return true, headers, nil, errString(v.Message)
			}
			continue
		}

		pending = append(pending, f)
		switch v := f.(type) {
		case chunk.EndFrame:
			return false, headers, pending, lastErr
		case chunk.ErrorFrame:
			return false, headers, pending, errString(v.Message)
		}
		if verify(proto, pending) {
			for _, bf := range pending {
				_ = out.Send(ctx, bf)
			}
			pending = nil
			live = true
		}
	}
}

// verify implements §4.9.1's success-verification rule over the frames of
// an attempt seen so far. It never requires a terminal frame: the
// condition is decidable as soon as Headers arrives (non-5xx-proxy
// status), or, for H3, once either a body byte or an explicit
// content-length:0 header is known — exactly the point at which attempt
// can start streaming the rest of the response live.
func verify(proto string, frames []chunk.Frame) bool {
	var headers *chunk.HeadersFrame
	sawBody := false
	for _, f := range frames {
		switch v := f.(type) {
		case chunk.HeadersFrame:
			h := v
			headers = &h
		case chunk.BodyFrame:
			if len(v.Bytes) > 0 {
				sawBody = true
			}
		}
	}
	if headers == nil {
		return false
	}
	if isProxyFailureStatus(headers.Status) {
		return false
	}
	if proto == "h3" && !sawBody {
		if headerValue(headers.Header, "content-length") != "0" {
			return false
		}
	}
	return true
}

// isProxyFailureStatus reports whether status is one of the protocol-proxy
// codes that signal the front-end failed to reach the origin (§4.9.1):
// these count as connection failures for intelligence even though an
// application 4xx counts as a connection success.
func isProxyFailureStatus(status int) bool {
	switch status {
	case 502, 503, 504:
		return true
	default:
		return false
	}
}

func headerValue(fields []chunk.NameValue, name string) string {
	for _, f := range fields {
		if eqFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (a *AutoStrategy) recordAltSvc(origin intelligence.Origin, headers *chunk.HeadersFrame) {
	if headers == nil {
		return
	}
	if v := headerValue(headers.Header, "alt-svc"); v != "" {
		a.table.SetAltSvc(origin, v)
	}
}

func protocolFromToken(tok string) (intelligence.Protocol, bool) {
	switch tok {
	case "h2":
		return intelligence.H2, true
	case "h3":
		return intelligence.H3, true
	default:
		return 0, false
	}
}

// rewriteURL replaces u's host and port with ep's per §4.9 step 5: an empty
// Host in the endpoint means "same host as origin", only the port changes.
func rewriteURL(u *url.URL, ep intelligence.AltSvcEndpoint) *url.URL {
	clone := *u
	host := ep.Host
	if host == "" {
		host = u.Hostname()
	}
	clone.Host = host + ":" + strconv.Itoa(ep.Port)
	return &clone
}

func originString(o intelligence.Origin) string {
	return o.Scheme + "://" + o.Host + ":" + strconv.Itoa(o.Port)
}

type errString string

func (e errString) Error() string { return string(e) }

// forward replays frames onto out in order, stopping early if the consumer
// drops the channel.
func forward(ctx context.Context, frames []chunk.Frame, out *chunk.Channel) {
	for _, f := range frames {
		if err := out.Send(ctx, f); err != nil {
			return
		}
	}
}
