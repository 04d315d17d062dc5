package streamshard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/streamshard/streamshard/internal/chunk"
	"github.com/streamshard/streamshard/internal/jsonpath"
)

func newTestChannel(frames ...chunk.Frame) *chunk.Channel {
	ch := chunk.New()
	go func() {
		ctx := context.Background()
		for _, f := range frames {
			ch.Send(ctx, f)
		}
		ch.Close()
	}()
	return ch
}

func TestResponseStreamHeaderBlocksUntilHeadersFrame(t *testing.T) {
	ch := newTestChannel(
		chunk.HeadersFrame{Status: 200, Header: []chunk.NameValue{{Name: "Content-Type", Value: "application/json"}}},
		chunk.BodyFrame{Bytes: []byte(`{"a":1}`), IsFinal: true},
		chunk.EndFrame{},
	)
	rs := newResponseStream(func() {}, ch, nil, resourceLimits{})
	header, status, err := rs.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}
	if got := header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestResponseStreamRawModeYieldsBodyBytes(t *testing.T) {
	ch := newTestChannel(
		chunk.HeadersFrame{Status: 200},
		chunk.BodyFrame{Bytes: []byte("hello "), IsFinal: false},
		chunk.BodyFrame{Bytes: []byte("world"), IsFinal: true},
		chunk.EndFrame{},
	)
	rs := newResponseStream(func() {}, ch, nil, resourceLimits{})

	var got []byte
	for {
		v, err := rs.Next()
		if errors.Is(err, Done) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, v.([]byte)...)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestResponseStreamNextWithoutHeaderStillCapturesIt(t *testing.T) {
	ch := newTestChannel(
		chunk.HeadersFrame{Status: 204},
		chunk.EndFrame{},
	)
	rs := newResponseStream(func() {}, ch, nil, resourceLimits{})

	_, err := rs.Next()
	if !errors.Is(err, Done) {
		t.Fatalf("expected Done with no body, got %v", err)
	}
	_, status, _ := rs.Header()
	if status != 204 {
		t.Fatalf("status = %d, want 204", status)
	}
}

func TestResponseStreamPathModeYieldsMatchedRecords(t *testing.T) {
	prog, err := jsonpath.Compile("$.items[*]")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch := newTestChannel(
		chunk.HeadersFrame{Status: 200},
		chunk.BodyFrame{Bytes: []byte(`{"items":[{"id":1},{"id":2}]}`), IsFinal: true},
		chunk.EndFrame{},
	)
	rs := newResponseStream(func() {}, ch, prog, resourceLimits{})

	var records []string
	for {
		v, err := rs.Next()
		if errors.Is(err, Done) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		raw, ok := v.(json.RawMessage)
		if !ok {
			t.Fatalf("expected json.RawMessage, got %T", v)
		}
		records = append(records, string(raw))
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 matched records, got %d: %v", len(records), records)
	}
}

func TestResponseStreamErrorFrameSurfacesAsEngineError(t *testing.T) {
	ch := newTestChannel(
		chunk.HeadersFrame{Status: 200},
		chunk.ErrorFrame{Message: "connection reset"},
	)
	rs := newResponseStream(func() {}, ch, nil, resourceLimits{})
	_, err := rs.Next()
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EngineError, got %v", err)
	}
	if ee.Kind != KindProtocolError {
		t.Fatalf("kind = %v, want KindProtocolError", ee.Kind)
	}
}

// TestResponseStreamMalformedJSONMidStreamYieldsOneRecordThenTerminal
// mirrors seed scenario 3: a body frame carries one complete matched
// record followed by invalid JSON. Next must yield that record, then a
// terminal KindMalformedJSON error, with no further records delivered.
func TestResponseStreamMalformedJSONMidStreamYieldsOneRecordThenTerminal(t *testing.T) {
	prog, err := jsonpath.Compile("$.a")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch := newTestChannel(
		chunk.HeadersFrame{Status: 200},
		chunk.BodyFrame{Bytes: []byte(`{"a":1, "b": tru}`), IsFinal: true},
		chunk.EndFrame{},
	)
	rs := newResponseStream(func() {}, ch, prog, resourceLimits{})

	v, err := rs.Next()
	if err != nil {
		t.Fatalf("expected the first record before the malformed point, got error: %v", err)
	}
	if string(v.(json.RawMessage)) != "1" {
		t.Fatalf("expected record value 1, got %q", v)
	}

	_, err = rs.Next()
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected a terminal *EngineError, got %v", err)
	}
	if ee.Kind != KindMalformedJSON {
		t.Fatalf("kind = %v, want KindMalformedJSON", ee.Kind)
	}

	if _, err := rs.Next(); !errors.As(err, &ee) {
		t.Fatalf("expected the terminal error to persist across further Next calls")
	}
}

// TestResponseStreamFinalBareScalarBodyIsFlushed covers the case the
// wire never delimits: a body whose entire content is a single scalar
// (no trailing byte after it) must still surface as a record once the
// final BodyFrame's IsFinal arrives, not be dropped by a tokenizer parked
// forever in its number-scanning substate.
func TestResponseStreamFinalBareScalarBodyIsFlushed(t *testing.T) {
	prog, err := jsonpath.Compile("$")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch := newTestChannel(
		chunk.HeadersFrame{Status: 200},
		chunk.BodyFrame{Bytes: []byte(`42`), IsFinal: true},
		chunk.EndFrame{},
	)
	rs := newResponseStream(func() {}, ch, prog, resourceLimits{})

	v, err := rs.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(v.(json.RawMessage)) != "42" {
		t.Fatalf("expected record value 42, got %q", v)
	}

	if _, err := rs.Next(); !errors.Is(err, Done) {
		t.Fatalf("expected Done after the flushed scalar, got %v", err)
	}
}

func TestResponseStreamClosedStreamReturnsErrClosed(t *testing.T) {
	rs := newResponseStream(func() {}, chunk.New(), nil, resourceLimits{})
	if err := rs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := rs.Next(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Next after Close, got %v", err)
	}
	if _, _, err := rs.Header(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Header after Close, got %v", err)
	}
}

func TestResponseStreamCloseCancelsContext(t *testing.T) {
	cancelled := false
	rs := newResponseStream(func() { cancelled = true }, chunk.New(), nil, resourceLimits{})
	if err := rs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !cancelled {
		t.Fatalf("expected Close to invoke the cancel func")
	}
}
