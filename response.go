package streamshard

import (
	"context"
	"encoding/json"

	"github.com/streamshard/streamshard/internal/chunk"
	"github.com/streamshard/streamshard/internal/jsonpath"
)

// ResponseStream is the caller-facing handle returned by Execute: a header
// snapshot available as soon as the first HeadersFrame arrives, followed
// by the teacher's iterator idiom (Next/errors.Is(err, Done)) over either
// raw body bytes (no path compiled) or matched record spans (WithPath).
//
// A ResponseStream is not safe for concurrent use — exactly one goroutine
// should call Header/Next/Close, matching the single-consumer contract of
// the underlying chunk.Channel.
type ResponseStream struct {
	ch     *chunk.Channel
	eval   *jsonpath.Evaluator
	cancel context.CancelFunc

	status         int
	header         *Header
	headerCaptured bool

	queue  []jsonpath.Record
	done   bool
	closed bool
	err    error
}

// resourceLimits carries the §5 evaluator-owned ceilings from Engine's
// config down to the Evaluator a ResponseStream constructs, without
// response.go needing to import internal/config itself.
type resourceLimits struct {
	maxRecordSpanBytes int64
	maxDepth           int
	maxRetainedBytes   int64
}

func newResponseStream(cancel context.CancelFunc, ch *chunk.Channel, path *jsonpath.Program, limits resourceLimits) *ResponseStream {
	rs := &ResponseStream{ch: ch, cancel: cancel, header: NewHeader()}
	if path != nil {
		eval := jsonpath.New(path)
		if limits.maxRecordSpanBytes > 0 {
			eval.SetMaxRecordSpan(limits.maxRecordSpanBytes)
		}
		if limits.maxDepth > 0 {
			eval.SetDepthLimit(limits.maxDepth)
		}
		if limits.maxRetainedBytes > 0 {
			eval.SetMaxRetainedBytes(limits.maxRetainedBytes)
		}
		rs.eval = eval
	}
	return rs
}

// Header blocks until the response's status line and header block have
// been received, or the stream ended before any arrived.
func (rs *ResponseStream) Header() (*Header, int, error) {
	if rs.closed {
		return rs.header, rs.status, ErrClosed
	}
	for !rs.headerCaptured && !rs.done {
		f, ok := rs.ch.Recv()
		if !ok {
			rs.done = true
			break
		}
		rs.handleNonBodyFrame(f)
	}
	return rs.header, rs.status, rs.err
}

// Next returns the next value: json.RawMessage for a matched record when a
// path was compiled, or []byte for a raw body chunk otherwise. It returns
// an error satisfying errors.Is(err, Done) once the stream ends cleanly.
func (rs *ResponseStream) Next() (any, error) {
	if rs.closed {
		return nil, ErrClosed
	}
	for {
		if len(rs.queue) > 0 {
			rec := rs.queue[0]
			rs.queue = rs.queue[1:]
			return json.RawMessage(rec.Value), nil
		}
		if rs.err != nil {
			return nil, rs.err
		}
		if rs.done {
			return nil, Done
		}
		f, ok := rs.ch.Recv()
		if !ok {
			rs.done = true
			rs.flushEvaluator()
			continue
		}
		switch v := f.(type) {
		case chunk.BodyFrame:
			if rs.eval == nil {
				return v.Bytes, nil
			}
			// Records delimited before a failure are queued ahead of it.
			recs, err := rs.eval.Feed(v.Bytes)
			rs.queue = append(rs.queue, recs...)
			if err != nil {
				rs.err = newEngineError("execute", kindForEvalError(err), "", err)
				rs.done = true
				continue
			}
			if v.IsFinal {
				rs.flushEvaluator()
			}
		default:
			rs.handleNonBodyFrame(f)
			if rs.err != nil {
				return nil, rs.err
			}
		}
	}
}

// flushEvaluator forces completion of any number scan the evaluator left
// in flight once the stream is known to have ended (a final BodyFrame or
// EndFrame): such a number never sees a trailing delimiter byte to drive
// it out of the tokenizer's resumption state on its own, and a keyword
// still missing letters becomes an error. Safe to call more than once; a
// second call finds nothing
// pending and is a no-op.
func (rs *ResponseStream) flushEvaluator() {
	if rs.eval == nil {
		return
	}
	recs, err := rs.eval.Close()
	if err != nil {
		rs.err = newEngineError("execute", kindForEvalError(err), "", err)
		return
	}
	rs.queue = append(rs.queue, recs...)
}

func (rs *ResponseStream) handleNonBodyFrame(f chunk.Frame) {
	switch v := f.(type) {
	case chunk.HeadersFrame:
		if !rs.headerCaptured {
			rs.status = v.Status
			rs.header = headerFromFields(v.Header)
			rs.headerCaptured = true
		}
	case chunk.TrailersFrame:
		// Trailers carry no evaluator-visible semantics in this version;
		// a future Trailers() accessor would read from here.
	case chunk.EndFrame:
		rs.done = true
		rs.flushEvaluator()
	case chunk.ErrorFrame:
		rs.err = newEngineError("execute", KindProtocolError, "", errString(v.Message))
		rs.done = true
	}
}

// Close releases the stream, cancelling the request's context so the
// producer strategy observes shutdown on its next send attempt instead of
// blocking for a server acknowledgement (§5 Cancellation).
func (rs *ResponseStream) Close() error {
	if rs.closed {
		return nil
	}
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.done = true
	rs.closed = true
	return nil
}

func headerFromFields(fields []chunk.NameValue) *Header {
	h := NewHeader()
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

func kindForEvalError(err error) Kind {
	switch err.(type) {
	case *jsonpath.DepthOverflowError:
		return KindTooDeep
	case *jsonpath.RecordSpanTooLargeError:
		return KindRecordTooLarge
	case *jsonpath.RetainedBufferTooLargeError:
		return KindRecordTooLarge
	default:
		return KindMalformedJSON
	}
}
