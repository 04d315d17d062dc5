package chunk

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"
)

// frameOrderingSymbol renders a frame sequence the same way the regex
// property from spec §8 describes it: "Headers (Body)* (Trailers)? (End|Error)".
func frameOrderingSymbol(f Frame) string {
	switch f.(type) {
	case HeadersFrame:
		return "H"
	case BodyFrame:
		return "B"
	case TrailersFrame:
		return "T"
	case EndFrame:
		return "E"
	case ErrorFrame:
		return "X"
	default:
		return "?"
	}
}

func TestFrameOrderingInvariant(t *testing.T) {
	seqs := [][]Frame{
		{HeadersFrame{Status: 200}, BodyFrame{Offset: 0}, BodyFrame{Offset: 10}, EndFrame{}},
		{HeadersFrame{Status: 200}, EndFrame{}},
		{HeadersFrame{Status: 502}, ErrorFrame{Message: "boom"}},
		{HeadersFrame{Status: 200}, BodyFrame{Offset: 0}, TrailersFrame{}, EndFrame{}},
	}

	pattern := regexp.MustCompile(`^HB*T?(E|X)$`)

	for i, seq := range seqs {
		var sb strings.Builder
		for _, f := range seq {
			sb.WriteString(frameOrderingSymbol(f))
		}
		if !pattern.MatchString(sb.String()) {
			t.Errorf("sequence %d (%q) violates frame ordering invariant", i, sb.String())
		}
	}
}

func TestByteOffsetMonotonicity(t *testing.T) {
	ch := New()
	ctx := context.Background()

	go func() {
		_ = ch.Send(ctx, HeadersFrame{Status: 200})
		_ = ch.Send(ctx, BodyFrame{Bytes: []byte("abc"), Offset: 0})
		_ = ch.Send(ctx, BodyFrame{Bytes: []byte("de"), Offset: 3})
		_ = ch.Send(ctx, BodyFrame{Bytes: []byte("f"), Offset: 5, IsFinal: true})
		_ = ch.Send(ctx, EndFrame{})
		ch.Close()
	}()

	var lastOffset int64 = -1
	var lastLen int64
	for {
		f, ok := ch.Recv()
		if !ok {
			break
		}
		if b, isBody := f.(BodyFrame); isBody {
			if lastOffset >= 0 && lastOffset+lastLen > b.Offset {
				t.Fatalf("offset monotonicity violated: prev end %d > next offset %d", lastOffset+lastLen, b.Offset)
			}
			lastOffset = b.Offset
			lastLen = int64(len(b.Bytes))
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ch := New()
	ch.Close()
	ch.Close() // must not panic
}

func TestBackpressureBound(t *testing.T) {
	ch := New()
	ctx := context.Background()

	sent := 0
	done := make(chan struct{})
	go func() {
		for i := 0; i < Capacity+1; i++ {
			if err := ch.Send(ctx, BodyFrame{Offset: int64(i)}); err != nil {
				break
			}
			sent++
		}
		close(done)
	}()

	// Give the producer time to fill the buffer and block; it must not
	// spin past capacity+1 in-flight sends (§8 property 5) before the
	// first consumer read unblocks it.
	time.Sleep(50 * time.Millisecond)

	select {
	case <-done:
		t.Fatalf("producer should still be blocked after filling capacity, sent=%d", sent)
	default:
	}

	// Drain one to unblock the producer.
	ch.Recv()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("producer did not unblock after consumer drained one frame")
	}
}

func TestRecvDrainsAfterClose(t *testing.T) {
	ch := New()
	ctx := context.Background()
	_ = ch.Send(ctx, HeadersFrame{Status: 200})
	_ = ch.Send(ctx, BodyFrame{Bytes: []byte("x")})
	ch.Close()

	var got []Frame
	for {
		f, ok := ch.Recv()
		if !ok {
			break
		}
		got = append(got, f)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 buffered frames to drain after close, got %d", len(got))
	}
}
