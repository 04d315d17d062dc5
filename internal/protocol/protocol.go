// Package protocol defines the capability set every wire strategy (h2, h3)
// implements, and the wire-level Request shape AutoStrategy translates a
// caller-facing Request into before dispatch. Keeping Request here, rather
// than importing the root package's Request directly, is what lets h2 and
// h3 stay free of a dependency back on the package that constructs them.
package protocol

import (
	"context"
	"net/url"
	"time"

	"github.com/streamshard/streamshard/internal/chunk"
)

// Request is everything a protocol strategy needs to dispatch one attempt.
// AutoStrategy builds one of these from the caller's Request on every
// attempt, including Alt-Svc replays, so a Request here never outlives a
// single physical connection attempt.
type Request struct {
	Method      string
	URL         *url.URL
	Header      []chunk.NameValue
	Body        []byte
	ContentType string
	Timeout     time.Duration
}

// Strategy is the polymorphic protocol capability set: execute, protocol
// name, push support, and the concurrency ceiling the strategy can honor.
// H2, H3, and AutoStrategy itself (dispatching between the two) all satisfy
// this interface.
type Strategy interface {
	// Execute dials (or reuses) a connection and returns a Channel the
	// caller drains for frames. Execute itself never blocks past
	// connection setup; all I/O happens in a goroutine feeding the
	// returned Channel.
	Execute(ctx context.Context, req *Request) (*chunk.Channel, error)

	// ProtocolName identifies the strategy for logging and intelligence
	// tracking: "h2", "h3", or "auto".
	ProtocolName() string

	// SupportsPush reports whether the strategy can surface server push
	// (neither H2 nor H3 here do; both disable it at the transport level).
	SupportsPush() bool

	// MaxConcurrentStreams is the strategy's self-imposed ceiling on
	// simultaneous in-flight streams, or 0 if the ceiling is entirely
	// negotiated by the remote peer (H2's SETTINGS_MAX_CONCURRENT_STREAMS).
	MaxConcurrentStreams() int64
}
