package streamshard

import (
	"errors"
	"fmt"
)

// Kind classifies an EngineError per the error taxonomy of §7.
type Kind int

const (
	// KindInvalidExpression: JSONPath syntactically malformed or out of
	// I-JSON range. Surfaces synchronously, before any I/O.
	KindInvalidExpression Kind = iota
	// KindInvalidRequest: bad URL, unsupported scheme, body too large.
	// Surfaces synchronously, before any I/O.
	KindInvalidRequest
	// KindConnectFailed: transport-level failure to establish a session.
	KindConnectFailed
	// KindTLSFailed: certificate invalid, hostname mismatch, revoked.
	KindTLSFailed
	// KindProtocolError: HTTP/2 or HTTP/3 framing or stream error.
	KindProtocolError
	// KindTimeout: request deadline exceeded.
	KindTimeout
	// KindMalformedJSON: tokenizer rejected a byte.
	KindMalformedJSON
	// KindRecordTooLarge: a record span exceeded the configured cap.
	KindRecordTooLarge
	// KindTooDeep: JSON nesting exceeded the configured cap.
	KindTooDeep
	// KindDeserializationError: a record was well-formed JSON but not the
	// requested type. Per-record; does not terminate the stream.
	KindDeserializationError
	// KindCancelled: the consumer dropped the response. No downstream
	// frame is emitted for this kind; producers exit silently.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidExpression:
		return "invalid_expression"
	case KindInvalidRequest:
		return "invalid_request"
	case KindConnectFailed:
		return "connect_failed"
	case KindTLSFailed:
		return "tls_failed"
	case KindProtocolError:
		return "protocol_error"
	case KindTimeout:
		return "timeout"
	case KindMalformedJSON:
		return "malformed_json"
	case KindRecordTooLarge:
		return "record_too_large"
	case KindTooDeep:
		return "too_deep"
	case KindDeserializationError:
		return "deserialization_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsProtocolFailure reports whether this kind counts as a protocol failure
// for intelligence tracking (§7): ConnectFailed, TLSFailed, ProtocolError,
// and Timeout do; MalformedJSON, DeserializationError, and 4xx statuses do
// not.
func (k Kind) IsProtocolFailure() bool {
	switch k {
	case KindConnectFailed, KindTLSFailed, KindProtocolError, KindTimeout:
		return true
	default:
		return false
	}
}

// EngineError wraps an error with the operation and origin context it
// failed under, mirroring the teacher's StreamError shape.
type EngineError struct {
	// Op names the failing operation. Execute and ResponseStream both
	// report "execute".
	Op string
	// Kind classifies the failure per the §7 taxonomy.
	Kind Kind
	// Origin is the scheme+host+port the request targeted, if known.
	Origin string
	// Err is the underlying error.
	Err error
}

func (e *EngineError) Error() string {
	if e.Origin != "" {
		return fmt.Sprintf("streamshard: %s %s (%s): %v", e.Op, e.Origin, e.Kind, e.Err)
	}
	return fmt.Sprintf("streamshard: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func newEngineError(op string, kind Kind, origin string, err error) *EngineError {
	return &EngineError{Op: op, Kind: kind, Origin: origin, Err: err}
}

// Sentinel errors for common conditions, checked with errors.Is.
var (
	// Done is returned by iterators when iteration completes cleanly.
	Done = errors.New("streamshard: no more records")

	// ErrClosed indicates an operation on an already-closed ResponseStream.
	ErrClosed = errors.New("streamshard: response stream already closed")

	// ErrBodyTooLarge indicates the request body accumulation cap (§5,
	// 100 MiB default) was exceeded.
	ErrBodyTooLarge = errors.New("streamshard: request body exceeds buffering cap")

	// ErrUnsupportedScheme indicates a URL scheme outside {http, https}.
	ErrUnsupportedScheme = errors.New("streamshard: unsupported URL scheme")
)
