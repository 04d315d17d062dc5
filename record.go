package streamshard

import (
	"encoding/json"
	"fmt"
)

// DeserializeError wraps a failed record conversion with the byte offset
// the failure occurred at, relative to the record's own span rather than
// the response body it came from.
type DeserializeError struct {
	// RecordOffset is the byte offset within the record span, not the
	// response body.
	RecordOffset int64
	Err          error
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("streamshard: deserialize record at offset %d: %v", e.RecordOffset, e.Err)
}

func (e *DeserializeError) Unwrap() error { return e.Err }

// Deserialize converts one delimited record byte span into T. It is
// stateless and reentrant, and never reads outside span — the same
// guarantee the evaluator gives the span in the first place.
func Deserialize[T any](span []byte) (T, error) {
	var out T
	if err := json.Unmarshal(span, &out); err != nil {
		offset := int64(0)
		if se, ok := err.(*json.SyntaxError); ok {
			offset = se.Offset
		}
		return out, &DeserializeError{RecordOffset: offset, Err: err}
	}
	return out, nil
}
