package streamshard

import "strings"

// HeaderField is one name/value pair in a Header.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered, case-insensitive multimap of header fields.
//
// Unlike net/http.Header (a map[string][]string, which loses the relative
// order of different header names), Header preserves insertion order across
// names as well as duplicates of the same name. This matters for request
// replay on Alt-Svc rewrite, where the original field order must survive.
type Header struct {
	fields []HeaderField
}

// NewHeader returns an empty Header.
func NewHeader() *Header {
	return &Header{}
}

// Add appends a field, preserving any existing fields of the same name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Set removes all existing fields with name and adds a single field with
// value.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Get returns the first value for name, or "" if absent.
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name, in insertion order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Del removes all fields with name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Fields returns the fields in insertion order. The returned slice must not
// be mutated.
func (h *Header) Fields() []HeaderField {
	return h.fields
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	if h == nil {
		return NewHeader()
	}
	out := &Header{fields: make([]HeaderField, len(h.fields))}
	copy(out.fields, h.fields)
	return out
}
