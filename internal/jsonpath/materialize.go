package jsonpath

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/streamshard/streamshard/internal/jsontok"
)

// materialize builds a Node tree from a byte span that is known to contain
// one complete JSON value (a closed filter candidate). It drives its own
// private Tokenizer rather than reusing the evaluator's, since the
// evaluator's tokenizer must keep advancing past the span.
func materialize(span []byte) (*Node, error) {
	tok := jsontok.New()
	tk, err := tok.Next(span)
	if err != nil {
		return nil, err
	}
	if tk.Type == jsontok.NeedMoreInput {
		return nil, fmt.Errorf("jsonpath: incomplete candidate span")
	}
	return buildNode(tok, span, tk)
}

func buildNode(tok *jsontok.Tokenizer, buf []byte, tk jsontok.Token) (*Node, error) {
	switch tk.Type {
	case jsontok.ObjectStart:
		n := &Node{Kind: NodeObject}
		for {
			kt, err := tok.Next(buf)
			if err != nil {
				return nil, err
			}
			if kt.Type == jsontok.ObjectEnd {
				return n, nil
			}
			if kt.Type != jsontok.Key {
				return nil, fmt.Errorf("jsonpath: expected object key while materializing")
			}
			name := decodeString(buf[kt.Offset : kt.Offset+kt.Len])
			vt, err := tok.Next(buf)
			if err != nil {
				return nil, err
			}
			val, err := buildNode(tok, buf, vt)
			if err != nil {
				return nil, err
			}
			n.Members = append(n.Members, NodeMember{Name: name, Value: val})
		}
	case jsontok.ArrayStart:
		n := &Node{Kind: NodeArray}
		for {
			et, err := tok.Next(buf)
			if err != nil {
				return nil, err
			}
			if et.Type == jsontok.ArrayEnd {
				return n, nil
			}
			val, err := buildNode(tok, buf, et)
			if err != nil {
				return nil, err
			}
			n.Elems = append(n.Elems, val)
		}
	case jsontok.Value:
		switch tk.Kind {
		case jsontok.KindString:
			return &Node{Kind: NodeString, Str: decodeString(buf[tk.Offset : tk.Offset+tk.Len])}, nil
		case jsontok.KindNumber:
			f, _ := strconv.ParseFloat(string(buf[tk.Offset:tk.Offset+tk.Len]), 64)
			return &Node{Kind: NodeNumber, Num: f}, nil
		case jsontok.KindBool:
			return &Node{Kind: NodeBool, Bool: buf[tk.Offset] == 't'}, nil
		case jsontok.KindNull:
			return &Node{Kind: NodeNull}, nil
		}
	}
	return nil, fmt.Errorf("jsonpath: unexpected token while materializing candidate")
}

// decodeString unescapes a JSON string span per RFC 8259 §7. It is only
// called for keys/strings that feed comparisons or path resolution; record
// bytes handed to the deserializer (C5) are never decoded here.
func decodeString(raw []byte) string {
	hasEscape := false
	for _, c := range raw {
		if c == '\\' {
			hasEscape = true
			break
		}
	}
	if !hasEscape {
		return string(raw)
	}

	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(raw) {
			break
		}
		switch raw[i] {
		case '"':
			out = append(out, '"')
		case '\\':
			out = append(out, '\\')
		case '/':
			out = append(out, '/')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'u':
			if i+4 < len(raw) {
				v, err := strconv.ParseUint(string(raw[i+1:i+5]), 16, 32)
				if err == nil {
					out = utf8.AppendRune(out, rune(v))
					i += 4
				}
			}
		}
	}
	return string(out)
}
