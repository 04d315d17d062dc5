package jsontok

type frameKind int

const (
	frameObject frameKind = iota
	frameArray
)

type frameState int

const (
	objExpectKeyOrEnd frameState = iota
	objExpectColon
	objExpectValue
	objExpectCommaOrEnd
	arrExpectValueOrEnd
	arrExpectCommaOrEnd
)

type stackFrame struct {
	kind  frameKind
	state frameState
}

type subState int

const (
	subNone subState = iota
	subInString
	subInEscape
	subInUnicodeEscape
	subInNumber
	subInKeyword
)

// Tokenizer is a resumable streaming JSON lexer (C3). It never allocates
// beyond its own small fixed resumption state; string/number spans always
// refer back into the caller-owned buffer passed to Next.
//
// Callers must pass the *same growing buffer* across calls (the tokenizer
// tracks an absolute byte position into it); appending to the end is safe,
// but bytes before the tokenizer's current position must never be mutated.
type Tokenizer struct {
	stack    []stackFrame
	rootDone bool
	pos      int

	sub             subState
	subStart        int
	pendingIsKey    bool
	keyword         string
	keywordIdx      int
	unicodeHexCount int
}

// New returns a Tokenizer positioned at the start of a fresh document.
func New() *Tokenizer {
	return &Tokenizer{}
}

// Pos returns the tokenizer's current absolute position in the buffer —
// the offset up to which bytes have been fully committed to a token.
func (t *Tokenizer) Pos() int { return t.pos }

// Depth returns the current container nesting depth.
func (t *Tokenizer) Depth() int { return len(t.stack) }

// Rebase shifts the tokenizer's internal byte positions by -delta. Callers
// that compact their buffer (dropping the first delta bytes, per the
// reclamation rule in spec §4.4.5) must call Rebase with the same delta
// immediately after, so Next keeps indexing into the compacted buffer
// correctly. Rebase must never be called with delta greater than the
// tokenizer's current position.
func (t *Tokenizer) Rebase(delta int) {
	t.pos -= delta
	if t.sub != subNone {
		t.subStart -= delta
	}
}

// Next consumes bytes from buf starting at the tokenizer's saved position
// and returns the next structural token, NeedMoreInput if buf is exhausted
// before a token completes, or a *SyntaxError for malformed input. After a
// SyntaxError the tokenizer must not be reused (§4.3: "no partial success
// after an error").
func (t *Tokenizer) Next(buf []byte) (Token, error) {
	if t.sub != subNone {
		return t.resumeScalar(buf)
	}

	for t.pos < len(buf) && isWS(buf[t.pos]) {
		t.pos++
	}
	if t.pos >= len(buf) {
		return Token{Type: NeedMoreInput}, nil
	}
	c := buf[t.pos]

	if len(t.stack) == 0 {
		if t.rootDone {
			return Token{}, &SyntaxError{Offset: t.pos, Reason: "trailing data after top-level value"}
		}
		return t.scanValue(buf, c)
	}

	top := &t.stack[len(t.stack)-1]
	switch top.kind {
	case frameObject:
		switch top.state {
		case objExpectKeyOrEnd:
			if c == '}' {
				return t.closeContainer(ObjectEnd), nil
			}
			if c != '"' {
				return Token{}, &SyntaxError{t.pos, "expected string key or '}'"}
			}
			top.state = objExpectColon
			return t.scanString(buf, true)
		case objExpectColon:
			if c != ':' {
				return Token{}, &SyntaxError{t.pos, "expected ':'"}
			}
			t.pos++
			top.state = objExpectValue
			return t.Next(buf)
		case objExpectValue:
			top.state = objExpectCommaOrEnd
			return t.scanValue(buf, c)
		case objExpectCommaOrEnd:
			if c == '}' {
				return t.closeContainer(ObjectEnd), nil
			}
			if c != ',' {
				return Token{}, &SyntaxError{t.pos, "expected ',' or '}'"}
			}
			t.pos++
			top.state = objExpectKeyOrEnd
			return t.Next(buf)
		}
	case frameArray:
		switch top.state {
		case arrExpectValueOrEnd:
			if c == ']' {
				return t.closeContainer(ArrayEnd), nil
			}
			top.state = arrExpectCommaOrEnd
			return t.scanValue(buf, c)
		case arrExpectCommaOrEnd:
			if c == ']' {
				return t.closeContainer(ArrayEnd), nil
			}
			if c != ',' {
				return Token{}, &SyntaxError{t.pos, "expected ',' or ']'"}
			}
			t.pos++
			top.state = arrExpectValueOrEnd
			return t.Next(buf)
		}
	}
	return Token{}, &SyntaxError{t.pos, "internal: unreachable tokenizer state"}
}

func (t *Tokenizer) closeContainer(typ TokenType) Token {
	start := t.pos
	t.pos++
	t.stack = t.stack[:len(t.stack)-1]
	t.markIfRootComplete()
	return Token{Type: typ, Offset: start, Len: 1}
}

func (t *Tokenizer) markIfRootComplete() {
	if len(t.stack) == 0 {
		t.rootDone = true
	}
}

func (t *Tokenizer) scanValue(buf []byte, c byte) (Token, error) {
	switch {
	case c == '{':
		t.pos++
		t.stack = append(t.stack, stackFrame{kind: frameObject, state: objExpectKeyOrEnd})
		return Token{Type: ObjectStart, Offset: t.pos - 1, Len: 1}, nil
	case c == '[':
		t.pos++
		t.stack = append(t.stack, stackFrame{kind: frameArray, state: arrExpectValueOrEnd})
		return Token{Type: ArrayStart, Offset: t.pos - 1, Len: 1}, nil
	case c == '"':
		return t.scanString(buf, false)
	case c == 't' || c == 'f' || c == 'n':
		return t.scanKeyword(buf)
	case c == '-' || (c >= '0' && c <= '9'):
		return t.scanNumber(buf)
	default:
		return Token{}, &SyntaxError{t.pos, "unexpected character"}
	}
}

func (t *Tokenizer) resumeScalar(buf []byte) (Token, error) {
	switch t.sub {
	case subInString, subInEscape, subInUnicodeEscape:
		return t.continueString(buf, t.subStart, t.pendingIsKey)
	case subInNumber:
		return t.continueNumber(buf, t.subStart)
	case subInKeyword:
		return t.continueKeyword(buf, t.subStart)
	default:
		return Token{}, &SyntaxError{t.pos, "internal: invalid resume state"}
	}
}

func (t *Tokenizer) scanString(buf []byte, isKey bool) (Token, error) {
	start := t.pos
	t.pos++ // opening quote
	t.sub = subInString
	return t.continueString(buf, start, isKey)
}

func (t *Tokenizer) continueString(buf []byte, start int, isKey bool) (Token, error) {
	for t.pos < len(buf) {
		c := buf[t.pos]
		switch t.sub {
		case subInEscape:
			switch c {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
				t.pos++
				t.sub = subInString
			case 'u':
				t.pos++
				t.sub = subInUnicodeEscape
				t.unicodeHexCount = 0
			default:
				return Token{}, &SyntaxError{t.pos, "invalid escape sequence"}
			}
			continue
		case subInUnicodeEscape:
			if !isHex(c) {
				return Token{}, &SyntaxError{t.pos, "invalid \\u escape"}
			}
			t.pos++
			t.unicodeHexCount++
			if t.unicodeHexCount == 4 {
				t.sub = subInString
			}
			continue
		}

		if c == '"' {
			t.pos++
			t.sub = subNone
			tok := Token{Offset: start + 1, Len: t.pos - 1 - (start + 1)}
			if isKey {
				tok.Type = Key
			} else {
				tok.Type = Value
				tok.Kind = KindString
			}
			t.finishValue(isKey)
			return tok, nil
		}
		if c == '\\' {
			t.pos++
			t.sub = subInEscape
			continue
		}
		if c < 0x20 {
			return Token{}, &SyntaxError{t.pos, "control character in string"}
		}
		t.pos++
	}

	t.subStart = start
	t.pendingIsKey = isKey
	if t.sub == subNone {
		t.sub = subInString
	}
	return Token{Type: NeedMoreInput}, nil
}

func (t *Tokenizer) scanNumber(buf []byte) (Token, error) {
	start := t.pos
	t.sub = subInNumber
	return t.continueNumber(buf, start)
}

func (t *Tokenizer) continueNumber(buf []byte, start int) (Token, error) {
	for t.pos < len(buf) && isNumberChar(buf[t.pos]) {
		t.pos++
	}
	if t.pos >= len(buf) {
		t.subStart = start
		return Token{Type: NeedMoreInput}, nil
	}
	span := buf[start:t.pos]
	if !validNumber(span) {
		return Token{}, &SyntaxError{start, "invalid number literal"}
	}
	t.sub = subNone
	t.finishValue(false)
	return Token{Type: Value, Kind: KindNumber, Offset: start, Len: t.pos - start}, nil
}

func (t *Tokenizer) scanKeyword(buf []byte) (Token, error) {
	start := t.pos
	switch buf[t.pos] {
	case 't':
		t.keyword = "true"
	case 'f':
		t.keyword = "false"
	case 'n':
		t.keyword = "null"
	default:
		return Token{}, &SyntaxError{t.pos, "unexpected character"}
	}
	t.keywordIdx = 0
	t.sub = subInKeyword
	return t.continueKeyword(buf, start)
}

func (t *Tokenizer) continueKeyword(buf []byte, start int) (Token, error) {
	for t.pos < len(buf) && t.keywordIdx < len(t.keyword) {
		if buf[t.pos] != t.keyword[t.keywordIdx] {
			return Token{}, &SyntaxError{t.pos, "invalid literal, expected " + t.keyword}
		}
		t.pos++
		t.keywordIdx++
	}
	if t.keywordIdx < len(t.keyword) {
		t.subStart = start
		return Token{Type: NeedMoreInput}, nil
	}
	t.sub = subNone
	kind := KindBool
	if t.keyword == "null" {
		kind = KindNull
	}
	tok := Token{Type: Value, Kind: kind, Offset: start, Len: t.pos - start}
	t.finishValue(false)
	return tok, nil
}

// Finish forces completion of any scalar scan left in flight when the
// caller knows no further bytes are coming (the wire's final frame has
// arrived). A number that is a bare top-level scalar, or the last scalar in
// a stream, never sees a trailing delimiter byte that would otherwise drive
// continueNumber out of NeedMoreInput — without Finish such a value would
// sit unflushed forever. A keyword needs no delimiter (Next returns it as
// soon as its last letter arrives); Finish reports a keyword still missing
// letters as a truncated literal. Finish must only be called once Next has
// returned NeedMoreInput for the last time; calling it while more bytes
// are still expected would truncate a value that was only waiting on more
// input.
func (t *Tokenizer) Finish(buf []byte) (Token, error) {
	switch t.sub {
	case subNone:
		return Token{Type: NeedMoreInput}, nil
	case subInNumber:
		start := t.subStart
		span := buf[start:t.pos]
		if !validNumber(span) {
			return Token{}, &SyntaxError{start, "invalid number literal"}
		}
		t.sub = subNone
		t.finishValue(false)
		return Token{Type: Value, Kind: KindNumber, Offset: start, Len: t.pos - start}, nil
	case subInKeyword:
		return Token{}, &SyntaxError{t.pos, "truncated literal, expected " + t.keyword}
	case subInString, subInEscape, subInUnicodeEscape:
		return Token{}, &SyntaxError{t.pos, "unterminated string"}
	default:
		return Token{Type: NeedMoreInput}, nil
	}
}

func (t *Tokenizer) finishValue(isKey bool) {
	if isKey {
		return
	}
	t.markIfRootComplete()
}

func isWS(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isNumberChar(c byte) bool {
	switch c {
	case '-', '+', '.', 'e', 'E', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

func validNumber(b []byte) bool {
	i, n := 0, len(b)
	if i < n && b[i] == '-' {
		i++
	}
	if i >= n {
		return false
	}
	if b[i] == '0' {
		i++
	} else if b[i] >= '1' && b[i] <= '9' {
		i++
		for i < n && b[i] >= '0' && b[i] <= '9' {
			i++
		}
	} else {
		return false
	}
	if i < n && b[i] == '.' {
		i++
		if i >= n || !(b[i] >= '0' && b[i] <= '9') {
			return false
		}
		for i < n && b[i] >= '0' && b[i] <= '9' {
			i++
		}
	}
	if i < n && (b[i] == 'e' || b[i] == 'E') {
		i++
		if i < n && (b[i] == '+' || b[i] == '-') {
			i++
		}
		if i >= n || !(b[i] >= '0' && b[i] <= '9') {
			return false
		}
		for i < n && b[i] >= '0' && b[i] <= '9' {
			i++
		}
	}
	return i == n
}
