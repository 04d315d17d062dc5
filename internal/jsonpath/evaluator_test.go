package jsonpath

import (
	"testing"
)

func feedAll(t *testing.T, ev *Evaluator, body string, chunkSize int) []Record {
	t.Helper()
	var all []Record
	b := []byte(body)
	for i := 0; i < len(b); i += chunkSize {
		end := i + chunkSize
		if end > len(b) {
			end = len(b)
		}
		recs, err := ev.Feed(b[i:end])
		if err != nil {
			t.Fatalf("unexpected evaluator error: %v", err)
		}
		all = append(all, recs...)
	}
	return all
}

func mustCompile(t *testing.T, expr string) *Program {
	t.Helper()
	p, err := Compile(expr)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", expr, err)
	}
	return p
}

func TestEvaluatorSimpleMemberSeed(t *testing.T) {
	body := `{"store":{"book":[{"title":"A"},{"title":"B"}]}}`
	prog := mustCompile(t, "$.store.book[*].title")
	ev := New(prog)
	recs := feedAll(t, ev, body, 7)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(recs), recs)
	}
	if string(recs[0].Value) != `"A"` || string(recs[1].Value) != `"B"` {
		t.Fatalf("unexpected record values: %q %q", recs[0].Value, recs[1].Value)
	}
}

func TestEvaluatorWholeDocument(t *testing.T) {
	body := `{"a":1,"b":[1,2,3]}`
	prog := mustCompile(t, "$")
	ev := New(prog)
	recs := feedAll(t, ev, body, 5)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record for whole document, got %d", len(recs))
	}
	if string(recs[0].Value) != body {
		t.Fatalf("expected whole body as record, got %q", recs[0].Value)
	}
}

// TestEvaluatorCloseFlushesTrailingScalar covers a bare top-level scalar
// body: its final byte is also the document's final byte, so no
// delimiter ever arrives to drive the tokenizer out of its number-scan
// state on its own. Feed alone must yield nothing; Close must flush it.
func TestEvaluatorCloseFlushesTrailingScalar(t *testing.T) {
	prog := mustCompile(t, "$")
	ev := New(prog)
	recs, err := ev.Feed([]byte("42"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records before Close, got %+v", recs)
	}
	recs, err = ev.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(recs) != 1 || string(recs[0].Value) != "42" {
		t.Fatalf("expected Close to flush the trailing scalar, got %+v", recs)
	}
}

func TestEvaluatorCloseRejectsTruncatedTrailingLiteral(t *testing.T) {
	prog := mustCompile(t, "$")
	ev := New(prog)
	if _, err := ev.Feed([]byte("tru")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if _, err := ev.Close(); err == nil {
		t.Fatalf("expected Close to reject a truncated keyword")
	}
}

func TestEvaluatorSingularQueryProperty(t *testing.T) {
	body := `{"a":{"b":{"c":42}}}`
	prog := mustCompile(t, "$.a.b.c")
	ev := New(prog)
	recs := feedAll(t, ev, body, 3)
	if len(recs) != 1 {
		t.Fatalf("singular query must emit at most one record, got %d", len(recs))
	}
	if string(recs[0].Value) != "42" {
		t.Fatalf("expected 42, got %q", recs[0].Value)
	}
}

func TestEvaluatorDescendant(t *testing.T) {
	body := `{"a":{"price":1},"b":[{"price":2},{"price":3,"price2":4}]}`
	prog := mustCompile(t, "$..price")
	ev := New(prog)
	recs := feedAll(t, ev, body, 4)
	if len(recs) != 3 {
		t.Fatalf("expected 3 descendant matches, got %d: %+v", len(recs), recs)
	}
}

func TestEvaluatorNegativeIndex(t *testing.T) {
	body := `{"items":[10,20,30,40]}`
	prog := mustCompile(t, "$.items[-1]")
	ev := New(prog)
	recs := feedAll(t, ev, body, 3)
	if len(recs) != 1 || string(recs[0].Value) != "40" {
		t.Fatalf("expected [40], got %+v", recs)
	}
}

func TestEvaluatorReverseSlice(t *testing.T) {
	body := `[1,2,3,4,5]`
	prog := mustCompile(t, "$[::-1]")
	ev := New(prog)
	recs := feedAll(t, ev, body, 2)
	if len(recs) != 5 {
		t.Fatalf("expected 5 records, got %d", len(recs))
	}
	want := []string{"5", "4", "3", "2", "1"}
	for i, w := range want {
		if string(recs[i].Value) != w {
			t.Errorf("record %d: got %q want %q", i, recs[i].Value, w)
		}
	}
}

func TestEvaluatorFilterComparison(t *testing.T) {
	body := `{"book":[{"price":8,"title":"cheap"},{"price":25,"title":"pricey"}]}`
	prog := mustCompile(t, "$.book[?@.price<10]")
	ev := New(prog)
	recs := feedAll(t, ev, body, 6)
	if len(recs) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(recs), recs)
	}
	if !contains(string(recs[0].Value), "cheap") {
		t.Fatalf("expected the cheap book, got %q", recs[0].Value)
	}
}

func TestEvaluatorFilterLengthOnNonContainer(t *testing.T) {
	body := `{"book":[{"x":5},{"x":"hello!"}]}`
	prog := mustCompile(t, "$.book[?length(@.x)>5]")
	ev := New(prog)
	recs := feedAll(t, ev, body, 5)
	if len(recs) != 1 {
		t.Fatalf("expected exactly 1 match (string x), got %d: %+v", len(recs), recs)
	}
	if !contains(string(recs[0].Value), "hello") {
		t.Fatalf("expected the string-x object, got %q", recs[0].Value)
	}
}

func TestEvaluatorMalformedJSONTerminal(t *testing.T) {
	body := `{"a":1, "b": tru}`
	prog := mustCompile(t, "$.a")
	ev := New(prog)
	recs, err := ev.Feed([]byte(body))
	if err == nil {
		t.Fatalf("expected terminal syntax error")
	}
	if len(recs) != 1 {
		t.Fatalf("expected the one record before the malformed point, got %d", len(recs))
	}
	_, err2 := ev.Feed([]byte(`{}`))
	if err2 == nil {
		t.Fatalf("expected evaluator to stay terminated after an error")
	}
}

func TestEvaluatorDepthOverflow(t *testing.T) {
	body := ""
	for i := 0; i < 600; i++ {
		body += "["
	}
	for i := 0; i < 600; i++ {
		body += "]"
	}
	prog := mustCompile(t, "$")
	ev := New(prog)
	_, err := ev.Feed([]byte(body))
	if err == nil {
		t.Fatalf("expected depth overflow error")
	}
	if _, ok := err.(*DepthOverflowError); !ok {
		t.Fatalf("expected *DepthOverflowError, got %T", err)
	}
}

func TestEvaluatorRecordSpanTooLarge(t *testing.T) {
	padding := make([]byte, 100)
	for i := range padding {
		padding[i] = 'a'
	}
	body := `{"a":"` + string(padding) + `"}`
	prog := mustCompile(t, "$.a")
	ev := New(prog)
	ev.SetMaxRecordSpan(10)
	_, err := ev.Feed([]byte(body))
	if err == nil {
		t.Fatalf("expected record span too large error")
	}
	if _, ok := err.(*RecordSpanTooLargeError); !ok {
		t.Fatalf("expected *RecordSpanTooLargeError, got %T", err)
	}
}

func TestEvaluatorRetainedBufferTooLarge(t *testing.T) {
	// An in-progress scalar that hasn't closed yet is never reclaimed
	// (reclamation only runs once a value finishes), so feeding one past
	// the cap, one byte at a time, must trip the ceiling well before the
	// string ever closes.
	prog := mustCompile(t, "$.a")
	ev := New(prog)
	ev.SetMaxRetainedBytes(16)

	var lastErr error
	body := []byte(`{"a":"` + longUnterminatedStringTail())
	for i := range body {
		_, err := ev.Feed(body[i : i+1])
		if err != nil {
			lastErr = err
			break
		}
	}
	if lastErr == nil {
		t.Fatalf("expected retained buffer too large error")
	}
	if _, ok := lastErr.(*RetainedBufferTooLargeError); !ok {
		t.Fatalf("expected *RetainedBufferTooLargeError, got %T", lastErr)
	}
}

func longUnterminatedStringTail() string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
