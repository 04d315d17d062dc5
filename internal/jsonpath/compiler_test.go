package jsonpath

import "testing"

func TestCompileAccepts(t *testing.T) {
	exprs := []string{
		"$",
		"$.store.book",
		"$['store']['book']",
		"$.store.book[0]",
		"$.store.book[-1]",
		"$.store.book[0:2]",
		"$.store.book[::-1]",
		"$.store.book[0,2]",
		"$.store.*",
		"$..price",
		"$.store.book[?@.price<10]",
		"$.store.book[?(@.price < 10 && @.category == 'fiction')]",
		"$.store.book[?length(@.title)>5]",
		"$.store.book[?value(@.isbn)]",
	}
	for _, e := range exprs {
		if _, err := Compile(e); err != nil {
			t.Errorf("Compile(%q) unexpected error: %v", e, err)
		}
	}
}

func TestCompileRejects(t *testing.T) {
	exprs := []string{
		"",
		"store.book",
		"$$",
		"$.",
		"$..",
		"$.store[",
		"$.store['book\"]",
		"$.store['\\uZZZZ']",
		"$.store[9007199254740992]",
		"$.store[1:2:0]",
		"$.store[?unknownfn(@.x)]",
		"$.store[?length(@.x,@.y)]",
		"$.store[?value(@.*)]",
		"$.store[?@.x = 1]",
	}
	for _, e := range exprs {
		if _, err := Compile(e); err == nil {
			t.Errorf("Compile(%q) expected error, got none", e)
		}
	}
}

func TestCompileErrorHasPosition(t *testing.T) {
	_, err := Compile("store.book")
	ce, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	if ce.Line != 1 || ce.Column != 1 {
		t.Errorf("expected error at line 1 column 1, got %d:%d", ce.Line, ce.Column)
	}
}

func TestWholeDocumentProgram(t *testing.T) {
	p, err := Compile("$")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.WholeDocument {
		t.Fatalf("expected WholeDocument program for bare '$'")
	}
}

func TestSingularMemberChain(t *testing.T) {
	p, err := Compile("$.a.b.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(p.Steps))
	}
	if !p.Steps[2].IsLast {
		t.Errorf("expected last step to be marked IsLast")
	}
	if p.Steps[0].IsLast {
		t.Errorf("expected first step to not be marked IsLast")
	}
}

func TestUnionSharesSegment(t *testing.T) {
	p, err := Compile("$.a[0,2,4]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Steps) != 4 {
		t.Fatalf("expected 4 steps (1 name + 3 index), got %d", len(p.Steps))
	}
	seg := p.Steps[1].Segment
	for _, s := range p.Steps[1:] {
		if s.Segment != seg {
			t.Errorf("expected union members to share a segment index")
		}
	}
}
