package jsonpath

import "regexp"

// evalFilter evaluates a compiled filter expression against a fully
// materialized candidate node (the `@` of RFC 9535 §2.3.5). Per §4.4.6,
// this only ever runs once the candidate's bytes have fully arrived.
func evalFilter(expr *FilterExpr, candidate *Node) bool {
	for _, and := range expr.Or {
		if evalAnd(and, candidate) {
			return true
		}
	}
	return false
}

func evalAnd(and *FilterAnd, candidate *Node) bool {
	for _, term := range and.Terms {
		if !evalTerm(term, candidate) {
			return false
		}
	}
	return true
}

func evalTerm(term *FilterTerm, candidate *Node) bool {
	var result bool
	switch {
	case term.Nested != nil:
		result = evalFilter(term.Nested, candidate)
	case term.Truthy != nil:
		v := resolveOperand(term.Truthy, candidate)
		result = truthy(v)
	case term.Comparison != nil:
		result = evalComparison(term.Comparison, candidate)
	}
	if term.Negate {
		return !result
	}
	return result
}

func evalComparison(c *Comparison, candidate *Node) bool {
	left := resolveOperand(c.Left, candidate)
	right := resolveOperand(c.Right, candidate)

	if left.Kind == VNothing || right.Kind == VNothing {
		// Nothing never satisfies any comparison (§4.4.6).
		return false
	}

	switch c.Op {
	case OpEq:
		return valuesEqual(left, right)
	case OpNe:
		return !valuesEqual(left, right)
	case OpLt, OpLe, OpGt, OpGe:
		return compareOrdered(left, right, c.Op)
	default:
		return false
	}
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case VNull:
		return true
	case VBool:
		return a.Bool == b.Bool
	case VNumber:
		return a.Num == b.Num
	case VString:
		return a.Str == b.Str
	default:
		return false // node/node equality is not defined by this evaluator
	}
}

func compareOrdered(a, b Value, op CompareOp) bool {
	var lt, eq bool
	switch {
	case a.Kind == VNumber && b.Kind == VNumber:
		lt = a.Num < b.Num
		eq = a.Num == b.Num
	case a.Kind == VString && b.Kind == VString:
		lt = a.Str < b.Str
		eq = a.Str == b.Str
	default:
		return false
	}
	switch op {
	case OpLt:
		return lt
	case OpLe:
		return lt || eq
	case OpGt:
		return !lt && !eq
	case OpGe:
		return !lt
	}
	return false
}

// truthy implements the bare-operand test a filter term without a
// comparison operator reduces to: existence for a path, the boolean result
// itself for a function that returns one, and plain non-Nothing otherwise.
func truthy(v Value) bool {
	switch v.Kind {
	case VNothing:
		return false
	case VBool:
		return v.Bool
	default:
		return true
	}
}

func resolveOperand(op *Operand, candidate *Node) Value {
	switch {
	case op.Literal != nil:
		return literalValue(op.Literal)
	case op.Path != nil:
		n, ok := resolveRelPath(op.Path, candidate)
		if !ok {
			return Nothing
		}
		return n.toValue()
	case op.Func != nil:
		return callFunc(op.Func, candidate)
	default:
		return Nothing
	}
}

func literalValue(l *LiteralValue) Value {
	switch l.Kind {
	case LitString:
		return stringValue(l.Str)
	case LitNumber:
		return numberValue(l.Num)
	case LitBool:
		return boolValue(l.Bool)
	default:
		return Value{Kind: VNull}
	}
}

func resolveRelPath(p *RelPath, candidate *Node) (*Node, bool) {
	cur := candidate
	for _, seg := range p.Segments {
		if cur == nil {
			return nil, false
		}
		if seg.HasName {
			if cur.Kind != NodeObject {
				return nil, false
			}
			next, ok := cur.member(seg.Name)
			if !ok {
				return nil, false
			}
			cur = next
			continue
		}
		if seg.HasIndex {
			if cur.Kind != NodeArray {
				return nil, false
			}
			next, ok := cur.elem(seg.Index)
			if !ok {
				return nil, false
			}
			cur = next
			continue
		}
	}
	return cur, true
}

// callFunc implements RFC 9535 §2.4's five built-ins against a singular
// relative-path argument model (see RelPath's doc comment for the scope
// restriction this evaluator places on filter operands).
func callFunc(f *FuncCall, candidate *Node) Value {
	switch f.Name {
	case "length":
		v := resolveOperand(f.Args[0], candidate)
		return lengthOf(v)
	case "count":
		v := resolveOperand(f.Args[0], candidate)
		if v.Kind == VNothing {
			return numberValue(0)
		}
		return numberValue(1)
	case "value":
		return resolveOperand(f.Args[0], candidate)
	case "match", "search":
		subject := resolveOperand(f.Args[0], candidate)
		pattern := resolveOperand(f.Args[1], candidate)
		if subject.Kind != VString || pattern.Kind != VString {
			return Nothing
		}
		pat := pattern.Str
		if f.Name == "match" {
			pat = `^(?:` + pat + `)$`
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return Nothing
		}
		return boolValue(re.MatchString(subject.Str))
	default:
		return Nothing
	}
}

func lengthOf(v Value) Value {
	switch v.Kind {
	case VString:
		return numberValue(float64(len([]rune(v.Str))))
	case VNode:
		switch v.Node.Kind {
		case NodeArray:
			return numberValue(float64(len(v.Node.Elems)))
		case NodeObject:
			return numberValue(float64(len(v.Node.Members)))
		default:
			return Nothing
		}
	default:
		return Nothing
	}
}
