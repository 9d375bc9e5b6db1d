package payload

import "fmt"

// Op is a leaf condition's comparison operator (spec.md §3).
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpContainedIn
	OpContains
	OpExists
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpGt:
		return "gt"
	case OpGte:
		return "gte"
	case OpLt:
		return "lt"
	case OpLte:
		return "lte"
	case OpContainedIn:
		return "contained_in"
	case OpContains:
		return "contains"
	case OpExists:
		return "exists"
	default:
		return "unknown"
	}
}

// Filter is a boolean predicate tree evaluated against a Payload.
// It is a closed sum type (Condition, And, Or, Not) in the spirit of the
// teacher's FilterExpression (pkg/core/advanced_filter.go), expressed as a
// small Go interface instead of one struct with a string-tagged Operator,
// since the node kinds here are fixed and small in number (spec.md §9:
// "evaluate by structural recursion; no virtual dispatch required").
type Filter interface {
	// Matches evaluates the predicate against p. Matching is infallible;
	// malformed filters are rejected at construction time instead.
	Matches(p Payload) bool
	isFilter()
}

// Condition is a leaf predicate: field OP operand.
type Condition struct {
	Field   string
	Op      Op
	Operand Value
}

func (Condition) isFilter() {}

// NewCondition validates and constructs a leaf condition. A malformed
// filter (unknown op, or an operand type incompatible with the op) is
// rejected here rather than during Matches (spec.md §4.2).
func NewCondition(field string, op Op, operand Value) (*Condition, error) {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains:
		// operand required; any Value kind is syntactically acceptable
		// here, type mismatches are a false-result at match time (numeric
		// ops are false for non-numeric operands per spec.md §4.2).
	case OpContainedIn:
		if _, ok := operand.List(); !ok {
			return nil, fmt.Errorf("payload: contained_in requires a list operand, got kind %d", operand.Kind())
		}
	case OpExists:
		if !operand.IsNull() {
			return nil, fmt.Errorf("payload: exists does not take an operand")
		}
	default:
		return nil, fmt.Errorf("payload: unknown filter operator %d", op)
	}
	return &Condition{Field: field, Op: op, Operand: operand}, nil
}

// Matches implements Filter.
func (c *Condition) Matches(p Payload) bool {
	v, present := p.Get(c.Field)

	if c.Op == OpExists {
		return present
	}
	if !present {
		// spec.md §4.2: missing field is false for every op except ne,
		// which is true by total-order convention for missing = bottom.
		return c.Op == OpNe
	}

	switch c.Op {
	case OpEq:
		return Equal(v, c.Operand)
	case OpNe:
		return !Equal(v, c.Operand)
	case OpGt, OpGte, OpLt, OpLte:
		af, aok := v.Float()
		bf, bok := c.Operand.Float()
		if !aok || !bok {
			return false
		}
		switch c.Op {
		case OpGt:
			return af > bf
		case OpGte:
			return af >= bf
		case OpLt:
			return af < bf
		default:
			return af <= bf
		}
	case OpContainedIn:
		list, _ := c.Operand.List()
		for _, e := range list {
			if Equal(v, e) {
				return true
			}
		}
		return false
	case OpContains:
		return contains(v, c.Operand)
	default:
		return false
	}
}

// contains implements "substring on strings, element-of on arrays" per
// spec.md §3.
func contains(haystack, needle Value) bool {
	if s, ok := haystack.StringValue(); ok {
		n, ok := needle.StringValue()
		if !ok {
			return false
		}
		return stringContains(s, n)
	}
	if list, ok := haystack.List(); ok {
		for _, e := range list {
			if Equal(e, needle) {
				return true
			}
		}
		return false
	}
	return false
}

func stringContains(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	if len(substr) > len(s) {
		return false
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// And requires every child to match, short-circuiting on the first false
// so the bitmap pre-filter (pkg/bitmap) can skip unevaluated branches.
type And struct{ Children []Filter }

func (And) isFilter() {}

func (a And) Matches(p Payload) bool {
	for _, c := range a.Children {
		if !c.Matches(p) {
			return false
		}
	}
	return true
}

// Or requires at least one child to match, short-circuiting on the first
// true.
type Or struct{ Children []Filter }

func (Or) isFilter() {}

func (o Or) Matches(p Payload) bool {
	for _, c := range o.Children {
		if c.Matches(p) {
			return true
		}
	}
	return false
}

// Not negates a single child.
type Not struct{ Child Filter }

func (Not) isFilter() {}

func (n Not) Matches(p Payload) bool {
	return !n.Child.Matches(p)
}
