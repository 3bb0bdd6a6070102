package query

import "fmt"

// Op is a predicate operator.
type Op uint8

// Predicate operators.
const (
	OpIs Op = iota + 1
	OpIsNot
	OpLessThan
	OpLessThanOrEqual
	OpBefore
	OpGreaterThan
	OpGreaterThanOrEqual
	OpAfter
	OpBetween
	OpContains
	OpDoesNotContain
	OpStartswith
	OpDoesNotStartwith
	OpEndswith
	OpDoesNotEndwith
	OpMatches
	OpDoesNotMatch
	OpIsIn
	OpIsNotIn
)

var opNames = [...]string{
	OpIs:                 "is",
	OpIsNot:              "is_not",
	OpLessThan:           "lt",
	OpLessThanOrEqual:    "lte",
	OpBefore:             "before",
	OpGreaterThan:        "gt",
	OpGreaterThanOrEqual: "gte",
	OpAfter:              "after",
	OpBetween:            "between",
	OpContains:           "contains",
	OpDoesNotContain:     "does_not_contain",
	OpStartswith:         "startswith",
	OpDoesNotStartwith:   "does_not_startwith",
	OpEndswith:           "endswith",
	OpDoesNotEndwith:     "does_not_endwith",
	OpMatches:            "matches",
	OpDoesNotMatch:       "does_not_match",
	OpIsIn:               "is_in",
	OpIsNotIn:            "is_not_in",
}

// String returns the operator name.
func (o Op) String() string {
	if o > 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// ParseOp returns the operator named by s.
func ParseOp(s string) (Op, error) {
	for i, name := range opNames {
		if name != "" && name == s {
			return Op(i), nil
		}
	}
	switch s {
	case "=", "==":
		return OpIs, nil
	case "!=", "<>":
		return OpIsNot, nil
	case "<":
		return OpLessThan, nil
	case "<=":
		return OpLessThanOrEqual, nil
	case ">":
		return OpGreaterThan, nil
	case ">=":
		return OpGreaterThanOrEqual, nil
	case "in":
		return OpIsIn, nil
	case "not_in":
		return OpIsNotIn, nil
	}
	return 0, fmt.Errorf("query: unknown operator %q", s)
}

// negated maps each operator to its complement. Operators missing from the
// map (Before, After, Between) negate through the inversion flag.
var negated = map[Op]Op{
	OpIs:                 OpIsNot,
	OpIsNot:              OpIs,
	OpLessThan:           OpGreaterThanOrEqual,
	OpGreaterThanOrEqual: OpLessThan,
	OpLessThanOrEqual:    OpGreaterThan,
	OpGreaterThan:        OpLessThanOrEqual,
	OpContains:           OpDoesNotContain,
	OpDoesNotContain:     OpContains,
	OpStartswith:         OpDoesNotStartwith,
	OpDoesNotStartwith:   OpStartswith,
	OpEndswith:           OpDoesNotEndwith,
	OpDoesNotEndwith:     OpEndswith,
	OpMatches:            OpDoesNotMatch,
	OpDoesNotMatch:       OpMatches,
	OpIsIn:               OpIsNotIn,
	OpIsNotIn:            OpIsIn,
}

// Negated returns the complement of o, and false when o has none.
func (o Op) Negated() (Op, bool) {
	n, ok := negated[o]
	return n, ok
}

// Pattern reports if o is a string pattern operator.
func (o Op) Pattern() bool {
	switch o {
	case OpContains, OpDoesNotContain, OpStartswith, OpDoesNotStartwith, OpEndswith, OpDoesNotEndwith:
		return true
	}
	return false
}

// Positive returns the non-negated form of o and whether o was negative.
// It is used by compilers that render negative operators as NOT <positive>.
func (o Op) Positive() (Op, bool) {
	switch o {
	case OpIsNot, OpDoesNotContain, OpDoesNotStartwith, OpDoesNotEndwith, OpDoesNotMatch, OpIsNotIn:
		return negated[o], true
	}
	return o, false
}

// Func is a function applied to the column side of a predicate.
type Func uint8

// Column functions.
const (
	FuncLower Func = iota + 1
	FuncUpper
	FuncAbs
	FuncAsString
)

// String returns the function name.
func (f Func) String() string {
	switch f {
	case FuncLower:
		return "lower"
	case FuncUpper:
		return "upper"
	case FuncAbs:
		return "abs"
	case FuncAsString:
		return "as_string"
	}
	return fmt.Sprintf("Func(%d)", f)
}

// MathOp is an arithmetic adjustment operator.
type MathOp uint8

// Arithmetic operators.
const (
	MathAdd MathOp = iota + 1
	MathSubtract
	MathMultiply
	MathDivide
	MathAnd
	MathOr
)

// String returns the operator symbol.
func (m MathOp) String() string {
	switch m {
	case MathAdd:
		return "+"
	case MathSubtract:
		return "-"
	case MathMultiply:
		return "*"
	case MathDivide:
		return "/"
	case MathAnd:
		return "&"
	case MathOr:
		return "|"
	}
	return fmt.Sprintf("MathOp(%d)", m)
}

// Math is one arithmetic adjustment: the column side is combined with Value,
// a literal or a Ref to another column.
type Math struct {
	Op    MathOp
	Value any
}

// Conj joins the children of a Compound.
type Conj uint8

// Compound operators.
const (
	ConjAnd Conj = iota + 1
	ConjOr
)

// String returns the keyword of the conjunction.
func (c Conj) String() string {
	if c == ConjOr {
		return "OR"
	}
	return "AND"
}

func (c Conj) flip() Conj {
	if c == ConjOr {
		return ConjAnd
	}
	return ConjOr
}
