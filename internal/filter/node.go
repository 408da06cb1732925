package filter

import "regexp"

// Operator classifies how a combinator node folds its children's verdicts.
type Operator string

const (
	OpAnd  Operator = "AND"
	OpOr   Operator = "OR"
	OpNot  Operator = "NOT" // exactly one child
	OpNor  Operator = "NOR"
	OpNand Operator = "NAND"
)

// ParseOperator maps an operator_type column value to an Operator.
func ParseOperator(s string) (Operator, bool) {
	switch Operator(s) {
	case OpAnd, OpOr, OpNot, OpNor, OpNand:
		return Operator(s), true
	default:
		return "", false
	}
}

// node is a filter-tree node resolved at load time into one of two concrete
// kinds: a combinator over children, or a regex leaf. The nullable-column
// branching happens once in Build, never during evaluation.
type node interface {
	eval(cand map[string]string, matched *[]int64) bool
}

type combinator struct {
	id       int64
	name     string
	op       Operator
	children []node
}

func (c *combinator) eval(cand map[string]string, matched *[]int64) bool {
	switch c.op {
	case OpAnd:
		ok := true
		for _, ch := range c.children {
			if !ch.eval(cand, matched) {
				ok = false
			}
		}
		return ok
	case OpOr:
		ok := false
		for _, ch := range c.children {
			if ch.eval(cand, matched) {
				ok = true
			}
		}
		return ok
	case OpNot:
		return !c.children[0].eval(cand, matched)
	case OpNor:
		ok := true
		for _, ch := range c.children {
			if ch.eval(cand, matched) {
				ok = false
			}
		}
		return ok
	case OpNand:
		all := true
		for _, ch := range c.children {
			if !ch.eval(cand, matched) {
				all = false
			}
		}
		return !all
	}
	return false
}

type leaf struct {
	id       int64
	name     string
	property string
	re       *regexp.Regexp
}

func (l *leaf) eval(cand map[string]string, matched *[]int64) bool {
	v, ok := cand[l.property]
	if !ok {
		return false
	}
	if !l.re.MatchString(v) {
		return false
	}
	if matched != nil {
		*matched = append(*matched, l.id)
	}
	return true
}
