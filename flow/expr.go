package flow

import (
	"strconv"
	"strings"

	"github.com/Reverse-Call-Center/routing-engine/types"
)

// evalExpr evaluates a conditional node expression of the form
// "<var> <op> <literal>" over the session variables. Supported operators:
// ==, !=, >, >=, <, <=, contains. Comparisons are numeric when both sides
// parse as numbers, string otherwise. A malformed expression is false.
func evalExpr(expr string, sess *types.CallSession) bool {
	fields := strings.Fields(expr)
	if len(fields) < 3 {
		return false
	}
	name, op := fields[0], fields[1]
	literal := strings.Trim(strings.Join(fields[2:], " "), `"'`)
	value := sess.Var(name)

	if op == "contains" {
		return strings.Contains(value, literal)
	}

	lf, lerr := strconv.ParseFloat(value, 64)
	rf, rerr := strconv.ParseFloat(literal, 64)
	numeric := lerr == nil && rerr == nil

	switch op {
	case "==":
		if numeric {
			return lf == rf
		}
		return value == literal
	case "!=":
		if numeric {
			return lf != rf
		}
		return value != literal
	case ">":
		return numeric && lf > rf
	case ">=":
		return numeric && lf >= rf
	case "<":
		return numeric && lf < rf
	case "<=":
		return numeric && lf <= rf
	}
	return false
}

// expand substitutes ${name} references in an assign node value with the
// session's variables.
func expand(value string, sess *types.CallSession) string {
	if !strings.Contains(value, "${") {
		return value
	}
	var b strings.Builder
	rest := value
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])
		b.WriteString(sess.Var(rest[start+2 : start+end]))
		rest = rest[start+end+1:]
	}
}
