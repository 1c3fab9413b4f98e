package dynamotest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// evalCondition evaluates an AND-joined list of comparisons and
// attribute_exists / attribute_not_exists checks against item. A nil item is
// treated as an item with no attributes.
func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		for strings.HasPrefix(clause, "(") && strings.HasSuffix(clause, ")") {
			clause = strings.TrimSpace(clause[1 : len(clause)-1])
		}

		ok, err := evalClause(clause, names, values, item)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(clause string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if arg, ok := funcArg(clause, "attribute_exists"); ok {
		_, exists := item[resolveName(arg, names)]
		return exists, nil
	}
	if arg, ok := funcArg(clause, "attribute_not_exists"); ok {
		_, exists := item[resolveName(arg, names)]
		return !exists, nil
	}

	tokens := strings.Fields(clause)
	if len(tokens) != 3 {
		return false, fmt.Errorf("dynamotest: unsupported condition %q", clause)
	}
	lhs, err := conditionOperand(tokens[0], names, values, item)
	if err != nil {
		return false, err
	}
	rhs, err := conditionOperand(tokens[2], names, values, item)
	if err != nil {
		return false, err
	}
	if lhs == nil || rhs == nil {
		return false, nil
	}

	cmp, comparable := compare(lhs, rhs)
	switch tokens[1] {
	case "=":
		return comparable && cmp == 0, nil
	case "<>":
		return !comparable || cmp != 0, nil
	case "<":
		return comparable && cmp < 0, nil
	case "<=":
		return comparable && cmp <= 0, nil
	case ">":
		return comparable && cmp > 0, nil
	case ">=":
		return comparable && cmp >= 0, nil
	}
	return false, fmt.Errorf("dynamotest: unsupported operator %q", tokens[1])
}

func conditionOperand(tok string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	if strings.HasPrefix(tok, ":") {
		v, ok := values[tok]
		if !ok {
			return nil, fmt.Errorf("dynamotest: missing expression value %s", tok)
		}
		return v, nil
	}
	return item[resolveName(tok, names)], nil
}

// applyUpdate applies SET and REMOVE clauses to item in place. Right-hand sides
// are evaluated against the item as it was before the update.
func applyUpdate(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	clauses, err := splitClauses(expr)
	if err != nil {
		return err
	}

	before := clone(item)
	if body, ok := clauses["SET"]; ok {
		for _, action := range splitTopLevel(body) {
			i := strings.Index(action, "=")
			if i < 0 {
				return fmt.Errorf("dynamotest: unsupported SET action %q", action)
			}
			path := resolveName(strings.TrimSpace(action[:i]), names)
			v, err := evalValue(strings.TrimSpace(action[i+1:]), names, values, before)
			if err != nil {
				return err
			}
			item[path] = v
		}
	}
	if body, ok := clauses["REMOVE"]; ok {
		for _, path := range splitTopLevel(body) {
			delete(item, resolveName(path, names))
		}
	}
	return nil
}

func evalValue(rhs string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	for _, op := range []string{" + ", " - "} {
		if i := strings.Index(rhs, op); i >= 0 && !strings.Contains(rhs[:i], "(") {
			a, err := evalValue(strings.TrimSpace(rhs[:i]), names, values, item)
			if err != nil {
				return nil, err
			}
			b, err := evalValue(strings.TrimSpace(rhs[i+len(op):]), names, values, item)
			if err != nil {
				return nil, err
			}
			x, okA := number(a)
			y, okB := number(b)
			if !okA || !okB {
				return nil, fmt.Errorf("dynamotest: arithmetic on non-number in %q", rhs)
			}
			if op == " + " {
				return numberValue(x + y), nil
			}
			return numberValue(x - y), nil
		}
	}

	if arg, ok := funcArg(rhs, "if_not_exists"); ok {
		parts := splitTopLevel(arg)
		if len(parts) != 2 {
			return nil, fmt.Errorf("dynamotest: bad if_not_exists %q", rhs)
		}
		if v, exists := item[resolveName(parts[0], names)]; exists {
			return v, nil
		}
		return evalValue(parts[1], names, values, item)
	}

	if strings.HasPrefix(rhs, ":") {
		v, ok := values[rhs]
		if !ok {
			return nil, fmt.Errorf("dynamotest: missing expression value %s", rhs)
		}
		return v, nil
	}
	v, ok := item[resolveName(rhs, names)]
	if !ok {
		return nil, fmt.Errorf("dynamotest: attribute %s does not exist", rhs)
	}
	return v, nil
}

func splitClauses(expr string) (map[string]string, error) {
	out := map[string]string{}
	rest := strings.TrimSpace(expr)
	for rest != "" {
		var kw string
		for _, k := range []string{"SET", "REMOVE"} {
			if strings.HasPrefix(rest, k+" ") {
				kw = k
				rest = rest[len(k)+1:]
				break
			}
		}
		if kw == "" {
			return nil, fmt.Errorf("dynamotest: unsupported update expression %q", expr)
		}
		next := len(rest)
		for _, k := range []string{" SET ", " REMOVE "} {
			if i := strings.Index(rest, k); i >= 0 && i < next {
				next = i
			}
		}
		out[kw] = strings.TrimSpace(rest[:next])
		rest = strings.TrimSpace(rest[next:])
	}
	return out, nil
}

// splitTopLevel splits on commas that are not inside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func funcArg(s, name string) (string, bool) {
	if !strings.HasPrefix(s, name+"(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	return strings.TrimSpace(s[len(name)+1 : len(s)-1]), true
}

func resolveName(tok string, names map[string]string) string {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "#") {
		if n, ok := names[tok]; ok {
			return n
		}
	}
	return tok
}

func compare(a, b types.AttributeValue) (int, bool) {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if x, ok := a.(*types.AttributeValueMemberS); ok {
		y, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(x.Value, y.Value), true
	}
	if x, ok := a.(*types.AttributeValueMemberBOOL); ok {
		y, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok || x.Value != y.Value {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func number(v types.AttributeValue) (float64, bool) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	return f, err == nil
}

func numberValue(f float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
