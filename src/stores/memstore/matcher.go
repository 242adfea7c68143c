package memstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kgroat/camouflage/src/helpers"
	"github.com/kgroat/camouflage/src/models"
)

// Match evaluates a mongo style query against a record. Top level keys are
// ANDed together.
func Match(record map[string]interface{}, query map[string]interface{}) (bool, error) {
	for key, cond := range query {
		ok, err := matchKey(record, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(record map[string]interface{}, key string, cond interface{}) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		clauses, ok := cond.([]interface{})
		if !ok {
			if maps, isMaps := cond.([]map[string]interface{}); isMaps {
				clauses = make([]interface{}, len(maps))
				for i, m := range maps {
					clauses[i] = m
				}
			} else {
				return false, fmt.Errorf("%s expects a list of queries", key)
			}
		}
		return matchGroup(record, key, clauses)
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("unknown top level operator %s", key)
	}

	value, exists := helpers.LookupPath(record, key)

	if ops, ok := operatorMap(cond); ok {
		for op, arg := range ops {
			matched, err := evaluateOperator(value, exists, op, arg)
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	}

	return matchEquals(value, cond), nil
}

func matchGroup(record map[string]interface{}, op string, clauses []interface{}) (bool, error) {
	for _, clause := range clauses {
		sub, ok := clause.(map[string]interface{})
		if q, isQuery := clause.(models.Query); isQuery {
			sub, ok = map[string]interface{}(q), true
		}
		if !ok {
			return false, fmt.Errorf("%s clause must be a query, got %T", op, clause)
		}
		matched, err := Match(record, sub)
		if err != nil {
			return false, err
		}
		switch op {
		case "$and":
			if !matched {
				return false, nil
			}
		case "$or":
			if matched {
				return true, nil
			}
		case "$nor":
			if matched {
				return false, nil
			}
		}
	}
	return op != "$or", nil
}

// operatorMap reports whether cond is an operator document like {"$gt": 3}.
func operatorMap(cond interface{}) (map[string]interface{}, bool) {
	m, ok := cond.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// matchEquals follows mongo: a scalar matches an array holding it.
func matchEquals(value, cond interface{}) bool {
	if list, ok := value.([]interface{}); ok {
		if _, condIsList := cond.([]interface{}); !condIsList {
			for _, item := range list {
				if helpers.ValuesEqual(item, cond) {
					return true
				}
			}
			return false
		}
	}
	return helpers.ValuesEqual(value, cond)
}

func evaluateOperator(value interface{}, exists bool, op string, arg interface{}) (bool, error) {
	switch op {
	case "$eq":
		return matchEquals(value, arg), nil
	case "$ne":
		return !matchEquals(value, arg), nil
	case "$gt":
		return compareSameKind(value, arg, func(c int) bool { return c > 0 }), nil
	case "$gte":
		return compareSameKind(value, arg, func(c int) bool { return c >= 0 }), nil
	case "$lt":
		return compareSameKind(value, arg, func(c int) bool { return c < 0 }), nil
	case "$lte":
		return compareSameKind(value, arg, func(c int) bool { return c <= 0 }), nil
	case "$in", "$nin":
		list, ok := asList(arg)
		if !ok {
			return false, fmt.Errorf("%s expects a list, got %T", op, arg)
		}
		found := false
		for _, candidate := range list {
			if matchEquals(value, candidate) {
				found = true
				break
			}
		}
		if op == "$in" {
			return found, nil
		}
		return !found, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false, fmt.Errorf("$exists expects a boolean, got %T", arg)
		}
		return exists == want, nil
	case "$regex":
		re, err := asRegexp(arg)
		if err != nil {
			return false, err
		}
		s, ok := value.(string)
		return ok && re.MatchString(s), nil
	case "$not":
		ops, ok := operatorMap(arg)
		if !ok {
			return false, fmt.Errorf("$not expects an operator document")
		}
		for subOp, subArg := range ops {
			matched, err := evaluateOperator(value, exists, subOp, subArg)
			if err != nil {
				return false, err
			}
			if !matched {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown operator %s", op)
}

// compareSameKind only orders values of the same kind, like mongo does for
// range operators.
func compareSameKind(value, arg interface{}, accept func(int) bool) bool {
	if list, ok := value.([]interface{}); ok {
		for _, item := range list {
			if compareSameKind(item, arg, accept) {
				return true
			}
		}
		return false
	}
	if value == nil || arg == nil {
		return false
	}
	if helpers.IsNumber(value) != helpers.IsNumber(arg) {
		return false
	}
	if !helpers.IsNumber(value) && fmt.Sprintf("%T", value) != fmt.Sprintf("%T", arg) {
		return false
	}
	return accept(helpers.CompareValues(value, arg))
}

func asList(arg interface{}) ([]interface{}, bool) {
	switch l := arg.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func asRegexp(arg interface{}) (*regexp.Regexp, error) {
	switch r := arg.(type) {
	case *regexp.Regexp:
		return r, nil
	case string:
		re, err := regexp.Compile(r)
		if err != nil {
			return nil, fmt.Errorf("invalid $regex %q: %w", r, err)
		}
		return re, nil
	}
	return nil, fmt.Errorf("$regex expects a string or *regexp.Regexp, got %T", arg)
}
