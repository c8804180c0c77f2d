package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Equals is a tiny condition language for tests that don't want to
// depend on a real interpreter.
//
// Supported expressions:
//
//	true
//	false
//	answered(ID)
//	ID == LITERAL
//	ID != LITERAL
//
// where LITERAL is JSON.  Referring to an ID that hasn't been
// answered is an error.
func Equals(expr string, rs map[string]interface{}) (bool, error) {
	expr = strings.TrimSpace(expr)

	switch expr {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	if strings.HasPrefix(expr, "answered(") && strings.HasSuffix(expr, ")") {
		id := strings.TrimSpace(expr[len("answered(") : len(expr)-1])
		_, have := rs[id]
		return have, nil
	}

	op := "=="
	parts := strings.SplitN(expr, op, 2)
	if len(parts) != 2 {
		op = "!="
		if parts = strings.SplitN(expr, op, 2); len(parts) != 2 {
			return false, fmt.Errorf("can't parse %q", expr)
		}
	}

	id := strings.TrimSpace(parts[0])
	if id == "" {
		return false, fmt.Errorf("no operand in %q", expr)
	}
	x, have := rs[id]
	if !have {
		return false, errors.New("unknown operand " + id)
	}

	var lit interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(parts[1])), &lit); err != nil {
		return false, fmt.Errorf("bad literal in %q: %v", expr, err)
	}

	same := reflect.DeepEqual(canonical(x), lit)
	if op == "!=" {
		return !same, nil
	}
	return same, nil
}
