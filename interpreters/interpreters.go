// Package interpreters collects the expression languages a form can
// name for its branching conditions and derived fields.
package interpreters

import (
	"fmt"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/interpreters/goja"
	"github.com/Comcast/formflow/interpreters/noop"
)

// Interpreter can evaluate branching conditions and compute derived
// fields.
type Interpreter interface {
	core.ConditionEvaluator
	core.Computer
}

// Map maps names to Interpreters.
type Map map[string]Interpreter

// Find returns the Interpreter with the given name.  The empty name
// means "goja".
func (m Map) Find(name string) (Interpreter, error) {
	if name == "" {
		name = "goja"
	}
	i, have := m[name]
	if !have {
		return nil, fmt.Errorf("unknown interpreter '%s'", name)
	}
	return i, nil
}

// Standard returns the standard interpreters.
func Standard() Map {
	m := make(Map)

	g := goja.NewInterpreter()
	m["goja"] = g
	m["ecmascript"] = g
	m["ecmascript-5.1"] = g

	m["noop"] = noop.NewInterpreter()

	return m
}
