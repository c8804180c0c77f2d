// Package noop has an interpreter that doesn't evaluate anything.
package noop

import (
	"context"
	"log"

	"github.com/Comcast/formflow/core"
)

// Interpreter is a core.ConditionEvaluator and core.Computer that
// ignores its expressions.
//
// Every condition evaluates to Result, and every derived field
// computes to nil.
type Interpreter struct {
	Result bool

	// Silent, if false, will log a warning for each use.
	Silent bool
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func (i *Interpreter) Evaluate(ctx context.Context, expr string, rs core.Responses) (bool, error) {
	if !i.Silent {
		log.Printf("warning: Using noop Interpreter for %q", expr)
	}
	return i.Result, nil
}

func (i *Interpreter) Compute(ctx context.Context, expr string, rs core.Responses) (interface{}, error) {
	if !i.Silent {
		log.Printf("warning: Using noop Interpreter for %q", expr)
	}
	return nil, nil
}
