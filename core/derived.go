package core

import (
	"context"
	"errors"
)

// DerivedField is a value computed from the final Responses, stored
// alongside the answers under its own Id.
type DerivedField struct {
	Id   string `json:"id" yaml:"id" validate:"required"`
	Doc  string `json:"doc,omitempty" yaml:"doc,omitempty"`
	Expr string `json:"expr" yaml:"expr" validate:"required"`
}

// Copy makes a copy.
func (d *DerivedField) Copy() *DerivedField {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// NoComputer occurs when a Form has derived fields but no Computer
// was given.
var NoComputer = errors.New("no computer for derived fields")

// ComputeDerived returns a copy of the given Responses extended with
// a value for each derived field.  Fields are computed in order, so
// an expression can refer to an earlier derived field.
//
// A field that fails to compute is left out of the result, and its
// error is returned in the list of problems.  The given Responses
// are not modified.
func ComputeDerived(ctx context.Context, c Computer, ds []*DerivedField, rs Responses) (Responses, []error) {
	acc := rs.Copy()
	if len(ds) == 0 {
		return acc, nil
	}
	if c == nil {
		return acc, []error{NoComputer}
	}

	var problems []error
	for _, d := range ds {
		if d == nil {
			continue
		}
		x, err := compute(ctx, c, d, acc)
		if err != nil {
			problems = append(problems, &DerivedFailed{Id: d.Id, Err: err})
			continue
		}
		acc[d.Id] = x
	}

	return acc, problems
}

func compute(ctx context.Context, c Computer, d *DerivedField, rs Responses) (x interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			x = nil
			err = errors.New("derived computation panicked")
		}
	}()
	return c.Compute(ctx, d.Expr, rs)
}
