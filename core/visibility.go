package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

var (
	// NoEvaluator occurs when a condition needs evaluating but no
	// ConditionEvaluator was given.
	NoEvaluator = errors.New("no condition evaluator")

	// Debug, when true, logs condition evaluation failures, which
	// are otherwise silently treated as false.
	Debug = false
)

// ConditionEvaluator evaluates a condition expression against the
// current Responses.
//
// Implementations must not modify the given Responses.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, expr string, rs Responses) (bool, error)
}

// EvaluatorFunc adapts a function to a ConditionEvaluator.
type EvaluatorFunc func(ctx context.Context, expr string, rs Responses) (bool, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, expr string, rs Responses) (bool, error) {
	return f(ctx, expr, rs)
}

// Computer computes the value of an expression against the current
// Responses.  Used for derived fields.
type Computer interface {
	Compute(ctx context.Context, expr string, rs Responses) (interface{}, error)
}

// RuleTrace records what happened when a BranchingRule was
// considered.
type RuleTrace struct {
	Rule      int      `json:"rule"`
	Action    string   `json:"action"`
	Evaluated bool     `json:"evaluated"`
	Fired     bool     `json:"fired"`
	Errors    []string `json:"errors,omitempty"`
}

// IsVisible decides if the question should be shown given the
// Responses.
//
// A question without rules is visible.  Otherwise rules are
// considered in order.  A "hide" rule that fires hides the question
// immediately; later rules are not considered.  If no "hide" rule
// fired, and there's at least one "show" rule, the question is
// visible only if some "show" rule fired.  Otherwise the question is
// visible.
//
// A condition that fails to evaluate is false.
func IsVisible(ctx context.Context, ev ConditionEvaluator, q *Question, rs Responses) bool {
	visible, _ := Visibility(ctx, ev, q, rs)
	return visible
}

// Visibility is IsVisible with traces.
func Visibility(ctx context.Context, ev ConditionEvaluator, q *Question, rs Responses) (bool, []*RuleTrace) {
	if q == nil || len(q.BranchingRules) == 0 {
		return true, nil
	}

	var (
		ts       = make([]*RuleTrace, 0, len(q.BranchingRules))
		haveShow bool
		shown    bool
	)

	for i, r := range q.BranchingRules {
		if r == nil {
			continue
		}
		t := &RuleTrace{
			Rule:   i,
			Action: r.Action,
		}
		ts = append(ts, t)

		switch strings.ToLower(r.Action) {
		case ActionHide:
			t.Evaluated = true
			if t.Fired = r.fires(ctx, ev, rs, t); t.Fired {
				return false, ts
			}
		case ActionShow:
			haveShow = true
			if shown {
				// Already decided unless a later hide
				// rule fires.
				continue
			}
			t.Evaluated = true
			t.Fired = r.fires(ctx, ev, rs, t)
			shown = t.Fired
		default:
			// Unknown actions are ignored.
		}
	}

	if haveShow {
		return shown, ts
	}

	return true, ts
}

// fires evaluates the rule's conditions.  A rule without conditions
// never fires.
func (r *BranchingRule) fires(ctx context.Context, ev ConditionEvaluator, rs Responses, t *RuleTrace) bool {
	if len(r.Conditions) == 0 {
		return false
	}

	and := isAnd(r.Logic)

	for _, c := range r.Conditions {
		ok, err := evaluate(ctx, ev, c, rs)
		if err != nil {
			t.Errors = append(t.Errors, err.Error())
		}
		if and && !ok {
			return false
		}
		if !and && ok {
			return true
		}
	}

	return and
}

// evaluate calls the evaluator, converting errors and panics to
// false.
func evaluate(ctx context.Context, ev ConditionEvaluator, expr string, rs Responses) (ok bool, err error) {
	if ev == nil {
		return false, NoEvaluator
	}

	defer func() {
		if x := recover(); x != nil {
			ok = false
			err = fmt.Errorf("condition %q panicked: %v", expr, x)
		}
		if err != nil && Debug {
			log.Printf("core.evaluate %q: %v", expr, err)
		}
	}()

	if ok, err = ev.Evaluate(ctx, expr, rs); err != nil {
		ok = false
	}

	return ok, err
}
