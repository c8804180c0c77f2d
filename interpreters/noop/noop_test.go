package noop

import (
	"context"
	"testing"

	"github.com/Comcast/formflow/core"
)

func TestNoop(t *testing.T) {
	i := &Interpreter{
		Result: true,
		Silent: true,
	}
	q := &core.Question{
		Id:   "q",
		Type: core.TypeShortText,
		BranchingRules: []*core.BranchingRule{
			{Conditions: []string{"whatever"}, Action: core.ActionHide},
		},
	}
	if core.IsVisible(context.Background(), i, q, nil) {
		t.Fatal("should be hidden")
	}
	x, err := i.Compute(context.Background(), "1+1", nil)
	if err != nil || x != nil {
		t.Fatal(x, err)
	}
}
