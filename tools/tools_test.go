package tools

import (
	"bytes"

	"github.com/Comcast/formflow/core"
)

// buffer is a bytes.Buffer that's an io.WriteCloser.
type buffer struct {
	bytes.Buffer
	closed bool
}

func (b *buffer) Close() error {
	b.closed = true
	return nil
}

func sampleForm() *core.Form {
	return &core.Form{
		Id:   "feedback",
		Name: "Feedback",
		Doc:  "Tell us *what you think*.",
		Questions: []*core.Question{
			{
				Id:      "likes",
				Type:    core.TypeSingleChoice,
				Prompt:  `Do you "like" it?`,
				Options: []string{"yes", "no"},
			},
			{
				Id:   "why",
				Type: core.TypeShortText,
				BranchingRules: []*core.BranchingRule{
					{Conditions: []string{`likes == "yes"`}, Action: "hide"},
				},
			},
			{
				Id:   "more",
				Type: core.TypeShortText,
				BranchingRules: []*core.BranchingRule{
					{Conditions: []string{`_.answered("why")`, `why.length > 10`}, Logic: "and", Action: "show"},
				},
			},
			{
				Id:       "rating",
				Type:     core.TypeRating,
				Required: true,
				ScaleMin: 1,
				ScaleMax: 5,
			},
		},
		Derived: []*core.DerivedField{
			{Id: "happy", Expr: `likes == "yes" && 3 < rating`},
		},
	}
}
