package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/interpreters/goja"
	"github.com/Comcast/formflow/session"

	"github.com/spf13/cobra"
)

func walkCmd() *cobra.Command {
	var (
		prelude string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "walk FORM ANSWERS",
		Short: "Fill in a form with answers from a JSON object and report the path taken",
		Long: `Walk starts a test-mode session for the form and answers each
question it reaches from the JSON object in the ANSWERS file.  A
question without an answer is left empty.  Walk reports each question
asked and skipped, and then the final responses with derived fields.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readForm(cmd, args[0])
			if err != nil {
				return err
			}
			bs, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var answers core.Responses
			if err = json.Unmarshal(bs, &answers); err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			i := goja.NewInterpreter()
			i.Prelude = prelude

			e := session.NewEngine(i)
			e.Computer = i
			e.Verbose = verbose

			rs, err := Walk(cmd.Context(), e, f, answers, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			js, err := json.MarshalIndent(rs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", js)
			return nil
		},
	}
	cmd.Flags().StringVar(&prelude, "prelude", "", "code to run before each expression")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity")
	return cmd
}

// Walk runs a test-mode wizard session over the form using the given
// answers and returns the final Responses.
func Walk(ctx context.Context, e *session.Engine, f *core.Form, answers core.Responses, out io.Writer) (core.Responses, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := e.BeginSession(ctx, f, "", nil, true); err != nil {
		return nil, err
	}
	if err := e.StartInteraction(ctx, session.Wizard); err != nil {
		return nil, err
	}

	// Positions before this one have been reported.
	reported := 0
	report := func(q *core.Question) {
		at := len(f.Questions)
		if q != nil {
			at = f.Index(q.Id)
		}
		for ; reported < at; reported++ {
			skipped := f.Questions[reported]
			fmt.Fprintf(out, "skip %s\n", skipped.Id)
			_, traces := core.Visibility(ctx, e.Evaluator, skipped, e.Responses())
			fired := false
			for _, t := range traces {
				if t.Fired {
					fired = true
					fmt.Fprintf(out, "  rule %d %s fired\n", t.Rule, t.Action)
				}
			}
			if !fired {
				fmt.Fprintf(out, "  no show rule fired\n")
			}
		}
		if q != nil {
			fmt.Fprintf(out, "ask %s", q.Id)
			if q.Prompt != "" {
				fmt.Fprintf(out, ": %s", q.Prompt)
			}
			fmt.Fprintf(out, "\n")
			reported = at + 1
		}
	}

	q := e.Current()
	for q != nil {
		report(q)
		if x, have := answers[q.Id]; have {
			js, _ := json.Marshal(x)
			fmt.Fprintf(out, "  answer %s\n", js)
			if err := e.RecordAnswer(ctx, q.Id, x); err != nil {
				return nil, err
			}
		} else {
			fmt.Fprintf(out, "  no answer\n")
		}
		next, err := e.Advance(ctx)
		if err != nil {
			return nil, err
		}
		q = next
	}
	report(nil)

	fmt.Fprintf(out, "%s\n", e.State())

	return e.Responses(), nil
}
