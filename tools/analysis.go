/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/interpreters/noop"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FormAnalysis reports on the structure of a form and on things an
// author probably didn't intend.
type FormAnalysis struct {
	form *core.Form

	// Errors are structural problems.  A form with Errors
	// shouldn't be served.
	Errors []string

	QuestionCount int
	Rules         int
	Conditions    int
	Derived       int

	// Types counts questions by type.
	Types map[string]int

	// Conditional lists questions with at least one rule that
	// can fire.
	Conditional []string

	// Gated lists questions that are hidden when no condition
	// holds.  They appear only when a "show" rule fires.
	Gated []string

	// InertRules lists rules that can never fire (no conditions)
	// or whose action is ignored.  Entries are "QUESTION#RULE".
	InertRules []string

	// UnknownRefs maps a question to the names its conditions use
	// that aren't answer keys of the form.
	UnknownRefs map[string][]string

	// ForwardRefs maps a question to the questions at or after it
	// in traversal order that its conditions read.  Those answers
	// can't exist when the question is first reached.
	ForwardRefs map[string][]string

	// Dependencies maps each answer key to the keys its
	// visibility or value is computed from.
	Dependencies map[string][]string
}

// Analyze checks the form (which needn't be compiled) and reports on
// its questions, rules, and derived fields.
//
// The error is only for failures of the analysis itself.  Problems
// with the form are reported in FormAnalysis.Errors.
func Analyze(f *core.Form) (*FormAnalysis, error) {
	if f == nil {
		return nil, fmt.Errorf("no form")
	}

	a := FormAnalysis{
		form:          f,
		Errors:        make([]string, 0, 8),
		QuestionCount: len(f.Questions),
		Derived:       len(f.Derived),
		Types:         make(map[string]int, len(core.QuestionTypes)),
		UnknownRefs:   make(map[string][]string),
		ForwardRefs:   make(map[string][]string),
		Dependencies:  make(map[string][]string),
	}

	if err := validate.Struct(f); err != nil {
		a.Errors = append(a.Errors, err.Error())
	}

	// Compile a copy so the caller's form is left alone.
	c := f.Copy()
	if err := c.Compile(); err != nil {
		a.Errors = append(a.Errors, err.Error())
		return &a, nil
	}

	var (
		ctx   = context.Background()
		never = &noop.Interpreter{Result: false, Silent: true}
	)

	for i, q := range c.Questions {
		a.Types[string(q.Type)]++

		conditional := false
		used := make(map[string]bool)
		for j, r := range q.BranchingRules {
			a.Rules++
			a.Conditions += len(r.Conditions)
			action := strings.ToLower(r.Action)
			if len(r.Conditions) == 0 || (action != core.ActionShow && action != core.ActionHide) {
				a.InertRules = append(a.InertRules, fmt.Sprintf("%s#%d", q.Id, j))
				continue
			}
			conditional = true
			for _, expr := range r.Conditions {
				for _, ref := range References(expr) {
					used[ref] = true
				}
			}
		}

		if conditional {
			a.Conditional = append(a.Conditional, q.Id)
		}
		if !core.IsVisible(ctx, never, q, nil) {
			a.Gated = append(a.Gated, q.Id)
		}

		unknown := make(map[string]bool)
		forward := make(map[string]bool)
		for ref := range used {
			if !c.IsAnswerKey(ref) {
				unknown[ref] = true
				continue
			}
			if at := c.Index(ref); i <= at {
				forward[ref] = true
			}
		}
		if len(unknown) > 0 {
			a.UnknownRefs[q.Id] = keysToStringSlice(unknown)
		}
		if len(forward) > 0 {
			a.ForwardRefs[q.Id] = keysToStringSlice(forward)
		}
		if len(used) > 0 {
			a.Dependencies[q.Id] = keysToStringSlice(used)
		}
	}

	for _, d := range c.Derived {
		used := make(map[string]bool)
		for _, ref := range References(d.Expr) {
			used[ref] = true
		}
		unknown := make(map[string]bool)
		for ref := range used {
			if !c.IsAnswerKey(ref) {
				unknown[ref] = true
			}
		}
		if len(unknown) > 0 {
			a.UnknownRefs[d.Id] = keysToStringSlice(unknown)
		}
		if len(used) > 0 {
			a.Dependencies[d.Id] = keysToStringSlice(used)
		}
	}

	return &a, nil
}

// Warnings summarizes the analysis's findings that aren't Errors.
func (a *FormAnalysis) Warnings() []string {
	var acc []string
	for _, id := range sortedKeys(a.UnknownRefs) {
		acc = append(acc, fmt.Sprintf("%s refers to unknown %s", id, strings.Join(a.UnknownRefs[id], ", ")))
	}
	for _, id := range sortedKeys(a.ForwardRefs) {
		acc = append(acc, fmt.Sprintf("%s depends on later %s", id, strings.Join(a.ForwardRefs[id], ", ")))
	}
	for _, r := range a.InertRules {
		acc = append(acc, fmt.Sprintf("rule %s can never fire", r))
	}
	return acc
}

func sortedKeys(m map[string][]string) []string {
	set := make(map[string]bool, len(m))
	for k := range m {
		set[k] = true
	}
	return keysToStringSlice(set)
}
