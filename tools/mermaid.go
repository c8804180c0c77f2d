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
	"fmt"
	"io"
	"log"
	"strings"

	. "github.com/Comcast/formflow/core"
)

type MermaidOpts struct {
	// ShowConditions will result in a dependency edge label
	// that's the rule's action and conditions.
	ShowConditions bool `json:"showConditions"`

	// ConditionalFill is the fill color for questions that have
	// rules.  Does not apply if ConditionalClass is set.
	ConditionalFill string `json:"conditionalFill,omitempty"`

	// ConditionalClass will be the CSS class for questions that
	// have rules.
	ConditionalClass string `json:"conditionalClass,omitempty"`

	// DerivedFill is the fill color for derived fields.
	DerivedFill string `json:"derivedFill,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) input file
// for the given form.
//
// Questions are chained in traversal order with solid edges.  Dotted
// edges go from an answer to the questions and derived fields whose
// rules or expressions read it.
func Mermaid(f *Form, w io.WriteCloser, opts *MermaidOpts) error {

	if opts == nil {
		opts = &MermaidOpts{
			ShowConditions:  true,
			ConditionalFill: "#bcf2db",
			DerivedFill:     "#f2e1bc",
		}
	}

	logf := func(format string, args ...interface{}) {
		if opts.Verbose {
			log.Printf(format, args...)
		}
	}

	logf("processing %d questions", len(f.Questions))

	fmt.Fprintf(w, "graph TB\n")

	nids := make(map[string]string)
	num := 0

	node := func(id string) string {
		if nid, already := nids[id]; already {
			return nid
		}
		num++
		nid := fmt.Sprintf("n%d", num)
		nids[id] = nid
		return nid
	}

	var prev string
	for _, q := range f.Questions {
		if q == nil {
			continue
		}
		nid := node(q.Id)
		label := q.Id
		if q.Prompt != "" {
			label += "<br/>" + mermaidText(q.Prompt)
		}
		if len(q.BranchingRules) == 0 {
			fmt.Fprintf(w, "  %s(\"%s\")\n", nid, label)
		} else {
			fmt.Fprintf(w, "  %s{\"%s\"}\n", nid, label)
			switch {
			case opts.ConditionalClass != "":
				fmt.Fprintf(w, "  class %s %s\n", nid, opts.ConditionalClass)
			case opts.ConditionalFill != "":
				fmt.Fprintf(w, "  style %s fill:%s\n", nid, opts.ConditionalFill)
			}
		}
		if prev != "" {
			fmt.Fprintf(w, "  %s --> %s\n", prev, nid)
		}
		prev = nid
	}

	for _, d := range f.Derived {
		if d == nil {
			continue
		}
		nid := node(d.Id)
		fmt.Fprintf(w, "  %s[/\"%s\"/]\n", nid, d.Id)
		if opts.DerivedFill != "" {
			fmt.Fprintf(w, "  style %s fill:%s\n", nid, opts.DerivedFill)
		}
	}

	for _, q := range f.Questions {
		if q == nil {
			continue
		}
		logf("  processing %s rules: %d", q.Id, len(q.BranchingRules))
		for _, r := range q.BranchingRules {
			if r == nil {
				continue
			}
			label := ""
			if opts.ShowConditions {
				label = fmt.Sprintf(`-. "%s: %s" .->`, r.Action, mermaidText(strings.Join(r.Conditions, " "+logicOf(r)+" ")))
			} else {
				label = "-.->"
			}
			seen := make(map[string]bool)
			for _, expr := range r.Conditions {
				for _, ref := range References(expr) {
					if seen[ref] || !f.IsAnswerKey(ref) {
						continue
					}
					seen[ref] = true
					fmt.Fprintf(w, "  %s %s %s\n", node(ref), label, nids[q.Id])
				}
			}
		}
	}

	for _, d := range f.Derived {
		if d == nil {
			continue
		}
		for _, ref := range References(d.Expr) {
			if f.IsAnswerKey(ref) {
				fmt.Fprintf(w, "  %s -.-> %s\n", node(ref), nids[d.Id])
			}
		}
	}

	fmt.Fprintf(w, "\n")
	logf("mermaid gen done")

	return w.Close()
}

func logicOf(r *BranchingRule) string {
	if strings.EqualFold(strings.TrimSpace(r.Logic), LogicAnd) {
		return "&&"
	}
	return "||"
}

func mermaidText(s string) string {
	s = strings.Replace(s, `"`, `'`, -1)
	s = strings.Replace(s, "\n", " ", -1)
	if 60 < len(s) {
		s = s[0:57] + "..."
	}
	return s
}
