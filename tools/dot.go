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

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	. "github.com/Comcast/formflow/core"

	"github.com/jsccast/yaml"
)

// Dot makes a Graphviz dot file for the given form.
//
// The optional current and next can be question ids during a
// navigation.  If non-zero, then the edge between them will be red
// and the next question will be filled red.
func Dot(f *Form, w io.WriteCloser, current, next string) error {

	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=TB,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	var prev string
	for i, q := range f.Questions {
		if q == nil {
			return fmt.Errorf("nil question at %d", i)
		}
		label := escape(q.Id) + `<BR/><FONT POINT-SIZE='8'>` + string(q.Type) + `</FONT>`
		if q.Prompt != "" {
			prompt := q.Prompt
			if 40 < len(prompt) {
				prompt = prompt[0:37] + "..."
			}
			label += "<BR/><FONT POINT-SIZE='8'>" + escape(prompt) + "</FONT>"
		}
		fillcolor := "#99ddc8"
		shape := "record"
		style := "filled"
		color := "black"
		if 0 < len(q.BranchingRules) {
			fillcolor = "#52aa5e"
			shape = "note"
			src, err := yaml.Marshal(q.BranchingRules)
			if err != nil {
				src = []byte(err.Error())
			}
			label += `<FONT POINT-SIZE="6">` +
				`<BR/>` + strings.Replace(escape(string(src)), "\n", `<BR ALIGN="LEFT"/>`, -1) +
				`</FONT>`
		}
		if q.Required {
			style += ",bold"
		}
		if next == q.Id {
			color = "red"
			fillcolor = "#f98b8b"
		}
		fmt.Fprintf(w, "  %s [shape=\"%s\", style=\"%s\", color=\"%s\", fillcolor=\"%s\", label=<%s> ]\n",
			quote(q.Id), shape, style, color, fillcolor, label)

		if prev != "" {
			color := "black"
			if current == prev && next == q.Id {
				color = "red"
			}
			fmt.Fprintf(w, "  %s -> %s [ color=\"%s\" label = <%d> ]\n",
				quote(prev), quote(q.Id), color, i)
		}
		prev = q.Id
	}

	for _, d := range f.Derived {
		if d == nil {
			continue
		}
		label := escape(d.Id) + `<BR/><FONT POINT-SIZE="6">` + escape(d.Expr) + `</FONT>`
		fmt.Fprintf(w, "  %s [shape=\"parallelogram\", style=\"filled,dashed\", color=\"black\", fillcolor=\"#2d93ad\", label=<%s> ]\n",
			quote(d.Id), label)
		for _, ref := range References(d.Expr) {
			if f.IsAnswerKey(ref) {
				fmt.Fprintf(w, "  %s -> %s [ style=\"dotted\" ]\n", quote(ref), quote(d.Id))
			}
		}
	}

	for _, q := range f.Questions {
		seen := make(map[string]bool)
		for _, r := range q.BranchingRules {
			if r == nil {
				continue
			}
			color := "orange"
			if strings.EqualFold(r.Action, ActionShow) {
				color = "#2d93ad"
			}
			for _, expr := range r.Conditions {
				for _, ref := range References(expr) {
					if seen[ref] || !f.IsAnswerKey(ref) {
						continue
					}
					seen[ref] = true
					fmt.Fprintf(w, "  %s -> %s [ style=\"dashed\" color=\"%s\" label = <<FONT POINT-SIZE=\"8\">%s</FONT>> ]\n",
						quote(ref), quote(q.Id), color, escape(r.Action))
				}
			}
		}
	}

	fmt.Fprintf(w, "}\n")
	return w.Close()
}

// PNG generates a PNG image based on output from Dot.
//
// This function with write two files: basename.dot and basename.png,
// where the basename is the given string.
func PNG(f *Form, basename string, current, next string) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(f, dotfile, current, next); err != nil {
		return pngname, err
	}
	if err := exec.Command("dot", "-Tpng", "-Gstart=1", "-o", pngname, dotname).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func quote(s string) string {
	return `"` + strings.Replace(s, `"`, `\"`, -1) + `"`
}

func escape(s string) string {
	s = strings.Replace(s, "&", `&amp;`, -1)
	s = strings.Replace(s, "<", `&lt;`, -1)
	s = strings.Replace(s, ">", `&gt;`, -1)
	return s
}
