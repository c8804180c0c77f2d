package tools

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/Comcast/formflow/core"

	md "github.com/russross/blackfriday/v2"
)

// RenderFormHTML writes an HTML fragment documenting the form: its
// markdown doc, each question with its rules, and the derived
// fields.
func RenderFormHTML(f *core.Form, out io.Writer) error {
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}
	esc := html.EscapeString

	if f.Doc != "" {
		p(`<div class="formDoc doc">%s</div>`, md.Run([]byte(f.Doc)))
	}

	{ // Questions
		p(`<div class="questions"><table>`)
		for i, q := range f.Questions {
			if q == nil {
				continue
			}
			p(`<tr class="question"><td><div class="questionNum">%d</div></td><td>`, i+1)
			p(`<span id="%s" class="questionId">%s</span> <span class="questionType">%s</span>`,
				esc(q.Id), esc(q.Id), esc(string(q.Type)))
			if q.Required {
				p(`<span class="required">required</span>`)
			}
			if q.Prompt != "" {
				p(`<div class="prompt">%s</div>`, esc(q.Prompt))
			}
			if q.Doc != "" {
				p(`<div class="questionDoc doc">%s</div>`, md.Run([]byte(q.Doc)))
			}
			if len(q.Options) > 0 {
				p(`<ul class="options">`)
				for _, o := range q.Options {
					p(`<li>%s</li>`, esc(o))
				}
				p(`</ul>`)
			}
			if q.ScaleMin != 0 || q.ScaleMax != 0 {
				p(`<div class="scale">%d to %d</div>`, q.ScaleMin, q.ScaleMax)
			}
			if len(q.BranchingRules) > 0 {
				p(`<div class="rules"><table>`)
				for j, r := range q.BranchingRules {
					if r == nil {
						continue
					}
					logic := core.LogicOr
					if strings.EqualFold(strings.TrimSpace(r.Logic), core.LogicAnd) {
						logic = core.LogicAnd
					}
					p(`<tr><td><div class="ruleNum">%d</div></td><td><span class="action">%s</span> when %s of</td>`,
						j, esc(r.Action), logic)
					p(`<td>`)
					for _, c := range r.Conditions {
						p(`<div class="code"><code>%s</code></div>`, esc(c))
					}
					for _, ref := range References(strings.Join(r.Conditions, " ")) {
						if f.IsAnswerKey(ref) {
							p(`<a class="ref" href="#%s">%s</a>`, esc(ref), esc(ref))
						}
					}
					p(`</td></tr>`)
					if r.Doc != "" {
						p(`<tr><td></td><td colspan="2"><div class="ruleDoc doc">%s</div></td></tr>`, md.Run([]byte(r.Doc)))
					}
				}
				p(`</table></div>`)
			}
			p(`</td></tr>`)
		}
		p(`</table></div>`)
	}

	if len(f.Derived) > 0 {
		p(`<div class="derived"><table>`)
		for _, d := range f.Derived {
			if d == nil {
				continue
			}
			p(`<tr class="derivedField"><td><span id="%s" class="derivedId">%s</span></td>`, esc(d.Id), esc(d.Id))
			p(`<td><div class="code"><pre>%s</pre></div>`, esc(d.Expr))
			if d.Doc != "" {
				p(`<div class="derivedDoc doc">%s</div>`, md.Run([]byte(d.Doc)))
			}
			p(`</td></tr>`)
		}
		p(`</table></div>`)
	}

	return nil
}

// RenderFormPage writes a complete HTML page for the form.  With
// includeForm, the page also carries the form as the JavaScript
// variable thisForm.
func RenderFormPage(f *core.Form, out io.Writer, cssFiles []string, includeForm bool) error {

	if cssFiles == nil {
		cssFiles = []string{"/static/form-html.css"}
	}

	title := f.Name
	if title == "" {
		title = f.Id
	}
	title = html.EscapeString(title)

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, title)

	if includeForm {
		js, err := json.Marshal(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, `  <script>
  var thisForm = %s;
  </script>
`, js)
	}

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, title)

	if f.Version != "" {
		fmt.Fprintf(out, "    <div class=\"version\">%s</div>\n", html.EscapeString(f.Version))
	}

	if err := RenderFormHTML(f, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}
