/* Copyright 2024 Comcast Cable Communications Management, LLC
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

// Package wizard is a page-at-a-time driver for a session.Engine.
//
// A Wizard shows one question per page.  The page can move back to
// earlier visible questions, but the Engine's current question (the
// frontier) only moves forward.  Answering a single-selection
// question (see core.QuestionType.SingleSelection) continues
// automatically.  Other question types need an explicit Continue.
package wizard

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/drivers"
	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/upload"
)

var (
	// NoPage occurs when a command needs a page but the wizard
	// isn't showing one.
	NoPage = errors.New("no page")

	// NoUploader occurs when Upload is called without an
	// Uploader.
	NoUploader = errors.New("no uploader")
)

type Wizard struct {
	Engine *session.Engine

	// Dispatcher, if not nil, receives the Engine's Intents after
	// each command.
	Dispatcher session.Dispatcher

	// Uploader handles file uploads.
	Uploader upload.Uploader

	Verbose bool

	// cursor is the id of the question on the current page.  When
	// empty, the page is the Engine's current question.
	cursor string
}

func NewWizard(e *session.Engine, d session.Dispatcher) *Wizard {
	return &Wizard{
		Engine:     e,
		Dispatcher: d,
	}
}

func (w *Wizard) logf(format string, args ...interface{}) {
	if w.Verbose {
		log.Printf("wizard."+format, args...)
	}
}

func (w *Wizard) dispatch() {
	drivers.Dispatch(w.Engine, w.Dispatcher)
}

// Start begins (or resumes) a session for the form and starts the
// interaction if the session is new.
func (w *Wizard) Start(ctx context.Context, form *core.Form, formId string, initial core.Responses, testMode bool) (*core.Question, error) {
	defer w.dispatch()

	if _, err := w.Engine.BeginSession(ctx, form, formId, initial, testMode); err != nil {
		return nil, err
	}
	w.cursor = ""
	if w.Engine.State() == session.Idle {
		if err := w.Engine.StartInteraction(ctx, session.Wizard); err != nil {
			return nil, err
		}
	} else if err := w.Engine.Mount(session.Wizard); err != nil {
		return nil, err
	}
	if err := drivers.Settle(ctx, w.Engine); err != nil {
		return nil, err
	}
	return w.Page(), nil
}

// Page returns the question on the current page (or nil when there
// is nothing to show).
func (w *Wizard) Page() *core.Question {
	if w.cursor != "" {
		if f := w.Engine.Form(); f != nil {
			if q := f.Question(w.cursor); q != nil {
				return q
			}
		}
	}
	return w.Engine.Current()
}

// AtFrontier reports whether the page is the Engine's current
// question.
func (w *Wizard) AtFrontier() bool {
	p, c := w.Page(), w.Engine.Current()
	return p != nil && c != nil && p.Id == c.Id
}

// Answer records an answer for the question on the page.  If that
// question's type is a single selection, the wizard continues.
//
// Returns the question on the (possibly new) page.
func (w *Wizard) Answer(ctx context.Context, value interface{}) (*core.Question, error) {
	defer w.dispatch()

	p := w.Page()
	if p == nil {
		return nil, NoPage
	}
	if err := w.Engine.RecordAnswer(ctx, p.Id, value); err != nil {
		return p, err
	}
	if !p.Type.SingleSelection() {
		return p, nil
	}
	w.logf("Answer %s auto-continue", p.Id)
	return w.next(ctx)
}

// Continue moves to the next page.
//
// Behind the frontier, Continue moves the page to the next visible
// question without changing the Engine's current question.  At the
// frontier, Continue is Engine.Advance.
//
// A nil question with a nil error means the session completed.
func (w *Wizard) Continue(ctx context.Context) (*core.Question, error) {
	defer w.dispatch()
	return w.next(ctx)
}

func (w *Wizard) next(ctx context.Context) (*core.Question, error) {
	p := w.Page()
	if p == nil {
		return nil, NoPage
	}

	if w.AtFrontier() {
		w.cursor = ""
		return w.Engine.Advance(ctx)
	}

	f := w.Engine.Form()
	rs := w.Engine.Responses()

	if x, have := rs[p.Id]; p.Required && (!have || core.IsEmptyAnswer(x)) {
		return p, &core.ValidationError{
			QuestionId: p.Id,
			Message:    "an answer is required",
		}
	}

	next, err := core.FindNextVisible(ctx, w.Engine.Evaluator, p, f.Questions, rs)
	if err != nil {
		return p, err
	}

	frontier := w.Engine.Current()
	if next == nil || frontier == nil || f.Index(frontier.Id) <= f.Index(next.Id) {
		// Caught up.  The frontier might be hidden now.
		w.cursor = ""
		if err := drivers.Settle(ctx, w.Engine); err != nil {
			return w.Page(), err
		}
		return w.Page(), nil
	}

	w.logf("Continue %s -> %s (behind %s)", p.Id, next.Id, frontier.Id)
	w.cursor = next.Id
	return next, nil
}

// Back moves the page to the previous visible question.  The
// Engine's current question doesn't change.  If there is no previous
// visible question, the page stays put.
func (w *Wizard) Back(ctx context.Context) (*core.Question, error) {
	p := w.Page()
	if p == nil {
		return nil, NoPage
	}

	prev, err := core.FindPrevVisible(ctx, w.Engine.Evaluator, p, w.Engine.Form().Questions, w.Engine.Responses())
	if err != nil {
		return p, err
	}
	if prev == nil {
		return p, nil
	}

	w.logf("Back %s -> %s", p.Id, prev.Id)
	w.cursor = prev.Id
	return prev, nil
}

// Upload sends the file to the Uploader and records the resulting
// core.FileRef as the answer for the question on the page.
//
// While the upload is in flight, the session is Uploading.  If the
// upload fails, the session goes to the Error state and the error
// is returned.
func (w *Wizard) Upload(ctx context.Context, filename string, body io.Reader) (*core.FileRef, error) {
	defer w.dispatch()

	p := w.Page()
	if p == nil {
		return nil, NoPage
	}
	if w.Uploader == nil {
		return nil, NoUploader
	}

	return drivers.Upload(ctx, w.Engine, w.Uploader, p.Id, filename, body)
}

// Restart clears the session's responses and starts over at the
// first visible question.
func (w *Wizard) Restart(ctx context.Context) (*core.Question, error) {
	defer w.dispatch()

	w.cursor = ""
	w.Engine.Restart()
	if err := w.Engine.StartInteraction(ctx, session.Wizard); err != nil {
		return nil, err
	}
	if err := drivers.Settle(ctx, w.Engine); err != nil {
		return nil, err
	}
	return w.Page(), nil
}

// Progress returns the position of the page among the currently
// visible questions and the number of visible questions.
func (w *Wizard) Progress(ctx context.Context) (int, int) {
	f := w.Engine.Form()
	if f == nil {
		return 0, 0
	}
	var (
		p     = w.Page()
		rs    = w.Engine.Responses()
		at    = 0
		total = 0
	)
	for _, q := range f.Questions {
		if !core.IsVisible(ctx, w.Engine.Evaluator, q, rs) {
			continue
		}
		total++
		if p != nil && q.Id == p.Id {
			at = total
		}
	}
	return at, total
}
