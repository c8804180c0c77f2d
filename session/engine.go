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

package session

import (
	"context"
	"log"

	"github.com/Comcast/formflow/core"

	"github.com/google/uuid"
)

// Engine is the state machine for one session at a time.
//
// Use NewEngine to make one.
type Engine struct {
	// Evaluator decides question visibility.
	Evaluator core.ConditionEvaluator

	// Computer, if not nil, computes derived fields when the
	// session completes.
	Computer core.Computer

	// Continuity, if not nil, is consulted by BeginSession to
	// resume a session, and it's the destination for checkpoint
	// Intents.
	Continuity Continuity

	// NewSessionId generates session ids.
	NewSessionId func() string

	// LazyFirstQuestion, when true, makes StartInteraction use
	// the form's first question without checking its visibility.
	// Drivers then resolve the first visible question when they
	// render.
	LazyFirstQuestion bool

	// Verbose turns on logging.
	Verbose bool

	observers []Observer

	form      *core.Form
	sessionId string
	formId    string
	current   string
	state     DisplayState
	mode      Mode
	testMode  bool
	responses core.Responses
	lastError error
	fatal     bool

	outbox []*Intent
}

// NewEngine makes an Engine with the given evaluator.
func NewEngine(ev core.ConditionEvaluator) *Engine {
	return &Engine{
		Evaluator:    ev,
		NewSessionId: uuid.NewString,
	}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Verbose {
		log.Printf("session.Engine."+format, args...)
	}
}

// Subscribe adds an Observer, which will be notified after every
// change.
func (e *Engine) Subscribe(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *Engine) notify() {
	if len(e.observers) == 0 {
		return
	}
	s := e.Snapshot()
	for _, o := range e.observers {
		o.Notify(s)
	}
}

// SessionId returns the current session id ("" if BeginSession
// hasn't succeeded).
func (e *Engine) SessionId() string {
	return e.sessionId
}

func (e *Engine) FormId() string {
	return e.formId
}

func (e *Engine) TestMode() bool {
	return e.testMode
}

func (e *Engine) State() DisplayState {
	return e.state
}

func (e *Engine) Mode() Mode {
	return e.mode
}

// Fatal reports whether the session can only be Restarted (or
// replaced with BeginSession).
func (e *Engine) Fatal() bool {
	return e.fatal
}

// Mount records the mode of the driver now presenting an in-progress
// session.  Mount does nothing for a session that isn't Active,
// Uploading, or in the Error state.
func (e *Engine) Mount(mode Mode) error {
	if !mode.Valid() {
		return &BadTransition{Op: "mount", State: e.state, Reason: "unknown mode '" + string(mode) + "'"}
	}
	if e.sessionId == "" || !e.state.Interactive() || e.mode == mode {
		return nil
	}
	e.logf("Mount %s %s -> %s", e.sessionId, e.mode, mode)
	e.mode = mode
	e.emitCheckpoint()
	e.notify()
	return nil
}

// Form returns the session's form (or nil).
func (e *Engine) Form() *core.Form {
	return e.form
}

// Current returns the current question (or nil).
func (e *Engine) Current() *core.Question {
	if e.form == nil || e.current == "" {
		return nil
	}
	return e.form.Question(e.current)
}

// Responses returns a copy of the Response Map.
func (e *Engine) Responses() core.Responses {
	return e.responses.Copy()
}

// Snapshot returns the current view of the session.  The Responses
// in the Snapshot are a copy.
func (e *Engine) Snapshot() *Snapshot {
	s := &Snapshot{
		DisplayState:      e.state,
		CurrentQuestionId: e.current,
		Responses:         e.responses.Copy(),
		LastError:         e.lastError,
	}
	if e.lastError != nil {
		s.Message = e.lastError.Error()
	}
	return s
}

// TakeIntents returns and removes the accumulated Intents.
func (e *Engine) TakeIntents() []*Intent {
	is := e.outbox
	e.outbox = nil
	return is
}

func (e *Engine) emit(i *Intent) {
	e.outbox = append(e.outbox, i)
}

func (e *Engine) checkpoint() *Checkpoint {
	return &Checkpoint{
		SessionId:         e.sessionId,
		FormId:            e.formId,
		CurrentQuestionId: e.current,
		State:             e.state,
		Mode:              e.mode,
		TestMode:          e.testMode,
		Responses:         e.responses.Copy(),
		Updated:           core.Timestamp(),
	}
}

func (e *Engine) emitCheckpoint() {
	e.emit(&Intent{
		Kind:       IntentCheckpoint,
		SessionId:  e.sessionId,
		FormId:     e.formId,
		TestMode:   e.testMode,
		Checkpoint: e.checkpoint(),
		Continuity: e.Continuity,
	})
}

// fail puts the session in the Error state with the given error.
func (e *Engine) fail(err error) error {
	e.state = Error
	e.lastError = err
	e.notify()
	return err
}

func (e *Engine) inconsistent(qid string) error {
	e.fatal = true
	e.logf("inconsistent %s %s %s", e.sessionId, e.formId, qid)
	return e.fail(&ResolutionInconsistency{
		FormId:     e.formId,
		QuestionId: qid,
	})
}

// check returns an error if the session can't accept the command.
func (e *Engine) check(op string) error {
	if e.sessionId == "" || e.form == nil {
		return &BadTransition{
			Op:     op,
			State:  e.state,
			Reason: "no session",
		}
	}
	if e.fatal {
		return e.lastError
	}
	return nil
}

// answerKeys returns a copy of the given Responses without keys that
// aren't question ids or derived field ids.
func (e *Engine) answerKeys(form *core.Form, rs core.Responses) core.Responses {
	acc := core.NewResponses()
	for k, v := range rs.Copy() {
		if !form.IsAnswerKey(k) {
			e.logf("BeginSession dropping response for unknown id %s", k)
			continue
		}
		acc[k] = v
	}
	return acc
}

// BeginSession starts or resumes a session for the given form.
//
// If the Engine already has a session for formId that isn't Saved,
// that session is resumed (with the given form, which might be a
// newer version).  Responses for ids the form no longer has are
// dropped.  A session whose current question isn't in the form is
// not resumed.  Otherwise, if the Engine's Continuity has an
// in-progress Checkpoint for the form, that session is resumed.
// Otherwise, a new session starts in the Idle state with the given
// initial Responses.
//
// If formId is empty, the form's Id is used.  The form must be
// compiled.
func (e *Engine) BeginSession(ctx context.Context, form *core.Form, formId string, initial core.Responses, testMode bool) (string, error) {
	if form == nil {
		return "", &BadTransition{Op: "begin", State: e.state, Reason: "no form"}
	}
	if formId == "" {
		formId = form.Id
	}
	if !form.Compiled() {
		return "", &core.FormNotCompiled{FormId: formId}
	}

	if e.sessionId != "" && e.formId == formId && e.state != Saved {
		if e.current == "" || 0 <= form.Index(e.current) {
			e.logf("BeginSession resuming %s", e.sessionId)
			e.form = form
			e.responses = e.answerKeys(form, e.responses)
			e.emitCheckpoint()
			e.notify()
			return e.sessionId, nil
		}
		e.logf("BeginSession dropping %s at unknown %s", e.sessionId, e.current)
	}

	if c := e.resumable(ctx, form, formId); c != nil {
		e.logf("BeginSession restoring %s", c.SessionId)
		e.form = form
		e.sessionId = c.SessionId
		e.formId = formId
		e.current = c.CurrentQuestionId
		e.state = c.State
		e.mode = c.Mode
		e.testMode = c.TestMode
		e.responses = e.answerKeys(form, c.Responses)
		e.lastError = nil
		e.fatal = false
		if e.state == Uploading || e.state == Error {
			e.state = Active
		}
		e.notify()
		return e.sessionId, nil
	}

	gen := e.NewSessionId
	if gen == nil {
		gen = uuid.NewString
	}

	e.form = form
	e.sessionId = gen()
	e.formId = formId
	e.current = ""
	e.state = Idle
	e.mode = ""
	e.testMode = testMode
	e.responses = e.answerKeys(form, initial)
	e.lastError = nil
	e.fatal = false

	e.logf("BeginSession new %s for %s", e.sessionId, formId)

	e.emitCheckpoint()
	e.notify()

	return e.sessionId, nil
}

// resumable returns the stored Checkpoint for the form if that
// Checkpoint can be resumed.
func (e *Engine) resumable(ctx context.Context, form *core.Form, formId string) *Checkpoint {
	if e.Continuity == nil {
		return nil
	}
	c, err := e.Continuity.Load(ctx, formId)
	if err != nil {
		log.Printf("session.Engine continuity load error %s for %s", err, formId)
		return nil
	}
	if !c.InProgress() || c.FormId != formId {
		return nil
	}
	if c.CurrentQuestionId != "" && form.Index(c.CurrentQuestionId) < 0 {
		e.logf("BeginSession ignoring checkpoint %s at unknown %s", c.SessionId, c.CurrentQuestionId)
		return nil
	}
	return c
}

// StartInteraction moves an Idle session to Active in the given mode.
//
// Unless LazyFirstQuestion is set, the first question is checked for
// visibility (against the initial Responses).  If no question is
// visible, the session completes.
func (e *Engine) StartInteraction(ctx context.Context, mode Mode) error {
	if err := e.check("start"); err != nil {
		return err
	}
	if e.state != Idle {
		return &BadTransition{Op: "start", State: e.state}
	}
	if !mode.Valid() {
		return &BadTransition{Op: "start", State: e.state, Reason: "unknown mode '" + string(mode) + "'"}
	}

	e.mode = mode

	first := e.form.First()
	if first != nil && !e.LazyFirstQuestion {
		first = core.FirstVisible(ctx, e.Evaluator, e.form.Questions, e.responses)
	}
	if first == nil {
		e.logf("StartInteraction %s nothing to ask", e.sessionId)
		e.complete(ctx)
		return nil
	}

	e.current = first.Id
	e.state = Active
	e.lastError = nil

	e.emitCheckpoint()
	e.notify()

	return nil
}

// RecordAnswer writes an answer for the given question.
//
// The question doesn't have to be the current one, but it has to be
// in the form.  An unknown question or an empty answer to a required
// question is a *core.ValidationError: the session goes to the Error
// state and the Response Map is not changed.
//
// Two pseudo-answers drive file uploads: core.UploadPending moves
// the session to Uploading, and core.UploadFailed moves it to Error.
// Neither touches the Response Map.
func (e *Engine) RecordAnswer(ctx context.Context, questionId string, value interface{}) error {
	if err := e.check("answer"); err != nil {
		return err
	}
	if !e.state.Interactive() {
		return &BadTransition{Op: "answer", State: e.state}
	}

	q := e.form.Question(questionId)
	if q == nil {
		return e.fail(&core.ValidationError{
			QuestionId: questionId,
			Message:    "unknown question",
		})
	}

	switch vv := value.(type) {
	case core.UploadPending, *core.UploadPending:
		e.state = Uploading
		e.lastError = nil
		e.notify()
		return nil
	case core.UploadFailed:
		return e.fail(&core.ValidationError{
			QuestionId: questionId,
			Message:    vv.Error(),
		})
	case *core.UploadFailed:
		return e.fail(&core.ValidationError{
			QuestionId: questionId,
			Message:    vv.Error(),
		})
	}

	if q.Required && core.IsEmptyAnswer(value) {
		return e.fail(&core.ValidationError{
			QuestionId: questionId,
			Message:    "an answer is required",
		})
	}

	e.responses[questionId] = value
	e.state = Active
	e.lastError = nil

	e.emit(&Intent{
		Kind:       IntentPartial,
		SessionId:  e.sessionId,
		FormId:     e.formId,
		TestMode:   e.testMode,
		QuestionId: questionId,
		Value:      core.CopyValue(value),
	})
	e.emitCheckpoint()
	e.notify()

	return nil
}

// Advance moves to the next visible question.
//
// An unanswered required question blocks Advance only while it's
// visible.  Changing an earlier answer can hide the current
// question, and then Advance just moves on.
//
// If there is no next visible question, the session completes: the
// derived fields are computed, a final Intent is emitted, and the
// session goes to Completed and then Saved.  In that case, Advance
// returns nil.
//
// Advance is refused with a *BadTransition while the session is in
// the Error state because of a validation error.  The next
// acceptable RecordAnswer clears that error.
func (e *Engine) Advance(ctx context.Context) (*core.Question, error) {
	if err := e.check("advance"); err != nil {
		return nil, err
	}
	switch e.state {
	case Active:
	case Error:
		reason := "outstanding error"
		if e.lastError != nil {
			reason = e.lastError.Error()
		}
		return nil, &BadTransition{Op: "advance", State: e.state, Reason: reason}
	default:
		return nil, &BadTransition{Op: "advance", State: e.state}
	}

	q := e.form.Question(e.current)
	if q == nil {
		return nil, e.inconsistent(e.current)
	}

	if x, have := e.responses[q.Id]; q.Required && (!have || core.IsEmptyAnswer(x)) &&
		core.IsVisible(ctx, e.Evaluator, q, e.responses) {
		return nil, e.fail(&core.ValidationError{
			QuestionId: q.Id,
			Message:    "an answer is required",
		})
	}

	next, err := core.FindNextVisible(ctx, e.Evaluator, q, e.form.Questions, e.responses)
	if err != nil {
		return nil, e.inconsistent(e.current)
	}

	if next == nil {
		e.complete(ctx)
		return nil, nil
	}

	e.logf("Advance %s %s -> %s", e.sessionId, e.current, next.Id)

	e.current = next.Id

	e.emitCheckpoint()
	e.notify()

	return next, nil
}

// complete runs the derived pass, emits the final save, and moves to
// Completed and then Saved.
func (e *Engine) complete(ctx context.Context) {
	rs, problems := core.ComputeDerived(ctx, e.Computer, e.form.Derived, e.responses)
	for _, err := range problems {
		log.Printf("session.Engine derived field error %s for session %s", err, e.sessionId)
	}
	e.responses = rs

	e.emit(&Intent{
		Kind:      IntentFinal,
		SessionId: e.sessionId,
		FormId:    e.formId,
		TestMode:  e.testMode,
		Responses: e.responses.Copy(),
	})

	e.current = ""
	e.lastError = nil
	e.state = Completed
	e.notify()

	e.state = Saved
	e.emitCheckpoint()
	e.notify()
}

// Restart clears the Response Map, the current question, and any
// error, and returns the session to Idle.  The session id, form id,
// and test mode are kept.
func (e *Engine) Restart() {
	if e.sessionId == "" {
		return
	}

	e.logf("Restart %s", e.sessionId)

	e.responses = core.NewResponses()
	e.current = ""
	e.state = Idle
	e.mode = ""
	e.lastError = nil
	e.fatal = false

	e.emitCheckpoint()
	e.notify()
}
