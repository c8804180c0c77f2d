// Package conversational is a chat-style driver for a
// session.Engine.
//
// A Conversation asks the Engine's current question as an assistant
// turn and waits for user turns.  It never moves on by itself.  Every
// user trigger names the question it's for, and a trigger for any
// question other than the Engine's current one is discarded with
// ErrStaleTurn.  Turns can arrive out of order relative to state
// changes caused by other events, so a stale turn is routine.
package conversational

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/drivers"
	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/upload"
)

var (
	ErrStaleTurn = errors.New("stale turn")

	NoUploader = errors.New("no uploader")

	// DefaultClosing is the assistant's last words.
	DefaultClosing = "Thanks! Your responses have been saved."
)

type Role string

const (
	Assistant Role = "assistant"
	User      Role = "user"
)

// Entry is one line of a Transcript.
type Entry struct {
	Role       Role        `json:"role"`
	QuestionId string      `json:"questionId,omitempty"`
	Text       string      `json:"text,omitempty"`
	Value      interface{} `json:"value,omitempty"`

	// Error is the message for a rejected user turn.
	Error string `json:"error,omitempty"`

	At string `json:"at"`
}

// Turn is something the user said about a question.
type Turn struct {
	QuestionId string `json:"questionId"`

	// Text is what the user typed.
	Text string `json:"text,omitempty"`

	// Value, if not nil, is the answer.  Otherwise Text is the
	// answer.
	Value interface{} `json:"value,omitempty"`
}

// Answer returns the turn's answer.
func (t *Turn) Answer() interface{} {
	if t.Value != nil {
		return t.Value
	}
	return t.Text
}

type Conversation struct {
	Engine *session.Engine

	// Dispatcher, if not nil, receives the Engine's Intents after
	// each command.
	Dispatcher session.Dispatcher

	// Uploader handles file uploads.
	Uploader upload.Uploader

	// Closing is said when the session completes.
	Closing string

	Verbose bool

	sync.Mutex
	transcript []*Entry
}

func NewConversation(e *session.Engine, d session.Dispatcher) *Conversation {
	return &Conversation{
		Engine:     e,
		Dispatcher: d,
		Closing:    DefaultClosing,
	}
}

func (c *Conversation) logf(format string, args ...interface{}) {
	if c.Verbose {
		log.Printf("conversational."+format, args...)
	}
}

func (c *Conversation) dispatch() {
	drivers.Dispatch(c.Engine, c.Dispatcher)
}

func (c *Conversation) say(e *Entry) {
	e.At = core.Timestamp()
	c.Lock()
	c.transcript = append(c.transcript, e)
	c.Unlock()
}

// Prompt is what the assistant says to ask the question.
func Prompt(q *core.Question) string {
	p := q.Prompt
	if p == "" {
		p = q.Id
	}
	if len(q.Options) == 0 {
		return p
	}
	return fmt.Sprintf("%s (%s)", p, strings.Join(q.Options, ", "))
}

// ask says the current question (or the closing).
func (c *Conversation) ask() *core.Question {
	q := c.Engine.Current()
	if q != nil {
		c.say(&Entry{
			Role:       Assistant,
			QuestionId: q.Id,
			Text:       Prompt(q),
		})
		return q
	}
	if s := c.Engine.State(); s == session.Saved || s == session.Completed {
		c.say(&Entry{
			Role: Assistant,
			Text: c.Closing,
		})
	}
	return nil
}

// Start begins (or resumes) a session for the form, starts the
// interaction if the session is new, and asks the current question.
func (c *Conversation) Start(ctx context.Context, form *core.Form, formId string, initial core.Responses, testMode bool) (*core.Question, error) {
	defer c.dispatch()

	if _, err := c.Engine.BeginSession(ctx, form, formId, initial, testMode); err != nil {
		return nil, err
	}
	if c.Engine.State() == session.Idle {
		if err := c.Engine.StartInteraction(ctx, session.Conversational); err != nil {
			return nil, err
		}
	} else if err := c.Engine.Mount(session.Conversational); err != nil {
		return nil, err
	}
	if err := drivers.Settle(ctx, c.Engine); err != nil {
		return nil, err
	}
	return c.ask(), nil
}

// Current returns the question the conversation is waiting on.
func (c *Conversation) Current() *core.Question {
	return c.Engine.Current()
}

func (c *Conversation) fresh(questionId string) error {
	q := c.Engine.Current()
	if q == nil || q.Id != questionId {
		c.logf("stale turn for %s", questionId)
		return ErrStaleTurn
	}
	return nil
}

// Reply records the user's answer.  The conversation doesn't move on
// until Continue.
func (c *Conversation) Reply(ctx context.Context, t Turn) error {
	defer c.dispatch()

	if err := c.fresh(t.QuestionId); err != nil {
		return err
	}

	e := &Entry{
		Role:       User,
		QuestionId: t.QuestionId,
		Text:       t.Text,
		Value:      core.CopyValue(t.Value),
	}
	err := c.Engine.RecordAnswer(ctx, t.QuestionId, t.Answer())
	if err != nil {
		e.Error = err.Error()
	}
	c.say(e)

	return err
}

// Continue moves past the given question, which must be the current
// one, and asks the next question (if any).
//
// A nil question with a nil error means the session completed.
func (c *Conversation) Continue(ctx context.Context, questionId string) (*core.Question, error) {
	defer c.dispatch()

	if err := c.fresh(questionId); err != nil {
		return nil, err
	}
	if _, err := c.Engine.Advance(ctx); err != nil {
		c.say(&Entry{
			Role:       Assistant,
			QuestionId: questionId,
			Error:      err.Error(),
		})
		return nil, err
	}
	return c.ask(), nil
}

// Upload sends the file to the Uploader and records the resulting
// core.FileRef as the answer for the given question, which must be
// the current one.
func (c *Conversation) Upload(ctx context.Context, questionId, filename string, body io.Reader) (*core.FileRef, error) {
	defer c.dispatch()

	if err := c.fresh(questionId); err != nil {
		return nil, err
	}
	if c.Uploader == nil {
		return nil, NoUploader
	}

	ref, err := drivers.Upload(ctx, c.Engine, c.Uploader, questionId, filename, body)
	e := &Entry{
		Role:       User,
		QuestionId: questionId,
		Text:       filename,
	}
	if err != nil {
		e.Error = err.Error()
	} else {
		e.Value = ref
	}
	c.say(e)

	return ref, err
}

// Restart clears the session's responses and the transcript and
// asks the first question again.
func (c *Conversation) Restart(ctx context.Context) (*core.Question, error) {
	defer c.dispatch()

	c.Lock()
	c.transcript = nil
	c.Unlock()

	c.Engine.Restart()
	if err := c.Engine.StartInteraction(ctx, session.Conversational); err != nil {
		return nil, err
	}
	if err := drivers.Settle(ctx, c.Engine); err != nil {
		return nil, err
	}
	return c.ask(), nil
}

// Transcript returns a copy of the conversation so far.
func (c *Conversation) Transcript() []Entry {
	c.Lock()
	defer c.Unlock()
	acc := make([]Entry, len(c.transcript))
	for i, e := range c.transcript {
		acc[i] = *e
	}
	return acc
}
