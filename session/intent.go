package session

import (
	"context"

	"github.com/Comcast/formflow/core"
)

// IntentKind says what an Intent wants done.
type IntentKind string

const (
	// IntentPartial asks to save one answer.
	IntentPartial IntentKind = "partial"

	// IntentFinal asks to save all responses of a completed
	// session.
	IntentFinal IntentKind = "final"

	// IntentCheckpoint asks to save the session's Checkpoint so
	// that the session can be resumed later.
	IntentCheckpoint IntentKind = "checkpoint"
)

// Intent is a request for IO that an Engine emits instead of doing
// the IO itself.
type Intent struct {
	Kind      IntentKind `json:"kind"`
	SessionId string     `json:"sessionId"`
	FormId    string     `json:"formId"`
	TestMode  bool       `json:"testMode"`

	// QuestionId and Value are given for IntentPartial.
	QuestionId string      `json:"questionId,omitempty"`
	Value      interface{} `json:"value,omitempty"`

	// Responses is given for IntentFinal.  It includes any derived
	// fields.
	Responses core.Responses `json:"allResponses,omitempty"`

	// Checkpoint is given for IntentCheckpoint.
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`

	// Continuity is where the Checkpoint should go.
	Continuity Continuity `json:"-"`
}

// Key is the ordering key for the Intent.  Intents with the same key
// should be handled in the order they were emitted.
func (i *Intent) Key() string {
	if i.Kind == IntentPartial {
		return i.SessionId + "/" + i.QuestionId
	}
	return i.SessionId
}

// Dispatcher accepts Intents for asynchronous processing.
//
// Enqueue must not block.
type Dispatcher interface {
	Enqueue(is ...*Intent)
}

// DispatcherFunc adapts a function to a Dispatcher.
type DispatcherFunc func(is ...*Intent)

func (f DispatcherFunc) Enqueue(is ...*Intent) {
	f(is...)
}

// Checkpoint is what's needed to resume a session.
type Checkpoint struct {
	SessionId         string         `json:"sessionId"`
	FormId            string         `json:"formId"`
	CurrentQuestionId string         `json:"currentQuestionId,omitempty"`
	State             DisplayState   `json:"state"`
	Mode              Mode           `json:"mode,omitempty"`
	TestMode          bool           `json:"testMode"`
	Responses         core.Responses `json:"responses"`

	// Updated is a timestamp in RFC3339Nano.
	Updated string `json:"updated"`
}

// InProgress reports whether the Checkpoint is for a session that
// can be resumed.
func (c *Checkpoint) InProgress() bool {
	if c == nil || c.SessionId == "" {
		return false
	}
	switch c.State {
	case Completed, Saved, "":
		return false
	}
	return true
}

// Continuity is durable storage for Checkpoints.
//
// A Continuity is scoped to one respondent (or device), so it has at
// most one Checkpoint per form.
type Continuity interface {
	// Load returns the Checkpoint for the form, or nil if there
	// isn't one.
	Load(ctx context.Context, formId string) (*Checkpoint, error)

	Save(ctx context.Context, c *Checkpoint) error

	Remove(ctx context.Context, formId string) error
}
