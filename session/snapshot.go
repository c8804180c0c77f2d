package session

import "github.com/Comcast/formflow/core"

// Snapshot is a read-only view of a session for presentation
// drivers.  Session identity is available from the Engine.
type Snapshot struct {
	DisplayState      DisplayState   `json:"displayState"`
	CurrentQuestionId string         `json:"currentQuestionId,omitempty"`
	Responses         core.Responses `json:"responses"`

	// LastError is the error that put the session in the Error
	// state (if any).  Message is its text.
	LastError error  `json:"-"`
	Message   string `json:"lastError,omitempty"`
}

// Observer is notified after every change to a session.
type Observer interface {
	Notify(s *Snapshot)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(s *Snapshot)

func (f ObserverFunc) Notify(s *Snapshot) {
	f(s)
}
