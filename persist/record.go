package persist

import (
	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/session"
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Record is what gets sent to a remote store.
type Record struct {
	SessionId    string         `json:"sessionId" bson:"sessionId"`
	FormId       string         `json:"formId,omitempty" bson:"formId,omitempty"`
	QuestionId   string         `json:"questionId,omitempty" bson:"questionId,omitempty"`
	Value        interface{}    `json:"value,omitempty" bson:"value,omitempty"`
	AllResponses core.Responses `json:"allResponses,omitempty" bson:"allResponses,omitempty"`
	IsPartial    bool           `json:"isPartial" bson:"isPartial"`
	Status       string         `json:"status" bson:"status"`
	TestMode     bool           `json:"testMode" bson:"testMode"`

	// Timestamp is when the Record was made (RFC3339Nano).
	Timestamp string `json:"timestamp" bson:"timestamp"`
}

// RecordOf makes a Record for a partial or final Intent.  Returns nil
// for other Intents.
func RecordOf(i *session.Intent) *Record {
	if i == nil {
		return nil
	}
	r := &Record{
		SessionId: i.SessionId,
		FormId:    i.FormId,
		TestMode:  i.TestMode,
		Timestamp: core.Timestamp(),
	}
	switch i.Kind {
	case session.IntentPartial:
		r.QuestionId = i.QuestionId
		r.Value = i.Value
		r.IsPartial = true
		r.Status = StatusInProgress
	case session.IntentFinal:
		r.AllResponses = i.Responses
		r.Status = StatusCompleted
	default:
		return nil
	}
	return r
}
