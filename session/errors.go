package session

import "fmt"

// BadTransition occurs when a command is given in a state that
// doesn't support it.  The session isn't changed.
type BadTransition struct {
	Op     string
	State  DisplayState
	Reason string
}

func (e *BadTransition) Error() string {
	msg := fmt.Sprintf("can't %s in state %s", e.Op, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ResolutionInconsistency occurs when the current question id isn't
// in the session's form.  The session can't continue; Restart it.
type ResolutionInconsistency struct {
	FormId     string
	QuestionId string
}

func (e *ResolutionInconsistency) Error() string {
	return fmt.Sprintf(`current question "%s" not in form "%s"`, e.QuestionId, e.FormId)
}
