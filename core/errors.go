package core

// These errors are mostly user errors (bad forms, stale ids), not
// internal errors.

// FormNotCompiled occurs when a Form is used before it has been
// Compile()ed.
type FormNotCompiled struct {
	FormId string
}

func (e *FormNotCompiled) Error() string {
	return `form "` + e.FormId + `" not compiled`
}

// UnknownQuestion occurs when a question id isn't in the Form.
type UnknownQuestion struct {
	FormId     string
	QuestionId string
}

func (e *UnknownQuestion) Error() string {
	if e.FormId == "" {
		return `question "` + e.QuestionId + `" not found`
	}
	return `question "` + e.QuestionId + `" not found in form "` + e.FormId + `"`
}

// DuplicateQuestion occurs when two questions in a Form share an id.
type DuplicateQuestion struct {
	FormId     string
	QuestionId string
}

func (e *DuplicateQuestion) Error() string {
	return `duplicate question "` + e.QuestionId + `" in form "` + e.FormId + `"`
}

// BadQuestion occurs when Compile finds a question it can't use.
type BadQuestion struct {
	FormId   string
	Position int
	Problem  string
}

func (e *BadQuestion) Error() string {
	return `bad question at position ` + itoa(e.Position) + ` in form "` + e.FormId + `": ` + e.Problem
}

// DerivedCollision occurs when a derived field id is empty, repeated,
// or the same as a question id.
type DerivedCollision struct {
	FormId string
	Id     string
}

func (e *DerivedCollision) Error() string {
	return `derived field "` + e.Id + `" collides in form "` + e.FormId + `"`
}

// DerivedFailed reports a derived field that couldn't be computed.
type DerivedFailed struct {
	Id  string
	Err error
}

func (e *DerivedFailed) Error() string {
	return `derived field "` + e.Id + `": ` + e.Err.Error()
}

func (e *DerivedFailed) Unwrap() error {
	return e.Err
}

// ValidationError is a problem with a specific answer.  These errors
// are recoverable: the next acceptable answer clears them.
type ValidationError struct {
	QuestionId string `json:"questionId"`
	Message    string `json:"message"`
}

func (e *ValidationError) Error() string {
	return `question "` + e.QuestionId + `": ` + e.Message
}
