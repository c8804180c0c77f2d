package session

// DisplayState is the lifecycle state of a session.
type DisplayState string

const (
	// Idle is the state after BeginSession and Restart.
	Idle DisplayState = "idle"

	// Active means a question is current.
	Active DisplayState = "active"

	// Uploading means a file upload for some question is in
	// progress.
	Uploading DisplayState = "uploading"

	// Error means the last command failed.  See Snapshot.Fatal.
	Error DisplayState = "error"

	// Completed is the brief state between the last Advance and
	// Saved.
	Completed DisplayState = "completed"

	// Saved is terminal.
	Saved DisplayState = "saved"
)

func (s DisplayState) String() string {
	if s == "" {
		return "none"
	}
	return string(s)
}

// Interactive reports whether the state accepts answers.
func (s DisplayState) Interactive() bool {
	switch s {
	case Active, Uploading, Error:
		return true
	}
	return false
}

// Mode is the interaction paradigm of a session.
type Mode string

const (
	Conversational Mode = "conversational"
	Wizard         Mode = "wizard"
)

// Valid reports whether the Mode is known.
func (m Mode) Valid() bool {
	return m == Conversational || m == Wizard
}
