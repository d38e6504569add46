package dialog

// State identifies where a question's confirmation cycle currently is.
type State string

const (
	StateIdle         State = "idle"
	StateAnnouncing   State = "announcing"
	StateListening    State = "listening"
	StateInterpreting State = "interpreting"
	StateAwaiting     State = "awaiting_confirmation"
	StateUnmatched    State = "unmatched"
	StateManual       State = "manual_fallback"
	StateCommitted    State = "committed"
	StateCancelled    State = "cancelled"
)

func (s State) String() string { return string(s) }

// Terminal reports whether the cycle for this question is over. Cancelled is
// not terminal: a cancelled candidate re-enters listening for a fresh try.
func (s State) Terminal() bool { return s == StateCommitted }
