package interpret

import "strings"

// IntentKind classifies confirmation-phase transcripts.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentConfirm
	IntentReject
	IntentRepeat
)

func (k IntentKind) String() string {
	switch k {
	case IntentConfirm:
		return "confirm"
	case IntentReject:
		return "reject"
	case IntentRepeat:
		return "repeat"
	default:
		return "none"
	}
}

var (
	confirmWords = []string{"yes", "confirm", "submit", "correct", "yeah", "yep"}
	rejectWords  = []string{"no", "change", "different", "wrong", "nope"}
	repeatWords  = []string{"repeat", "again"}
)

// Intent scans a transcript for confirmation keywords. Confirm outranks
// reject, reject outranks repeat, so "no, repeat that" rejects.
func Intent(transcript string) IntentKind {
	words := strings.Fields(strings.ToLower(transcript))
	has := func(vocab []string) bool {
		for _, w := range words {
			w = strings.Trim(w, ".,!?")
			for _, v := range vocab {
				if w == v {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has(confirmWords):
		return IntentConfirm
	case has(rejectWords):
		return IntentReject
	case has(repeatWords):
		return IntentRepeat
	default:
		return IntentNone
	}
}
