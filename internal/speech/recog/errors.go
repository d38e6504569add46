package recog

import "errors"

// Classified recognition failures. PermissionDenied and Unavailable are
// terminal for the voice modality; NoSpeech, Network and AudioCapture are
// transient; Timeout means no terminal event arrived inside the listen
// window.
var (
	ErrUnavailable      = errors.New("speech recognition unavailable")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNoSpeech         = errors.New("no speech detected")
	ErrAudioCapture     = errors.New("audio capture unavailable")
	ErrNetwork          = errors.New("recognition network failure")
	ErrTimeout          = errors.New("recognition timed out")
)

// Transient reports whether the error is worth an automatic retry.
func Transient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrAudioCapture)
}

// Terminal reports whether the error permanently disables voice input.
func Terminal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnavailable)
}

// classify maps a backend error string onto the taxonomy.
func classify(kind string) error {
	switch kind {
	case "no-speech":
		return ErrNoSpeech
	case "audio-capture":
		return ErrAudioCapture
	case "not-allowed", "permission-denied":
		return ErrPermissionDenied
	case "network":
		return ErrNetwork
	case "service-not-allowed", "unavailable":
		return ErrUnavailable
	default:
		return nil
	}
}
