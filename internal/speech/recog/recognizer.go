package recog

import "context"

// Transcript is the result of one recognition attempt.
type Transcript struct {
	Text       string
	Confidence float64
	Language   string
}

// Config narrows one listen operation.
type Config struct {
	Language        string
	MaxAlternatives int
	TimeoutMS       int
}

// Recognizer abstracts recognition backends. A nil pcm payload asks the
// backend to capture audio itself; a non-nil payload is raw little-endian
// 16-bit PCM delivered by the client. The sessionID identifies which dialog
// session the capture belongs to, so backends that receive input out of band
// can route it.
type Recognizer interface {
	Recognize(ctx context.Context, sessionID string, pcm []byte, cfg Config) (Transcript, error)
}
