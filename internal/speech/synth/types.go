package synth

import (
	"context"
	"errors"
)

// ErrUnavailable indicates no synthesis backend can produce audio; callers
// degrade to text-only feedback.
var ErrUnavailable = errors.New("speech synthesis unavailable")

// Options control one utterance. Zero fields fall back to service defaults.
type Options struct {
	Rate     float64
	Pitch    float64
	Volume   float64
	Language string
	Voice    string
}

// Voice describes a synthesis voice advertised by a backend.
type Voice struct {
	Name     string
	Language string
	Local    bool
}

// Request is the resolved input handed to a backend.
type Request struct {
	SessionID string
	Text      string
	Options   Options
}

// Chunk carries synthesized PCM back from a backend.
type Chunk struct {
	SessionID  string
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
	Voices(ctx context.Context) ([]Voice, error)
}

// VoicePicker selects the voice used for every utterance of a service
// instance. It is resolved once at construction so the voice stays consistent
// across an exam, and injected so tests can override it.
type VoicePicker interface {
	Pick(ctx context.Context, available []Voice) (Voice, bool)
}
