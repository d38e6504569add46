package recog

import (
	"context"
	"sync"
	"time"
)

type mockRecognizer struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	next      int
	delay     time.Duration
}

// NewMockRecognizer cycles through the given transcripts, pairing each with
// the error at the same position when one is scripted. With no responses it
// reports no speech.
func NewMockRecognizer(responses ...string) Recognizer {
	return &mockRecognizer{responses: responses, delay: 5 * time.Millisecond}
}

// NewScriptedRecognizer pairs transcripts with errors positionally; an empty
// text with a non-nil error yields that error for the attempt.
func NewScriptedRecognizer(responses []string, errs []error) Recognizer {
	return &mockRecognizer{responses: responses, errs: errs, delay: 5 * time.Millisecond}
}

func (m *mockRecognizer) Recognize(ctx context.Context, _ string, _ []byte, _ Config) (Transcript, error) {
	select {
	case <-ctx.Done():
		return Transcript{}, ctx.Err()
	case <-time.After(m.delay):
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 && len(m.errs) == 0 {
		return Transcript{}, ErrNoSpeech
	}
	i := m.next
	m.next++
	if i < len(m.errs) && m.errs[i] != nil {
		return Transcript{}, m.errs[i]
	}
	if i >= len(m.responses) {
		return Transcript{}, ErrNoSpeech
	}
	return Transcript{Text: m.responses[i], Confidence: 0.9}, nil
}
