package recog

import (
	"context"
	"sync"
)

// PushRecognizer adapts externally produced transcripts to the Recognizer
// contract. Browser clients do their own audio capture and recognition, then
// post the transcript up; Recognize blocks until one arrives for its session
// or the capture context ends. Each session has its own mailbox, so one
// client's transcript can never reach another client's listener.
type PushRecognizer struct {
	mu        sync.Mutex
	mailboxes map[string]chan pushed
}

type pushed struct {
	text       string
	confidence float64
}

func NewPushRecognizer() *PushRecognizer {
	return &PushRecognizer{mailboxes: make(map[string]chan pushed)}
}

// Inject delivers a transcript to the session's waiting listener. Returns
// false when the session is not listening or its mailbox is full.
func (p *PushRecognizer) Inject(sessionID, text string, confidence float64) bool {
	p.mu.Lock()
	ch, ok := p.mailboxes[sessionID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- pushed{text: text, confidence: confidence}:
		return true
	default:
		return false
	}
}

func (p *PushRecognizer) Recognize(ctx context.Context, sessionID string, _ []byte, cfg Config) (Transcript, error) {
	ch := p.open(sessionID)
	defer p.close(sessionID, ch)

	select {
	case in := <-ch:
		if in.text == "" {
			return Transcript{}, ErrNoSpeech
		}
		return Transcript{Text: in.text, Confidence: in.confidence, Language: cfg.Language}, nil
	case <-ctx.Done():
		return Transcript{}, ctx.Err()
	}
}

// open installs a fresh mailbox for the session. A replaced listener is
// always one the service has already cancelled, and close only removes the
// entry it installed, so overlapping captures on one session cannot tear
// down each other's mailbox.
func (p *PushRecognizer) open(sessionID string) chan pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan pushed, 1)
	p.mailboxes[sessionID] = ch
	return ch
}

func (p *PushRecognizer) close(sessionID string, ch chan pushed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mailboxes[sessionID] == ch {
		delete(p.mailboxes, sessionID)
	}
}
