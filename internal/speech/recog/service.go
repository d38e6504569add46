package recog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxexam-labs/voxexam-core/internal/bus"
	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/protocol"
)

// Service captures one utterance per call. Sessions are independent so
// concurrent attempts never interfere, but within a session at most one
// capture is active; starting a new one stops the prior. Transient backend
// failures are retried automatically up to the configured bound, terminal
// ones surface immediately.
type Service struct {
	cfg     config.RecognitionConfig
	backend Recognizer
	bus     *bus.Client
	logger  *slog.Logger

	mu       sync.Mutex
	captures map[string]*capture
}

type capture struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(cfg config.RecognitionConfig, backend Recognizer, busClient *bus.Client, logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		backend:  backend,
		bus:      busClient,
		logger:   logger.With(slog.String("component", "recog-service")),
		captures: make(map[string]*capture),
	}
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.backend != nil }

// ExamConfig returns the listen configuration for the exam answer flow.
func (s *Service) ExamConfig() Config {
	return Config{
		Language:        s.cfg.ExamLanguage,
		MaxAlternatives: s.cfg.MaxAlternatives,
		TimeoutMS:       s.cfg.ListenTimeoutMS,
	}
}

// VerifyConfig returns the listen configuration for the verification flow.
// The language differs from the exam flow on purpose; the two defaults are
// configured independently.
func (s *Service) VerifyConfig() Config {
	cfg := s.ExamConfig()
	cfg.Language = s.cfg.VerifyLanguage
	return cfg
}

// ListenOnce asks the backend to capture and transcribe a single utterance.
func (s *Service) ListenOnce(ctx context.Context, sessionID string, cfg Config) (Transcript, error) {
	return s.listen(ctx, sessionID, nil, cfg)
}

// TranscribePCM recognizes client-delivered PCM instead of capturing.
func (s *Service) TranscribePCM(ctx context.Context, sessionID string, pcm []byte, cfg Config) (Transcript, error) {
	return s.listen(ctx, sessionID, pcm, cfg)
}

func (s *Service) listen(ctx context.Context, sessionID string, pcm []byte, cfg Config) (Transcript, error) {
	if !s.cfg.Enabled || s.backend == nil {
		return Transcript{}, ErrUnavailable
	}
	if cfg.Language == "" {
		cfg.Language = s.cfg.ExamLanguage
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = s.cfg.MaxAlternatives
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = s.cfg.ListenTimeoutMS
	}

	captureCtx := s.beginCapture(ctx, sessionID, cfg)
	defer s.endCapture(sessionID, captureCtx)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.TransientRetries; attempt++ {
		result, err := s.backend.Recognize(captureCtx, sessionID, pcm, cfg)
		if err == nil {
			result.Language = cfg.Language
			s.publishTranscript(sessionID, result)
			return result, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Transcript{}, ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return Transcript{}, err
		}
		if !Transient(err) {
			return Transcript{}, err
		}
		lastErr = err
		s.logger.Warn("transient recognition failure, retrying",
			slog.Int("attempt", attempt+1), slogError(err))
	}
	return Transcript{}, lastErr
}

// beginCapture stops whatever the session was already listening to and
// bounds the new capture by the listen timeout. Other sessions are left
// alone.
func (s *Service) beginCapture(ctx context.Context, sessionID string, cfg Config) context.Context {
	captureCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	s.mu.Lock()
	if prev, ok := s.captures[sessionID]; ok {
		prev.cancel()
	}
	s.captures[sessionID] = &capture{ctx: captureCtx, cancel: cancel}
	s.mu.Unlock()
	return captureCtx
}

func (s *Service) endCapture(sessionID string, captureCtx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.captures[sessionID]; ok && cur.ctx == captureCtx {
		cur.cancel()
		delete(s.captures, sessionID)
	}
}

// Stop cancels every active capture; used at teardown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.captures {
		cur.cancel()
		delete(s.captures, id)
	}
}

func (s *Service) publishTranscript(sessionID string, result Transcript) {
	msg := protocol.Transcript{
		SessionID:  sessionID,
		Text:       result.Text,
		Language:   result.Language,
		Confidence: result.Confidence,
		Timestamp:  time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal transcript", slogError(err))
		return
	}
	if err := s.bus.Publish(protocol.SubjectTranscriptFinal, data); err != nil {
		s.logger.Warn("failed to publish transcript", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
