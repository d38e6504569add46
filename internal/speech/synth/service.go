package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxexam-labs/voxexam-core/internal/bus"
	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/protocol"
	"github.com/voxexam-labs/voxexam-core/internal/speech/normalize"
)

// Service speaks text and returns when playback audio has been fully
// produced, so callers can sequence announce-then-listen. Each session has
// at most one utterance in flight; starting a new one cancels that session's
// prior utterance without touching other sessions.
type Service struct {
	cfg     config.SynthesisConfig
	backend Synthesizer
	bus     *bus.Client
	logger  *slog.Logger
	voice   Voice

	mu         sync.Mutex
	utterances map[string]*utterance
}

type utterance struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService resolves the voice once through the picker so it stays stable
// for the life of the service.
func NewService(ctx context.Context, cfg config.SynthesisConfig, backend Synthesizer, picker VoicePicker, busClient *bus.Client, logger *slog.Logger) *Service {
	s := &Service{
		cfg:        cfg,
		backend:    backend,
		bus:        busClient,
		logger:     logger.With(slog.String("component", "synth-service")),
		utterances: make(map[string]*utterance),
	}
	s.voice = Voice{Name: cfg.Voice, Language: cfg.Language}
	if backend != nil && picker != nil {
		if available, err := backend.Voices(ctx); err != nil {
			s.logger.Warn("voice query failed, using configured voice", slogError(err))
		} else if v, ok := picker.Pick(ctx, available); ok {
			s.voice = v
			s.logger.Info("voice selected", slog.String("voice", v.Name), slog.String("language", v.Language))
		}
	}
	return s
}

// Voice reports the voice resolved at construction.
func (s *Service) Voice() Voice { return s.voice }

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.backend != nil }

// Speak normalizes text for pronunciation, cancels any in-flight utterance,
// and blocks until the backend reports the final audio chunk or fails.
func (s *Service) Speak(ctx context.Context, sessionID, text string, opts Options) error {
	if !s.cfg.Enabled || s.backend == nil {
		return ErrUnavailable
	}

	opts = s.withDefaults(opts)
	req := Request{
		SessionID: sessionID,
		Text:      normalize.ForSynthesis(text),
		Options:   opts,
	}

	utterCtx := s.beginUtterance(ctx, sessionID)
	defer s.endUtterance(sessionID, utterCtx)

	chunks, errs := s.backend.Synthesize(utterCtx, req)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			s.publishChunk(chunk)
			if chunk.Final {
				s.publishDone(sessionID, "")
				return nil
			}
		case err, ok := <-errs:
			if ok && err != nil {
				s.publishDone(sessionID, err.Error())
				return fmt.Errorf("synthesize: %w", err)
			}
			errs = nil
		case <-utterCtx.Done():
			s.publishDone(sessionID, utterCtx.Err().Error())
			return utterCtx.Err()
		}
		if chunks == nil && errs == nil {
			// Backend closed both channels without a final chunk.
			s.publishDone(sessionID, "")
			return nil
		}
	}
}

// beginUtterance cancels whatever the session was speaking and registers the
// new utterance as its current one.
func (s *Service) beginUtterance(ctx context.Context, sessionID string) context.Context {
	utterCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if prev, ok := s.utterances[sessionID]; ok {
		prev.cancel()
	}
	s.utterances[sessionID] = &utterance{ctx: utterCtx, cancel: cancel}
	s.mu.Unlock()
	return utterCtx
}

func (s *Service) endUtterance(sessionID string, utterCtx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.utterances[sessionID]; ok && cur.ctx == utterCtx {
		cur.cancel()
		delete(s.utterances, sessionID)
	}
}

// Stop cancels every in-flight utterance; used at teardown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.utterances {
		cur.cancel()
		delete(s.utterances, id)
	}
}

func (s *Service) withDefaults(opts Options) Options {
	if opts.Rate == 0 {
		opts.Rate = s.cfg.Rate
	}
	if opts.Pitch == 0 {
		opts.Pitch = s.cfg.Pitch
	}
	if opts.Volume == 0 {
		opts.Volume = s.cfg.Volume
	}
	if opts.Language == "" {
		opts.Language = s.cfg.Language
	}
	if opts.Voice == "" {
		opts.Voice = s.voice.Name
	}
	return opts
}

func (s *Service) publishChunk(chunk Chunk) {
	packet := protocol.AudioChunk{
		SessionID:  chunk.SessionID,
		Sequence:   chunk.Sequence,
		SampleRate: chunk.SampleRate,
		Channels:   chunk.Channels,
		PCM:        chunk.PCM,
		Final:      chunk.Final,
	}
	data, err := json.Marshal(packet)
	if err != nil {
		s.logger.Warn("failed to marshal audio chunk", slogError(err))
		return
	}
	if err := s.bus.Publish(protocol.SubjectSynthAudio, data); err != nil {
		s.logger.Warn("failed to publish audio chunk", slogError(err))
	}
}

func (s *Service) publishDone(sessionID, errMsg string) {
	msg := protocol.SynthStatus{
		SessionID: sessionID,
		Completed: errMsg == "",
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
	if data, err := json.Marshal(msg); err == nil {
		_ = s.bus.Publish(protocol.SubjectSynthDone, data)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
