package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/exam"
)

// Manager tracks the active controller per attempt. Starting a question tears
// down the attempt's previous controller first, so one question's speech
// resources never outlive the move to the next.
type Manager struct {
	cfg    config.DialogConfig
	deps   Deps
	exams  *exam.Service
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Controller
}

func NewManager(cfg config.DialogConfig, exams *exam.Service, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		deps:   deps,
		exams:  exams,
		logger: logger.With(slog.String("component", "dialog-manager")),
		active: make(map[string]*Controller),
	}
}

// StartQuestion spins up a controller for the attempt's current question and
// begins its voice loop.
func (m *Manager) StartQuestion(ctx context.Context, attemptID string) (*Controller, error) {
	a, err := m.exams.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != exam.AttemptInProgress {
		return nil, exam.ErrAttemptClosed
	}
	e, err := m.exams.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if a.Current >= len(e.Questions) {
		return nil, fmt.Errorf("attempt has no remaining questions")
	}

	ctrl := NewController(m.cfg, attemptID, a.Current, e.Questions[a.Current], m.deps)

	m.mu.Lock()
	if prev, ok := m.active[attemptID]; ok {
		prev.Stop()
	}
	m.active[attemptID] = ctrl
	m.mu.Unlock()

	go ctrl.Run(context.WithoutCancel(ctx))
	m.logger.Info("question started",
		slog.String("attempt_id", attemptID),
		slog.Int("question", a.Current))
	return ctrl, nil
}

// Get returns the attempt's active controller, if any.
func (m *Manager) Get(attemptID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.active[attemptID]
	return c, ok
}

// Stop tears down the attempt's controller.
func (m *Manager) Stop(attemptID string) {
	m.mu.Lock()
	c, ok := m.active[attemptID]
	delete(m.active, attemptID)
	m.mu.Unlock()
	if ok {
		c.Stop()
	}
}

// Close stops every active controller.
func (m *Manager) Close() {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.active))
	for _, c := range m.active {
		controllers = append(controllers, c)
	}
	m.active = make(map[string]*Controller)
	m.mu.Unlock()
	for _, c := range controllers {
		c.Stop()
	}
}
