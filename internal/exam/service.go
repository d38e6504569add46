package exam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service owns exam lifecycle and attempt flow rules.
type Service struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With(slog.String("component", "exam-service")),
		clock:  time.Now,
	}
}

// CreateExam stores a new draft exam owned by the teacher.
func (s *Service) CreateExam(ctx context.Context, ownerID, title string, questions []Question) (Exam, error) {
	e := Exam{
		ID:        uuid.NewString(),
		Title:     title,
		OwnerID:   ownerID,
		Status:    StatusDraft,
		Questions: questions,
		CreatedAt: s.clock().UTC(),
	}
	for i := range e.Questions {
		if e.Questions[i].ID == "" {
			e.Questions[i].ID = uuid.NewString()
		}
	}
	if err := s.store.PutExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("store exam: %w", err)
	}
	return e, nil
}

// UpdateQuestions replaces a draft exam's question set.
func (s *Service) UpdateQuestions(ctx context.Context, examID string, questions []Question) (Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if e.Status == StatusPublished {
		return Exam{}, ErrExamPublished
	}
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
	}
	e.Questions = questions
	if err := s.store.PutExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("store exam: %w", err)
	}
	return e, nil
}

// Publish freezes the exam after validating every question.
func (s *Service) Publish(ctx context.Context, examID string, settings PublishSettings) (Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if e.Status == StatusPublished {
		return Exam{}, ErrExamPublished
	}
	if len(e.Questions) == 0 {
		return Exam{}, fmt.Errorf("exam has no questions")
	}
	for i, q := range e.Questions {
		if err := validateQuestion(q); err != nil {
			return Exam{}, fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	e.Status = StatusPublished
	e.Settings = settings
	if err := s.store.PutExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("store exam: %w", err)
	}
	s.logger.Info("exam published", slog.String("exam_id", e.ID), slog.Int("questions", len(e.Questions)))
	return e, nil
}

func validateQuestion(q Question) error {
	if q.Prompt == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
		return fmt.Errorf("question must have between %d and %d options, has %d", MinOptions, MaxOptions, len(q.Options))
	}
	for _, opt := range q.Options {
		if q.CorrectAnswer == opt {
			return nil
		}
	}
	return fmt.Errorf("correct answer must match one option")
}

// GetExam returns the full exam, answer keys included. Teacher surface only.
func (s *Service) GetExam(ctx context.Context, examID string) (Exam, error) {
	return s.store.GetExam(ctx, examID)
}

// GetExamForStudent strips answer keys.
func (s *Service) GetExamForStudent(ctx context.Context, examID string) (Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	for i := range e.Questions {
		e.Questions[i].CorrectAnswer = ""
	}
	return e, nil
}

func (s *Service) ListExams(ctx context.Context, ownerID string) ([]Summary, error) {
	return s.store.ListExams(ctx, ownerID)
}

// StartAttempt opens an attempt on a published exam.
func (s *Service) StartAttempt(ctx context.Context, examID, studentID string) (Attempt, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Attempt{}, err
	}
	if e.Status != StatusPublished {
		return Attempt{}, ErrExamNotPublished
	}
	now := s.clock().UTC()
	if !e.Settings.OpensAt.IsZero() && now.Before(e.Settings.OpensAt) {
		return Attempt{}, fmt.Errorf("exam not open yet")
	}
	if !e.Settings.ClosesAt.IsZero() && now.After(e.Settings.ClosesAt) {
		return Attempt{}, fmt.Errorf("exam closed")
	}
	a := Attempt{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: studentID,
		Status:    AttemptInProgress,
		StartedAt: now,
	}
	if err := s.store.PutAttempt(ctx, a); err != nil {
		return Attempt{}, fmt.Errorf("store attempt: %w", err)
	}
	return a, nil
}

// RecordAnswer appends the answer for the attempt's current question and
// advances the cursor. At most one record per question: recording twice for
// the same index fails, the change flow goes through ChangeAnswer.
func (s *Service) RecordAnswer(ctx context.Context, attemptID string, questionIndex, optionIndex int) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != AttemptInProgress {
		return Attempt{}, ErrAttemptClosed
	}
	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return Attempt{}, err
	}
	if questionIndex != a.Current {
		return Attempt{}, fmt.Errorf("question %d is not the current question (%d)", questionIndex, a.Current)
	}
	if questionIndex >= len(e.Questions) {
		return Attempt{}, fmt.Errorf("question index %d out of range", questionIndex)
	}
	q := e.Questions[questionIndex]
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return Attempt{}, fmt.Errorf("option index %d out of range", optionIndex)
	}
	a.Answers = append(a.Answers, Answer{
		QuestionPrompt:   q.Prompt,
		ChosenOptionText: q.Options[optionIndex],
	})
	a.Current++
	if err := s.store.PutAttempt(ctx, a); err != nil {
		return Attempt{}, fmt.Errorf("store attempt: %w", err)
	}
	return a, nil
}

// ChangeAnswer replaces the most recently committed answer before the student
// moves on. Only the question just answered may be changed.
func (s *Service) ChangeAnswer(ctx context.Context, attemptID string, questionIndex, optionIndex int) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != AttemptInProgress {
		return Attempt{}, ErrAttemptClosed
	}
	if questionIndex != a.Current-1 || questionIndex < 0 {
		return Attempt{}, fmt.Errorf("only the last answered question can be changed")
	}
	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return Attempt{}, err
	}
	q := e.Questions[questionIndex]
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return Attempt{}, fmt.Errorf("option index %d out of range", optionIndex)
	}
	a.Answers[questionIndex] = Answer{
		QuestionPrompt:   q.Prompt,
		ChosenOptionText: q.Options[optionIndex],
	}
	if err := s.store.PutAttempt(ctx, a); err != nil {
		return Attempt{}, fmt.Errorf("store attempt: %w", err)
	}
	return a, nil
}

// Submit closes the attempt and scores it by exact option match.
func (s *Service) Submit(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != AttemptInProgress {
		return Attempt{}, ErrAttemptClosed
	}
	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return Attempt{}, err
	}
	score := 0.0
	for i, ans := range a.Answers {
		if i < len(e.Questions) && ans.ChosenOptionText == e.Questions[i].CorrectAnswer {
			score++
		}
	}
	a.Score = score
	a.Status = AttemptSubmitted
	a.SubmittedAt = s.clock().UTC()
	if err := s.store.PutAttempt(ctx, a); err != nil {
		return Attempt{}, fmt.Errorf("store attempt: %w", err)
	}
	s.logger.Info("attempt submitted",
		slog.String("attempt_id", a.ID),
		slog.Float64("score", a.Score),
		slog.Int("answers", len(a.Answers)))
	return a, nil
}

func (s *Service) GetAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	return s.store.GetAttempt(ctx, attemptID)
}

func (s *Service) ListAttempts(ctx context.Context, examID string) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, examID)
}
