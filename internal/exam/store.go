package exam

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrExamPublished    = errors.New("exam already published")
	ErrExamNotPublished = errors.New("exam not published")
	ErrAttemptClosed    = errors.New("attempt already submitted")
)

// Store persists exams and attempts.
type Store interface {
	PutExam(ctx context.Context, e Exam) error
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, ownerID string) ([]Summary, error)

	PutAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, examID string) ([]Attempt, error)
}
