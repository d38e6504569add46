package exam

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestService() *Service {
	return NewService(NewMemStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleQuestions() []Question {
	return []Question{
		{Prompt: "What does CSS stand for?", Options: []string{"Cascading Style Sheets", "Creative Style System"}, CorrectAnswer: "Cascading Style Sheets"},
		{Prompt: "Which operator checks strict equality?", Options: []string{"==", "===", "="}, CorrectAnswer: "==="},
	}
}

func publishExam(t *testing.T, svc *Service) Exam {
	t.Helper()
	ctx := context.Background()
	e, err := svc.CreateExam(ctx, "teacher-1", "Web Basics", sampleQuestions())
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	e, err = svc.Publish(ctx, e.ID, PublishSettings{VoiceEnabled: true})
	if err != nil {
		t.Fatalf("publish exam: %v", err)
	}
	return e
}

func TestPublishValidatesOptionCount(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	e, err := svc.CreateExam(ctx, "teacher-1", "Bad Exam", []Question{
		{Prompt: "Pick one", Options: []string{"only"}, CorrectAnswer: "only"},
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	if _, err := svc.Publish(ctx, e.ID, PublishSettings{}); err == nil {
		t.Fatal("expected publish to reject a single-option question")
	}
}

func TestPublishRequiresAnswerAmongOptions(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	e, err := svc.CreateExam(ctx, "teacher-1", "Bad Key", []Question{
		{Prompt: "Pick one", Options: []string{"a", "b"}, CorrectAnswer: "c"},
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	if _, err := svc.Publish(ctx, e.ID, PublishSettings{}); err == nil {
		t.Fatal("expected publish to reject an answer key outside the options")
	}
}

func TestPublishedExamIsImmutable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	e := publishExam(t, svc)

	if _, err := svc.UpdateQuestions(ctx, e.ID, sampleQuestions()); !errors.Is(err, ErrExamPublished) {
		t.Fatalf("expected ErrExamPublished, got %v", err)
	}
	if _, err := svc.Publish(ctx, e.ID, PublishSettings{}); !errors.Is(err, ErrExamPublished) {
		t.Fatalf("expected ErrExamPublished on re-publish, got %v", err)
	}
}

func TestStudentViewHidesAnswerKey(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	e := publishExam(t, svc)

	view, err := svc.GetExamForStudent(ctx, e.ID)
	if err != nil {
		t.Fatalf("student view: %v", err)
	}
	for i, q := range view.Questions {
		if q.CorrectAnswer != "" {
			t.Fatalf("question %d leaked answer key %q", i, q.CorrectAnswer)
		}
	}
}

func TestStartAttemptRequiresPublished(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	e, err := svc.CreateExam(ctx, "teacher-1", "Draft", sampleQuestions())
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	if _, err := svc.StartAttempt(ctx, e.ID, "student-1"); !errors.Is(err, ErrExamNotPublished) {
		t.Fatalf("expected ErrExamNotPublished, got %v", err)
	}
}

func TestRecordAnswerAppendsOncePerQuestion(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	e := publishExam(t, svc)

	a, err := svc.StartAttempt(ctx, e.ID, "student-1")
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	a, err = svc.RecordAnswer(ctx, a.ID, 0, 0)
	if err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if a.Current != 1 || len(a.Answers) != 1 {
		t.Fatalf("cursor=%d answers=%d, want 1 and 1", a.Current, len(a.Answers))
	}
	if a.Answers[0].ChosenOptionText != "Cascading Style Sheets" {
		t.Fatalf("recorded %q", a.Answers[0].ChosenOptionText)
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, 0, 1); err == nil {
		t.Fatal("expected second record for the same question to fail")
	}
}

func TestChangeAnswerReplacesLastOnly(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	e := publishExam(t, svc)

	a, err := svc.StartAttempt(ctx, e.ID, "student-1")
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if a, err = svc.RecordAnswer(ctx, a.ID, 0, 1); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	a, err = svc.ChangeAnswer(ctx, a.ID, 0, 0)
	if err != nil {
		t.Fatalf("change answer: %v", err)
	}
	if got := a.Answers[0].ChosenOptionText; got != "Cascading Style Sheets" {
		t.Fatalf("answer after change = %q", got)
	}
	if a.Current != 1 {
		t.Fatalf("change must not move cursor, got %d", a.Current)
	}

	if a, err = svc.RecordAnswer(ctx, a.ID, 1, 0); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if _, err := svc.ChangeAnswer(ctx, a.ID, 0, 1); err == nil {
		t.Fatal("expected change of an earlier question to fail")
	}
}

func TestSubmitScoresAndCloses(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	e := publishExam(t, svc)

	a, err := svc.StartAttempt(ctx, e.ID, "student-1")
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if a, err = svc.RecordAnswer(ctx, a.ID, 0, 0); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if a, err = svc.RecordAnswer(ctx, a.ID, 1, 2); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	a, err = svc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a.Status != AttemptSubmitted {
		t.Fatalf("status = %q", a.Status)
	}
	if a.Score != 1 {
		t.Fatalf("score = %v, want 1", a.Score)
	}
	if a.SubmittedAt.IsZero() {
		t.Fatal("submitted_at not set")
	}
	if _, err := svc.RecordAnswer(ctx, a.ID, 1, 0); !errors.Is(err, ErrAttemptClosed) {
		t.Fatalf("expected ErrAttemptClosed after submit, got %v", err)
	}
	if _, err := svc.Submit(ctx, a.ID); !errors.Is(err, ErrAttemptClosed) {
		t.Fatalf("expected ErrAttemptClosed on double submit, got %v", err)
	}
}

func TestListExamsSummariesCarryOwner(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, err := svc.CreateExam(ctx, "teacher-1", "Web Basics", sampleQuestions()); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	if _, err := svc.CreateExam(ctx, "teacher-2", "Go Basics", sampleQuestions()); err != nil {
		t.Fatalf("create exam: %v", err)
	}

	mine, err := svc.ListExams(ctx, "teacher-1")
	if err != nil {
		t.Fatalf("list exams: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("listed %d exams, want 1", len(mine))
	}
	if mine[0].OwnerID != "teacher-1" {
		t.Fatalf("summary owner = %q, want teacher-1", mine[0].OwnerID)
	}
}
