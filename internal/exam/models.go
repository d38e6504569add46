package exam

import "time"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"

	AttemptInProgress = "in_progress"
	AttemptSubmitted  = "submitted"
)

const (
	MinOptions = 2
	MaxOptions = 5
)

// Question is one multiple-choice item. Immutable once the exam is published.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

// PublishSettings gate when and how students may take a published exam.
type PublishSettings struct {
	OpensAt      time.Time `json:"opens_at,omitempty"`
	ClosesAt     time.Time `json:"closes_at,omitempty"`
	TimeLimitSec int       `json:"time_limit_sec,omitempty"`
	VoiceEnabled bool      `json:"voice_enabled"`
}

// Exam is the teacher-owned aggregate.
type Exam struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	OwnerID   string          `json:"owner_id"`
	Status    string          `json:"status"`
	Settings  PublishSettings `json:"settings"`
	Questions []Question      `json:"questions"`
	CreatedAt time.Time       `json:"created_at"`
}

// Answer is appended to an attempt only on explicit confirmation.
type Answer struct {
	QuestionPrompt   string `json:"question_prompt"`
	ChosenOptionText string `json:"chosen_option_text"`
}

// Attempt is one student's pass through an exam. Current is the index of the
// question being answered; Answers holds at most one record per question.
type Attempt struct {
	ID          string    `json:"id"`
	ExamID      string    `json:"exam_id"`
	StudentID   string    `json:"student_id"`
	Status      string    `json:"status"`
	Current     int       `json:"current"`
	Answers     []Answer  `json:"answers"`
	Score       float64   `json:"score"`
	StartedAt   time.Time `json:"started_at"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
}

// Summary is the list view of an exam without its questions.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"owner_id"`
	Status    string    `json:"status"`
	Questions int       `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
}
