// Package examstore persists exams and attempts on database/sql, with sqlite
// for single-node installs and postgres for shared ones.
package examstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/exam"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store implements exam.Store. Question and answer payloads live in JSON
// columns; both drivers accept the $N placeholder style.
type Store struct {
	db *sql.DB
}

// Open connects per the configured driver and ensures the schema exists.
func Open(ctx context.Context, cfg config.ExamStoreConfig) (*Store, error) {
	var drvName, dsn string
	switch cfg.Driver {
	case DriverSQLite:
		drvName = "sqlite"
		dsn = cfg.DSN
		if dsn == "" {
			dsn = "file:voxexam.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx"
		dsn = cfg.DSN
		if dsn == "" {
			dsn = "postgres://localhost:5432/voxexam?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", drvName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", drvName, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS exams (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  status TEXT NOT NULL,
  settings_json TEXT NOT NULL,
  questions_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  status TEXT NOT NULL,
  current INTEGER NOT NULL,
  answers_json TEXT NOT NULL,
  score REAL NOT NULL DEFAULT 0,
  started_at BIGINT NOT NULL,
  submitted_at BIGINT
);
`

func (s *Store) PutExam(ctx context.Context, e exam.Exam) error {
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	settings, err := json.Marshal(e.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exams (id, title, owner_id, status, settings_json, questions_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
		  title=excluded.title, status=excluded.status,
		  settings_json=excluded.settings_json, questions_json=excluded.questions_json`,
		e.ID, e.Title, e.OwnerID, e.Status, string(settings), string(questions), e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert exam: %w", err)
	}
	return nil
}

func (s *Store) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, owner_id, status, settings_json, questions_json, created_at
		FROM exams WHERE id=$1`, id)

	var e exam.Exam
	var settings, questions string
	var createdAt int64
	err := row.Scan(&e.ID, &e.Title, &e.OwnerID, &e.Status, &settings, &questions, &createdAt)
	if err == sql.ErrNoRows {
		return exam.Exam{}, exam.ErrNotFound
	}
	if err != nil {
		return exam.Exam{}, fmt.Errorf("scan exam: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &e.Settings); err != nil {
		return exam.Exam{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &e.Questions); err != nil {
		return exam.Exam{}, fmt.Errorf("decode questions: %w", err)
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return e, nil
}

func (s *Store) ListExams(ctx context.Context, ownerID string) ([]exam.Summary, error) {
	query := `SELECT id, title, owner_id, status, questions_json, created_at FROM exams ORDER BY created_at`
	args := []any{}
	if ownerID != "" {
		query = `SELECT id, title, owner_id, status, questions_json, created_at FROM exams WHERE owner_id=$1 ORDER BY created_at`
		args = append(args, ownerID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	var out []exam.Summary
	for rows.Next() {
		var sum exam.Summary
		var questions string
		var createdAt int64
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.OwnerID, &sum.Status, &questions, &createdAt); err != nil {
			return nil, fmt.Errorf("scan exam row: %w", err)
		}
		var qs []exam.Question
		if err := json.Unmarshal([]byte(questions), &qs); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		sum.Questions = len(qs)
		sum.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) PutAttempt(ctx context.Context, a exam.Attempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	var submitted any
	if !a.SubmittedAt.IsZero() {
		submitted = a.SubmittedAt.Unix()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attempts (id, exam_id, student_id, status, current, answers_json, score, started_at, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
		  status=excluded.status, current=excluded.current,
		  answers_json=excluded.answers_json, score=excluded.score,
		  submitted_at=excluded.submitted_at`,
		a.ID, a.ExamID, a.StudentID, a.Status, a.Current, string(answers), a.Score, a.StartedAt.Unix(), submitted)
	if err != nil {
		return fmt.Errorf("upsert attempt: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (exam.Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, student_id, status, current, answers_json, score, started_at, submitted_at
		FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row.Scan)
	if err == sql.ErrNoRows {
		return exam.Attempt{}, exam.ErrNotFound
	}
	return a, err
}

func (s *Store) ListAttempts(ctx context.Context, examID string) ([]exam.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, student_id, status, current, answers_json, score, started_at, submitted_at
		FROM attempts WHERE exam_id=$1 ORDER BY started_at`, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []exam.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(scan func(...any) error) (exam.Attempt, error) {
	var a exam.Attempt
	var answers string
	var startedAt int64
	var submittedAt sql.NullInt64
	err := scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.Current, &answers, &a.Score, &startedAt, &submittedAt)
	if err == sql.ErrNoRows {
		return exam.Attempt{}, err
	}
	if err != nil {
		return exam.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return exam.Attempt{}, fmt.Errorf("decode answers: %w", err)
	}
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	if submittedAt.Valid {
		a.SubmittedAt = time.Unix(submittedAt.Int64, 0).UTC()
	}
	return a, nil
}
