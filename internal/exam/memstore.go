package exam

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests and single-process setups.
type MemStore struct {
	mu       sync.RWMutex
	exams    map[string]Exam
	attempts map[string]Attempt
}

func NewMemStore() *MemStore {
	return &MemStore{
		exams:    make(map[string]Exam),
		attempts: make(map[string]Attempt),
	}
}

func (m *MemStore) PutExam(_ context.Context, e Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exams[e.ID] = cloneExam(e)
	return nil
}

func (m *MemStore) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrNotFound
	}
	return cloneExam(e), nil
}

func (m *MemStore) ListExams(_ context.Context, ownerID string) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Summary
	for _, e := range m.exams {
		if ownerID != "" && e.OwnerID != ownerID {
			continue
		}
		out = append(out, Summary{
			ID:        e.ID,
			Title:     e.Title,
			OwnerID:   e.OwnerID,
			Status:    e.Status,
			Questions: len(e.Questions),
			CreatedAt: e.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) PutAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (m *MemStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (m *MemStore) ListAttempts(_ context.Context, examID string) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.ExamID == examID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func cloneExam(e Exam) Exam {
	e.Questions = append([]Question(nil), e.Questions...)
	for i := range e.Questions {
		e.Questions[i].Options = append([]string(nil), e.Questions[i].Options...)
	}
	return e
}

func cloneAttempt(a Attempt) Attempt {
	a.Answers = append([]Answer(nil), a.Answers...)
	return a
}
