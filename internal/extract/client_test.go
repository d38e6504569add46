package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxexam-labs/voxexam-core/internal/config"
)

func TestQuestionsParsesBackendResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"questions":[{"prompt":"What does CSS stand for?","options":["Cascading Style Sheets","Creative Style System"],"correct_answer":"Cascading Style Sheets"}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.ExtractConfig{Endpoint: srv.URL, TimeoutMS: 5000})
	questions, err := c.Questions(context.Background(), "exam.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(questions) != 1 || questions[0].Prompt != "What does CSS stand for?" {
		t.Fatalf("unexpected questions: %+v", questions)
	}
}

func TestQuestionsBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unreadable document", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(config.ExtractConfig{Endpoint: srv.URL, TimeoutMS: 5000})
	if _, err := c.Questions(context.Background(), "exam.pdf", strings.NewReader("junk")); err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestQuestionsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"questions":[]}`))
	}))
	defer srv.Close()

	c := NewClient(config.ExtractConfig{Endpoint: srv.URL, TimeoutMS: 5000})
	if _, err := c.Questions(context.Background(), "exam.pdf", strings.NewReader("%PDF-1.4")); err == nil {
		t.Fatal("expected error for empty question list")
	}
}
