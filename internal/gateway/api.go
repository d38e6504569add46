// Package gateway is the HTTP surface: exam authoring and attempt endpoints,
// PDF question extraction, and the per-attempt dialog WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/dialog"
	"github.com/voxexam-labs/voxexam-core/internal/exam"
)

// QuestionExtractor is the PDF extraction collaborator.
type QuestionExtractor interface {
	Questions(ctx context.Context, filename string, pdf io.Reader) ([]exam.Question, error)
}

// TranscriptSink receives transcripts recognized client-side, keyed by the
// dialog session they belong to.
type TranscriptSink interface {
	Inject(sessionID, text string, confidence float64) bool
}

type Gateway struct {
	cfg       config.HTTPConfig
	auth      *AuthService
	exams     *exam.Service
	dialogs   *dialog.Manager
	extractor QuestionExtractor
	sink      TranscriptSink
	logger    *slog.Logger
}

func New(cfg config.HTTPConfig, auth *AuthService, exams *exam.Service, dialogs *dialog.Manager, extractor QuestionExtractor, sink TranscriptSink, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:       cfg,
		auth:      auth,
		exams:     exams,
		dialogs:   dialogs,
		extractor: extractor,
		sink:      sink,
		logger:    logger.With(slog.String("component", "gateway")),
	}
}

func (g *Gateway) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   g.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", g.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(g.auth.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleTeacher))
			r.Post("/api/exams", g.handleCreateExam)
			r.Put("/api/exams/{id}/questions", g.handleUpdateQuestions)
			r.Post("/api/exams/{id}/publish", g.handlePublish)
			r.Post("/api/exams/{id}/questions:extract", g.handleExtract)
			r.Get("/api/exams/{id}/attempts", g.handleListAttempts)
		})

		r.Get("/api/exams", g.handleListExams)
		r.Get("/api/exams/{id}", g.handleGetExam)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleStudent))
			r.Post("/api/exams/{id}/attempts", g.handleStartAttempt)
			r.Post("/api/attempts/{id}/answers", g.handleRecordAnswer)
			r.Post("/api/attempts/{id}/answers/change", g.handleChangeAnswer)
			r.Post("/api/attempts/{id}/submit", g.handleSubmit)
		})

		r.Get("/api/attempts/{id}", g.handleGetAttempt)
		r.Get("/api/attempts/{id}/dialog/ws", g.handleDialogWS)
	})

	return r
}

// handleLogin is the local credential exchange. Deployments fronted by a real
// identity provider replace this route.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Username == "" || (req.Role != RoleTeacher && req.Role != RoleStudent) {
		httpError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	tok, err := g.auth.Issue(req.Username, req.Role)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": tok})
}

func (g *Gateway) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string          `json:"title"`
		Questions []exam.Question `json:"questions"`
	}
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	claims := claimsFrom(r.Context())
	e, err := g.exams.CreateExam(r.Context(), claims.Sub, req.Title, req.Questions)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (g *Gateway) handleUpdateQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Questions []exam.Question `json:"questions"`
	}
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	e, err := g.exams.UpdateQuestions(r.Context(), chi.URLParam(r, "id"), req.Questions)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (g *Gateway) handlePublish(w http.ResponseWriter, r *http.Request) {
	var settings exam.PublishSettings
	if err := readJSON(r, &settings); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	e, err := g.exams.Publish(r.Context(), chi.URLParam(r, "id"), settings)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (g *Gateway) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpError(w, http.StatusBadRequest, "bad multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "file part missing")
		return
	}
	defer file.Close()

	questions, err := g.extractor.Questions(r.Context(), header.Filename, file)
	if err != nil {
		g.logger.Warn("extraction failed", slog.String("error", err.Error()))
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	e, err := g.exams.UpdateQuestions(r.Context(), chi.URLParam(r, "id"), questions)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (g *Gateway) handleListExams(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	owner := ""
	if claims.Role == RoleTeacher {
		owner = claims.Sub
	}
	list, err := g.exams.ListExams(r.Context(), owner)
	if err != nil {
		g.fail(w, err)
		return
	}
	if claims.Role == RoleStudent {
		published := list[:0]
		for _, sum := range list {
			if sum.Status == exam.StatusPublished {
				published = append(published, sum)
			}
		}
		list = published
	}
	writeJSON(w, http.StatusOK, list)
}

func (g *Gateway) handleGetExam(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	id := chi.URLParam(r, "id")
	if claims.Role == RoleTeacher {
		e, err := g.exams.GetExam(r.Context(), id)
		if err != nil {
			g.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
		return
	}
	e, err := g.exams.GetExamForStudent(r.Context(), id)
	if err != nil {
		g.fail(w, err)
		return
	}
	if e.Status != exam.StatusPublished {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (g *Gateway) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	a, err := g.exams.StartAttempt(r.Context(), chi.URLParam(r, "id"), claims.Sub)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (g *Gateway) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionIndex int `json:"question_index"`
		OptionIndex   int `json:"option_index"`
	}
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	a, err := g.ownAttempt(r)
	if err != nil {
		g.fail(w, err)
		return
	}
	a, err = g.exams.RecordAnswer(r.Context(), a.ID, req.QuestionIndex, req.OptionIndex)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (g *Gateway) handleChangeAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionIndex int `json:"question_index"`
		OptionIndex   int `json:"option_index"`
	}
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	a, err := g.ownAttempt(r)
	if err != nil {
		g.fail(w, err)
		return
	}
	a, err = g.exams.ChangeAnswer(r.Context(), a.ID, req.QuestionIndex, req.OptionIndex)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (g *Gateway) handleSubmit(w http.ResponseWriter, r *http.Request) {
	a, err := g.ownAttempt(r)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.dialogs.Stop(a.ID)
	a, err = g.exams.Submit(r.Context(), a.ID)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (g *Gateway) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	a, err := g.exams.GetAttempt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.fail(w, err)
		return
	}
	if claims.Role == RoleStudent && a.StudentID != claims.Sub {
		httpError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (g *Gateway) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	list, err := g.exams.ListAttempts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ownAttempt loads the attempt from the URL and checks the caller owns it.
func (g *Gateway) ownAttempt(r *http.Request) (exam.Attempt, error) {
	claims := claimsFrom(r.Context())
	a, err := g.exams.GetAttempt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return exam.Attempt{}, err
	}
	if a.StudentID != claims.Sub {
		return exam.Attempt{}, errForbidden
	}
	return a, nil
}

var errForbidden = errors.New("forbidden")

func (g *Gateway) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		httpError(w, http.StatusNotFound, "not found")
	case errors.Is(err, errForbidden):
		httpError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, exam.ErrExamPublished),
		errors.Is(err, exam.ErrExamNotPublished),
		errors.Is(err, exam.ErrAttemptClosed):
		httpError(w, http.StatusConflict, err.Error())
	default:
		g.logger.Error("request failed", slog.String("error", err.Error()))
		httpError(w, http.StatusBadRequest, err.Error())
	}
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
