package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxexam-labs/voxexam-core/internal/dialog"
	"github.com/voxexam-labs/voxexam-core/internal/exam"
	"github.com/voxexam-labs/voxexam-core/internal/protocol"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = 45 * time.Second
)

// wsInbound is what the browser sends up the dialog socket.
type wsInbound struct {
	Type        string  `json:"type"`
	OptionIndex int     `json:"option_index,omitempty"`
	Text        string  `json:"text,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// wsSession serializes writes; gorilla connections allow one writer at a time
// and both the reader loop and the status pump produce outbound frames.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS already gates the API surface; the upgrade request carried a
	// verified bearer token before reaching this point.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleDialogWS streams dialog status outbound and accepts manual controls
// and client-side transcripts inbound.
func (g *Gateway) handleDialogWS(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	attemptID := chi.URLParam(r, "id")
	a, err := g.exams.GetAttempt(r.Context(), attemptID)
	if err != nil {
		g.fail(w, err)
		return
	}
	if claims.Role == RoleStudent && a.StudentID != claims.Sub {
		httpError(w, http.StatusForbidden, "forbidden")
		return
	}
	if a.Status != exam.AttemptInProgress {
		httpError(w, http.StatusConflict, "attempt is closed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	sess := &wsSession{conn: conn}

	ctrl, ok := g.dialogs.Get(attemptID)
	if !ok {
		ctrl, err = g.dialogs.StartQuestion(r.Context(), attemptID)
		if err != nil {
			_ = sess.writeJSON(map[string]string{"error": err.Error()})
			return
		}
	}

	done := make(chan struct{})
	go g.pumpStatuses(sess, attemptID, done)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	_ = sess.writeJSON(ctrl.Status())

	for {
		var msg wsInbound
		if err := conn.ReadJSON(&msg); err != nil {
			close(done)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		g.dispatchWS(context.WithoutCancel(r.Context()), sess, attemptID, msg)
	}
}

func (g *Gateway) dispatchWS(ctx context.Context, sess *wsSession, attemptID string, msg wsInbound) {
	ctrl, active := g.dialogs.Get(attemptID)
	switch msg.Type {
	case "start_question":
		if _, err := g.dialogs.StartQuestion(ctx, attemptID); err != nil {
			_ = sess.writeJSON(map[string]string{"error": err.Error()})
		}
	case "manual_confirm":
		if !active {
			return
		}
		if err := ctrl.ManualConfirm(ctx); err != nil {
			_ = sess.writeJSON(map[string]string{"error": err.Error()})
		}
	case "manual_reject":
		if !active {
			return
		}
		ctrl.ManualReject(ctx)
	case "manual_select":
		if !active {
			return
		}
		if err := ctrl.ManualSelect(ctx, msg.OptionIndex); err != nil {
			_ = sess.writeJSON(map[string]string{"error": err.Error()})
		}
	case "transcript":
		if g.sink == nil || !active {
			return
		}
		if !g.sink.Inject(ctrl.SessionID(), msg.Text, msg.Confidence) {
			g.logger.Debug("transcript dropped, no listening session", slog.String("attempt_id", attemptID))
		}
	default:
		_ = sess.writeJSON(map[string]string{"error": "unknown message type"})
	}
}

// pumpStatuses forwards status snapshots for the attempt's controllers until
// the socket closes. Controllers come and go as the attempt moves between
// questions, so the subscription is re-established per controller.
func (g *Gateway) pumpStatuses(sess *wsSession, attemptID string, done <-chan struct{}) {
	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()

	var (
		statuses <-chan protocol.DialogStatus
		unsub    func()
		current  *dialog.Controller
	)
	defer func() {
		if unsub != nil {
			unsub()
		}
	}()

	refresh := time.NewTicker(250 * time.Millisecond)
	defer refresh.Stop()

	for {
		if ctrl, ok := g.dialogs.Get(attemptID); ok && ctrl != current {
			if unsub != nil {
				unsub()
			}
			statuses, unsub = ctrl.Subscribe()
			current = ctrl
		}

		select {
		case <-done:
			return
		case <-refresh.C:
			// Periodic snapshot so late subscribers still see the current
			// state even when no transition fires.
			if current != nil {
				if err := sess.writeJSON(current.Status()); err != nil {
					return
				}
			}
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			if err := sess.writeJSON(st); err != nil {
				return
			}
		case <-ping.C:
			if err := sess.ping(); err != nil {
				return
			}
		}
	}
}
