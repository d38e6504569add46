package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.AppendEvent(ctx, protocol.DialogEvent{SessionID: "s", AttemptID: "a", Type: "committed"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op, got %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "s", 10)
	if err != nil || len(events) != 0 {
		t.Fatalf("ephemeral store must hold nothing, got %d events, err %v", len(events), err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	ctx := context.Background()
	for _, typ := range []string{"candidate", "committed"} {
		err := es.AppendEvent(ctx, protocol.DialogEvent{
			SessionID: "session-123",
			AttemptID: "attempt-1",
			Type:      typ,
			Detail:    "Mumbai",
		})
		if err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	events, err := es.ListSessionEvents(ctx, "session-123", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Type != "committed" || events[1].Detail != "Mumbai" {
		t.Fatalf("unexpected event: %+v", events[1])
	}

	byAttempt, err := es.ListAttemptEvents(ctx, "attempt-1", 10)
	if err != nil {
		t.Fatalf("list attempt events: %v", err)
	}
	if len(byAttempt) != 2 {
		t.Fatalf("expected 2 attempt events, got %d", len(byAttempt))
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	ctx := context.Background()
	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendEvent(ctx, protocol.DialogEvent{SessionID: "old-session", AttemptID: "a1", Type: "candidate"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendEvent(ctx, protocol.DialogEvent{SessionID: "new-session", AttemptID: "a2", Type: "candidate"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned, got %d events", len(events))
	}
	kept, err := es.ListSessionEvents(ctx, "new-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("expected new session kept, got %d events", len(kept))
	}
}
