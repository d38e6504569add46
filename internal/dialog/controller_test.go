package dialog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/exam"
	"github.com/voxexam-labs/voxexam-core/internal/protocol"
	"github.com/voxexam-labs/voxexam-core/internal/speech/recog"
	"github.com/voxexam-labs/voxexam-core/internal/speech/synth"
)

type stubSpeaker struct {
	mu          sync.Mutex
	spoken      []string
	unavailable bool
}

func (s *stubSpeaker) Speak(_ context.Context, _ string, text string, _ synth.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return synth.ErrUnavailable
	}
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *stubSpeaker) utterances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type listenStep struct {
	text string
	err  error
}

// scriptedListener plays back transcripts and errors in order, then blocks
// until the session context ends.
type scriptedListener struct {
	mu    sync.Mutex
	steps []listenStep
	next  int
	langs []string
}

func (l *scriptedListener) ListenOnce(ctx context.Context, _ string, cfg recog.Config) (recog.Transcript, error) {
	l.mu.Lock()
	l.langs = append(l.langs, cfg.Language)
	if l.next < len(l.steps) {
		step := l.steps[l.next]
		l.next++
		l.mu.Unlock()
		if step.err != nil {
			return recog.Transcript{}, step.err
		}
		return recog.Transcript{Text: step.text, Language: cfg.Language}, nil
	}
	l.mu.Unlock()
	<-ctx.Done()
	return recog.Transcript{}, ctx.Err()
}

func (l *scriptedListener) ExamConfig() recog.Config {
	return recog.Config{Language: "en-IN", TimeoutMS: 8000}
}

func (l *scriptedListener) VerifyConfig() recog.Config {
	return recog.Config{Language: "en-US", TimeoutMS: 8000}
}

func (l *scriptedListener) languages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.langs...)
}

type countingSink struct {
	mu    sync.Mutex
	calls []int
}

func (s *countingSink) RecordAnswer(_ context.Context, _ string, _ int, optionIndex int) (exam.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, optionIndex)
	return exam.Attempt{}, nil
}

func (s *countingSink) recorded() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

var testQuestion = exam.Question{
	ID:      "q-1",
	Prompt:  "Which city is the financial capital of India?",
	Options: []string{"Delhi", "Mumbai", "Chennai"},
}

func testDialogConfig() config.DialogConfig {
	return config.DialogConfig{MaxVoiceRetries: 1, ManualOfferCycles: 2}
}

func newTestController(cfg config.DialogConfig, listener Listener, sink AnswerSink) (*Controller, *stubSpeaker) {
	speaker := &stubSpeaker{}
	ctrl := NewController(cfg, "attempt-1", 0, testQuestion, Deps{
		Speaker:  speaker,
		Listener: listener,
		Sink:     sink,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return ctrl, speaker
}

func waitStatus(t *testing.T, ch <-chan protocol.DialogStatus, pred func(protocol.DialogStatus) bool) protocol.DialogStatus {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case st := <-ch:
			if pred(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for dialog status")
			return protocol.DialogStatus{}
		}
	}
}

func waitDone(t *testing.T, ctrl *Controller) {
	t.Helper()
	select {
	case <-ctrl.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("controller did not finish")
	}
}

func TestVoiceConfirmCommits(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{text: "option 3"},
		{text: "yes"},
	}}
	sink := &countingSink{}
	ctrl, _ := newTestController(testDialogConfig(), listener, sink)

	go ctrl.Run(context.Background())
	waitDone(t, ctrl)

	if got := sink.recorded(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("recorded answers = %v, want one record for option index 2", got)
	}
	if st := ctrl.Status(); st.State != string(StateCommitted) {
		t.Fatalf("final state = %q", st.State)
	}
}

func TestConfirmationListensInVerifyLanguage(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{text: "option 2"},
		{text: "no"},
		{text: "option 1"},
		{text: "confirm"},
	}}
	sink := &countingSink{}
	ctrl, _ := newTestController(testDialogConfig(), listener, sink)

	go ctrl.Run(context.Background())
	waitDone(t, ctrl)

	if got := sink.recorded(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("recorded answers = %v, want one record for option index 0", got)
	}
	want := []string{"en-IN", "en-US", "en-IN", "en-US"}
	got := listener.languages()
	if len(got) != len(want) {
		t.Fatalf("listen languages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("listen languages = %v, want %v", got, want)
		}
	}
}

func TestUnmatchedEchoesTranscript(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{text: "purple elephant"},
	}}
	sink := &countingSink{}
	ctrl, _ := newTestController(testDialogConfig(), listener, sink)
	statuses, unsub := ctrl.Subscribe()
	defer unsub()

	go ctrl.Run(context.Background())
	st := waitStatus(t, statuses, func(st protocol.DialogStatus) bool {
		return st.State == string(StateUnmatched)
	})
	ctrl.Stop()
	waitDone(t, ctrl)

	if !strings.Contains(st.Feedback, "purple elephant") {
		t.Fatalf("feedback %q does not echo the transcript", st.Feedback)
	}
	if st.Candidate != -1 {
		t.Fatalf("candidate = %d, want none", st.Candidate)
	}
	if len(sink.recorded()) != 0 {
		t.Fatal("unmatched transcript must not record an answer")
	}
}

func TestTimeoutOffersManualControls(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{err: recog.ErrTimeout},
	}}
	sink := &countingSink{}
	cfg := testDialogConfig()
	cfg.MaxVoiceRetries = 0
	ctrl, _ := newTestController(cfg, listener, sink)
	statuses, unsub := ctrl.Subscribe()
	defer unsub()

	go ctrl.Run(context.Background())
	waitStatus(t, statuses, func(st protocol.DialogStatus) bool { return st.Manual })

	if err := ctrl.ManualSelect(context.Background(), 1); err != nil {
		t.Fatalf("manual select: %v", err)
	}
	if err := ctrl.ManualConfirm(context.Background()); err != nil {
		t.Fatalf("manual confirm: %v", err)
	}
	waitDone(t, ctrl)

	if got := sink.recorded(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("recorded answers = %v, want one record for option index 1", got)
	}
}

func TestPermissionDeniedParksInManualFallback(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{err: recog.ErrPermissionDenied},
	}}
	sink := &countingSink{}
	ctrl, _ := newTestController(testDialogConfig(), listener, sink)
	statuses, unsub := ctrl.Subscribe()
	defer unsub()

	go ctrl.Run(context.Background())
	waitStatus(t, statuses, func(st protocol.DialogStatus) bool {
		return st.State == string(StateManual)
	})

	if err := ctrl.ManualSelect(context.Background(), 0); err != nil {
		t.Fatalf("manual select: %v", err)
	}
	if err := ctrl.ManualConfirm(context.Background()); err != nil {
		t.Fatalf("manual confirm: %v", err)
	}
	waitDone(t, ctrl)

	if got := sink.recorded(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("recorded answers = %v, want one record for option index 0", got)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{text: "option 2"},
	}}
	sink := &countingSink{}
	ctrl, _ := newTestController(testDialogConfig(), listener, sink)
	statuses, unsub := ctrl.Subscribe()
	defer unsub()

	go ctrl.Run(context.Background())
	waitStatus(t, statuses, func(st protocol.DialogStatus) bool {
		return st.State == string(StateAwaiting)
	})

	if err := ctrl.ManualConfirm(context.Background()); err != nil {
		t.Fatalf("manual confirm: %v", err)
	}
	if err := ctrl.ManualConfirm(context.Background()); err != nil {
		t.Fatalf("second manual confirm should be a no-op, got %v", err)
	}
	waitDone(t, ctrl)

	if got := sink.recorded(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("recorded answers = %v, want exactly one record", got)
	}
	if err := ctrl.ManualSelect(context.Background(), 0); err == nil {
		t.Fatal("manual select after commit should fail")
	}
}

func TestRepeatReannouncesQuestion(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{text: "option 2"},
		{text: "repeat"},
		{text: "yes"},
	}}
	sink := &countingSink{}
	ctrl, speaker := newTestController(testDialogConfig(), listener, sink)

	go ctrl.Run(context.Background())
	waitDone(t, ctrl)

	announced := 0
	for _, u := range speaker.utterances() {
		if strings.Contains(u, "Which city is the financial capital of India") {
			announced++
		}
	}
	if announced < 2 {
		t.Fatalf("question announced %d times, want at least 2", announced)
	}
	if got := sink.recorded(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("recorded answers = %v, want one record for option index 1", got)
	}
}

func TestSynthesisUnavailableDegradesToText(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{text: "option 1"},
		{text: "yes"},
	}}
	sink := &countingSink{}
	speaker := &stubSpeaker{unavailable: true}
	ctrl := NewController(testDialogConfig(), "attempt-1", 0, testQuestion, Deps{
		Speaker:  speaker,
		Listener: listener,
		Sink:     sink,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	go ctrl.Run(context.Background())
	waitDone(t, ctrl)

	if got := sink.recorded(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("recorded answers = %v, want one record for option index 0", got)
	}
}

func TestNewCandidateWithoutExplicitReject(t *testing.T) {
	listener := &scriptedListener{steps: []listenStep{
		{text: "option 1"},
		{text: "option 3"},
		{text: "confirm"},
	}}
	sink := &countingSink{}
	ctrl, _ := newTestController(testDialogConfig(), listener, sink)

	go ctrl.Run(context.Background())
	waitDone(t, ctrl)

	if got := sink.recorded(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("recorded answers = %v, want the replacement candidate committed", got)
	}
}

func TestBackendFailureOffersManualControls(t *testing.T) {
	backendErr := errors.New("recognition command failed: exit status 1")
	listener := &scriptedListener{steps: []listenStep{
		{err: backendErr},
		{err: backendErr},
		{err: backendErr},
	}}
	sink := &countingSink{}
	ctrl, _ := newTestController(testDialogConfig(), listener, sink)
	statuses, unsub := ctrl.Subscribe()
	defer unsub()

	go ctrl.Run(context.Background())
	waitStatus(t, statuses, func(st protocol.DialogStatus) bool { return st.Manual })

	if got := sink.recorded(); len(got) != 0 {
		t.Fatalf("recorded answers = %v, want none before a commit", got)
	}
	if err := ctrl.ManualSelect(context.Background(), 1); err != nil {
		t.Fatalf("manual select: %v", err)
	}
	if err := ctrl.ManualConfirm(context.Background()); err != nil {
		t.Fatalf("manual confirm: %v", err)
	}
	waitDone(t, ctrl)

	if got := sink.recorded(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("recorded answers = %v, want one record for option index 1", got)
	}
}

func TestConcurrentAttemptsListenIndependently(t *testing.T) {
	push := recog.NewPushRecognizer()
	svc := recog.NewService(config.RecognitionConfig{
		Enabled:         true,
		Mode:            "push",
		ExamLanguage:    "en-IN",
		VerifyLanguage:  "en-US",
		ListenTimeoutMS: 5000,
	}, push, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	newCtrl := func(attemptID string) (*Controller, *countingSink) {
		sink := &countingSink{}
		ctrl := NewController(testDialogConfig(), attemptID, 0, testQuestion, Deps{
			Speaker:  &stubSpeaker{},
			Listener: svc,
			Sink:     sink,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		return ctrl, sink
	}
	ctrlA, sinkA := newCtrl("attempt-a")
	ctrlB, sinkB := newCtrl("attempt-b")

	go ctrlA.Run(context.Background())
	go ctrlB.Run(context.Background())
	defer ctrlA.Stop()

	injectEventually(t, push, ctrlB.SessionID(), "option 2")
	injectEventually(t, push, ctrlB.SessionID(), "yes")
	waitDone(t, ctrlB)

	select {
	case <-ctrlA.Done():
		t.Fatal("one attempt's voice loop exited because another attempt was listening")
	case <-time.After(150 * time.Millisecond):
	}

	injectEventually(t, push, ctrlA.SessionID(), "option 1")
	injectEventually(t, push, ctrlA.SessionID(), "confirm")
	waitDone(t, ctrlA)

	if got := sinkB.recorded(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("second attempt recorded %v, want one record for option index 1", got)
	}
	if got := sinkA.recorded(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("first attempt recorded %v, want one record for option index 0", got)
	}
}

func injectEventually(t *testing.T, push *recog.PushRecognizer, sessionID, text string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if push.Inject(sessionID, text, 0.9) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no listener consumed %q for session %s", text, sessionID)
}
