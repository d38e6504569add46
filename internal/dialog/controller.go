package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxexam-labs/voxexam-core/internal/bus"
	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/exam"
	"github.com/voxexam-labs/voxexam-core/internal/interpret"
	"github.com/voxexam-labs/voxexam-core/internal/protocol"
	"github.com/voxexam-labs/voxexam-core/internal/speech/recog"
	"github.com/voxexam-labs/voxexam-core/internal/speech/synth"
)

// Speaker is the synthesis surface the controller drives. Speakers scope
// their work by session ID, so one controller's speech never cancels
// another's.
type Speaker interface {
	Speak(ctx context.Context, sessionID, text string, opts synth.Options) error
}

// Listener is the recognition surface, likewise scoped by session ID.
type Listener interface {
	ListenOnce(ctx context.Context, sessionID string, cfg recog.Config) (recog.Transcript, error)
	ExamConfig() recog.Config
	VerifyConfig() recog.Config
}

// AnswerSink records the answer once the controller reaches committed.
type AnswerSink interface {
	RecordAnswer(ctx context.Context, attemptID string, questionIndex, optionIndex int) (exam.Attempt, error)
}

// EventRecorder persists dialog timeline entries.
type EventRecorder interface {
	AppendEvent(ctx context.Context, ev protocol.DialogEvent) error
}

// listenRetryDelay spaces out re-listens after an unclassified recognition
// failure.
const listenRetryDelay = 250 * time.Millisecond

// Deps bundles the controller's collaborators.
type Deps struct {
	Speaker  Speaker
	Listener Listener
	Sink     AnswerSink
	Bus      *bus.Client
	Events   EventRecorder
	Logger   *slog.Logger
}

// Controller runs the confirmation cycle for a single question. Voice confirm
// and manual confirm are two edges into the same committed state, guarded so
// at most one answer record is ever appended per question.
type Controller struct {
	cfg    config.DialogConfig
	deps   Deps
	logger *slog.Logger

	sessionID     string
	attemptID     string
	questionIndex int
	question      exam.Question

	mu            sync.Mutex
	state         State
	listening     bool
	candidate     int
	feedback      string
	noInput       int
	unresolved    int
	manualOffered bool
	committed     bool
	cancelRun     context.CancelFunc
	subs          map[int]chan protocol.DialogStatus
	nextSub       int
	done          chan struct{}
}

func NewController(cfg config.DialogConfig, attemptID string, questionIndex int, question exam.Question, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:           cfg,
		deps:          deps,
		logger:        logger.With(slog.String("component", "dialog"), slog.String("attempt_id", attemptID)),
		sessionID:     uuid.NewString(),
		attemptID:     attemptID,
		questionIndex: questionIndex,
		question:      question,
		state:         StateIdle,
		candidate:     -1,
		subs:          make(map[int]chan protocol.DialogStatus),
		done:          make(chan struct{}),
	}
}

func (c *Controller) SessionID() string { return c.sessionID }

// Done closes when the voice loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run drives the voice cycle until the answer commits or ctx ends. Speech
// errors never escape: every failure becomes a feedback message and a
// transition.
func (c *Controller) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelRun = cancel
	c.mu.Unlock()
	defer cancel()
	defer close(c.done)

	c.announce(runCtx, c.questionPrompt())

	for {
		if runCtx.Err() != nil || c.isCommitted() {
			return
		}
		lcfg := c.deps.Listener.ExamConfig()
		if c.heldCandidate() >= 0 {
			lcfg = c.deps.Listener.VerifyConfig()
		}
		c.setListening(true)
		tr, err := c.deps.Listener.ListenOnce(runCtx, c.sessionID, lcfg)
		c.setListening(false)
		if err != nil {
			if !c.handleListenError(runCtx, err) {
				return
			}
			continue
		}
		c.handleTranscript(runCtx, tr.Text)
	}
}

func (c *Controller) handleListenError(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return false
	}
	switch {
	case recog.Terminal(err):
		c.setManualOffered()
		c.transition(StateManual, "Voice input is not available. Use the answer buttons instead.")
		c.recordEvent(ctx, "voice_disabled", err.Error())
		// Voice is dead for good. Park until manual commit or teardown.
		<-ctx.Done()
		return false
	case errors.Is(err, recog.ErrTimeout), errors.Is(err, recog.ErrNoSpeech), recog.Transient(err):
		return c.retryAfterSilence(ctx)
	default:
		// Unclassified backend failures count against the unresolved bound
		// so manual controls still surface, and re-listening is delayed so a
		// persistently failing backend does not hot-loop.
		c.logger.Warn("listen failed", slogError(err))
		c.bumpUnresolved(ctx)
		c.transition(StateUnmatched, "Something went wrong while listening. Please try again.")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(listenRetryDelay):
		}
		return true
	}
}

// retryAfterSilence re-announces up to the retry bound, then offers manual
// controls while the voice loop keeps going.
func (c *Controller) retryAfterSilence(ctx context.Context) bool {
	c.mu.Lock()
	c.noInput++
	offer := c.noInput > c.cfg.MaxVoiceRetries && !c.manualOffered
	if offer {
		c.manualOffered = true
	}
	c.mu.Unlock()

	if offer {
		c.transition(StateManual, "I did not hear you. You can use the answer buttons, or try speaking again.")
		c.recordEvent(ctx, "manual_offered", "no speech")
		c.speakBestEffort(ctx, "I did not hear you. You can answer with the buttons, or try speaking again.")
		return true
	}
	c.announce(ctx, "I did not catch that. "+c.questionPrompt())
	return true
}

func (c *Controller) handleTranscript(ctx context.Context, text string) {
	c.transition(StateInterpreting, "")

	if held := c.heldCandidate(); held >= 0 {
		switch interpret.Intent(text) {
		case interpret.IntentConfirm:
			if err := c.commit(ctx, held); err != nil {
				c.logger.Warn("voice commit failed", slogError(err))
			}
			return
		case interpret.IntentReject:
			c.clearCandidate(ctx, "Okay, let's try again. Which option do you want?")
			return
		case interpret.IntentRepeat:
			c.announce(ctx, c.questionPrompt())
			return
		}
		// Anything else counts as a fresh answer, no explicit reject needed.
	}

	res := interpret.Interpret(text, c.question.Options)
	if !res.Matched() {
		c.bumpUnresolved(ctx)
		c.transition(StateUnmatched, fmt.Sprintf("I heard %q but could not match it to an option. Please try again.", res.RawTranscript))
		c.speakBestEffort(ctx, "I heard "+res.RawTranscript+". I could not match that to an option. Please try again.")
		return
	}

	c.setCandidate(res.OptionIndex)
	opt := c.question.Options[res.OptionIndex]
	c.transition(StateAwaiting, fmt.Sprintf("You selected %s.", opt))
	c.recordEvent(ctx, "candidate", opt)
	c.speakBestEffort(ctx, fmt.Sprintf("You selected %s. Say confirm to lock it in, or say a different option.", opt))
}

// commit is the only edge into StateCommitted, shared by the voice and manual
// paths. The committed flag makes it idempotent.
func (c *Controller) commit(ctx context.Context, optionIndex int) error {
	c.mu.Lock()
	if c.committed {
		c.mu.Unlock()
		return nil
	}
	if optionIndex < 0 || optionIndex >= len(c.question.Options) {
		c.mu.Unlock()
		return fmt.Errorf("no candidate to commit")
	}
	c.committed = true
	cancel := c.cancelRun
	c.mu.Unlock()

	if _, err := c.deps.Sink.RecordAnswer(ctx, c.attemptID, c.questionIndex, optionIndex); err != nil {
		// The attempt service enforces one record per question, so reopening
		// the guard cannot double-append.
		c.mu.Lock()
		c.committed = false
		c.mu.Unlock()
		c.transition(StateUnmatched, "Recording the answer failed. Please try again.")
		return fmt.Errorf("record answer: %w", err)
	}

	opt := c.question.Options[optionIndex]
	c.transition(StateCommitted, fmt.Sprintf("Answer recorded: %s.", opt))
	c.recordEvent(ctx, "committed", opt)
	c.speakBestEffort(ctx, "Answer recorded: "+opt)
	if cancel != nil {
		cancel()
	}
	return nil
}

// ManualConfirm commits the held candidate without the speech pipeline.
func (c *Controller) ManualConfirm(ctx context.Context) error {
	held := c.heldCandidate()
	if held < 0 {
		return fmt.Errorf("no candidate selected")
	}
	return c.commit(ctx, held)
}

// ManualSelect holds an option as the candidate, same as a matched transcript.
func (c *Controller) ManualSelect(ctx context.Context, optionIndex int) error {
	if c.isCommitted() {
		return fmt.Errorf("answer already committed")
	}
	if optionIndex < 0 || optionIndex >= len(c.question.Options) {
		return fmt.Errorf("option index %d out of range", optionIndex)
	}
	c.setCandidate(optionIndex)
	c.transition(StateAwaiting, fmt.Sprintf("You selected %s.", c.question.Options[optionIndex]))
	c.recordEvent(ctx, "candidate", c.question.Options[optionIndex])
	return nil
}

// ManualReject discards the candidate. The voice loop keeps listening, so
// cancelled is a retry rather than an exit.
func (c *Controller) ManualReject(ctx context.Context) {
	c.clearCandidate(ctx, "Selection cleared. Choose an option.")
}

func (c *Controller) clearCandidate(ctx context.Context, feedback string) {
	c.mu.Lock()
	c.candidate = -1
	c.mu.Unlock()
	c.transition(StateCancelled, feedback)
	c.recordEvent(ctx, "cancelled", "")
}

func (c *Controller) bumpUnresolved(ctx context.Context) {
	c.mu.Lock()
	c.unresolved++
	offer := c.unresolved >= c.cfg.ManualOfferCycles && !c.manualOffered
	if offer {
		c.manualOffered = true
	}
	c.mu.Unlock()
	if offer {
		c.recordEvent(ctx, "manual_offered", "unresolved cycles")
	}
}

func (c *Controller) announce(ctx context.Context, text string) {
	c.transition(StateAnnouncing, "")
	err := c.deps.Speaker.Speak(ctx, c.sessionID, text, synth.Options{})
	switch {
	case err == nil:
	case errors.Is(err, synth.ErrUnavailable):
		// Degrade to text-only prompts; the status feed still carries them.
		c.transition(StateAnnouncing, text)
	case errors.Is(err, context.Canceled):
	default:
		c.logger.Warn("announce failed", slog.String("session_id", c.sessionID), slogError(err))
	}
}

func (c *Controller) speakBestEffort(ctx context.Context, text string) {
	err := c.deps.Speaker.Speak(ctx, c.sessionID, text, synth.Options{})
	if err != nil && !errors.Is(err, synth.ErrUnavailable) && !errors.Is(err, context.Canceled) {
		c.logger.Debug("utterance failed", slogError(err))
	}
}

// Stop tears the controller down. Cancelling the run context ends this
// session's in-flight capture and utterance; other controllers sharing the
// speech services are unaffected.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancelRun
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status snapshots the observable fields for rendering.
func (c *Controller) Status() protocol.DialogStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers a status observer. Slow observers drop updates rather
// than stall the controller.
func (c *Controller) Subscribe() (<-chan protocol.DialogStatus, func()) {
	ch := make(chan protocol.DialogStatus, 16)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) statusLocked() protocol.DialogStatus {
	return protocol.DialogStatus{
		SessionID: c.sessionID,
		AttemptID: c.attemptID,
		State:     string(c.state),
		Listening: c.listening,
		Candidate: c.candidate,
		Feedback:  c.feedback,
		Attempts:  c.noInput,
		Manual:    c.manualOffered,
		Question:  c.questionIndex,
		Timestamp: time.Now().UTC(),
	}
}

func (c *Controller) transition(state State, feedback string) {
	c.mu.Lock()
	c.state = state
	if feedback != "" {
		c.feedback = feedback
	}
	st := c.statusLocked()
	c.mu.Unlock()
	c.publish(st)
}

func (c *Controller) setListening(v bool) {
	c.mu.Lock()
	c.listening = v
	if v {
		c.state = StateListening
	}
	st := c.statusLocked()
	c.mu.Unlock()
	c.publish(st)
}

func (c *Controller) publish(st protocol.DialogStatus) {
	if data, err := json.Marshal(st); err == nil {
		_ = c.deps.Bus.Publish(protocol.SubjectDialogStatus, data)
	}
	c.mu.Lock()
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
		}
	}
	c.mu.Unlock()
}

func (c *Controller) recordEvent(ctx context.Context, typ, detail string) {
	ev := protocol.DialogEvent{
		SessionID: c.sessionID,
		AttemptID: c.attemptID,
		Type:      typ,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if c.deps.Events != nil {
		if err := c.deps.Events.AppendEvent(ctx, ev); err != nil {
			c.logger.Warn("event append failed", slogError(err))
		}
	}
	if data, err := json.Marshal(ev); err == nil {
		_ = c.deps.Bus.Publish(protocol.SubjectDialogEvent, data)
	}
}

func (c *Controller) questionPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d. %s.", c.questionIndex+1, strings.TrimSuffix(c.question.Prompt, "."))
	for i, opt := range c.question.Options {
		fmt.Fprintf(&b, " Option %d: %s.", i+1, opt)
	}
	return b.String()
}

func (c *Controller) heldCandidate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.candidate
}

func (c *Controller) setCandidate(i int) {
	c.mu.Lock()
	c.candidate = i
	c.mu.Unlock()
}

func (c *Controller) setManualOffered() {
	c.mu.Lock()
	c.manualOffered = true
	c.mu.Unlock()
}

func (c *Controller) isCommitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
