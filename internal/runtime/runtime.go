// Package runtime assembles the daemon: telemetry, bus, stores, speech
// services, the dialog manager, and the HTTP gateway, with ordered shutdown.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxexam-labs/voxexam-core/internal/bus"
	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/dialog"
	"github.com/voxexam-labs/voxexam-core/internal/eventstore"
	"github.com/voxexam-labs/voxexam-core/internal/exam"
	"github.com/voxexam-labs/voxexam-core/internal/examstore"
	"github.com/voxexam-labs/voxexam-core/internal/extract"
	"github.com/voxexam-labs/voxexam-core/internal/gateway"
	"github.com/voxexam-labs/voxexam-core/internal/natsserver"
	"github.com/voxexam-labs/voxexam-core/internal/speech/recog"
	"github.com/voxexam-labs/voxexam-core/internal/speech/synth"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	tel        *telemetry
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up, serves until ctx ends, then shuts down in
// reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.tel = tel

	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Embedded {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}
		defer embedded.Shutdown()
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer busClient.Close()

	examStore, err := examstore.Open(ctx, r.cfg.ExamStore)
	if err != nil {
		return fmt.Errorf("open exam store: %w", err)
	}
	defer examStore.Close()
	exams := exam.NewService(examStore, r.logger)

	events, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer events.Close()

	synthSvc, err := r.buildSynthesis(ctx, busClient)
	if err != nil {
		return fmt.Errorf("build synthesis: %w", err)
	}
	defer synthSvc.Stop()

	recogSvc, pushSink, err := r.buildRecognition(busClient)
	if err != nil {
		return fmt.Errorf("build recognition: %w", err)
	}
	defer recogSvc.Stop()

	dialogs := dialog.NewManager(r.cfg.Dialog, exams, dialog.Deps{
		Speaker:  synthSvc,
		Listener: recogSvc,
		Sink:     exams,
		Bus:      busClient,
		Events:   events,
		Logger:   r.logger,
	})
	defer dialogs.Close()

	auth := gateway.NewAuthService(r.cfg.Auth)
	extractor := extract.NewClient(r.cfg.Extract)
	gw := gateway.New(r.cfg.HTTP, auth, exams, dialogs, extractor, pushSink, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if tel.metrics != nil {
		mux.Handle("/metrics", tel.metrics)
	}
	mux.Handle("/", gw.Router())

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("exam_store", r.cfg.ExamStore.Driver),
		slog.String("recognition_mode", r.cfg.Recognition.Mode),
		slog.String("synthesis_mode", r.cfg.Synthesis.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tel != nil {
		if err := r.tel.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildSynthesis(ctx context.Context, busClient *bus.Client) (*synth.Service, error) {
	var backend synth.Synthesizer
	if r.cfg.Synthesis.Enabled {
		switch r.cfg.Synthesis.Mode {
		case "exec":
			var err error
			backend, err = synth.NewExecSynth(r.cfg.Synthesis.Command, r.cfg.Synthesis.SampleRate, r.cfg.Synthesis.Channels)
			if err != nil {
				return nil, err
			}
		default:
			backend = synth.NewMockSynth(r.cfg.Synthesis.SampleRate, r.cfg.Synthesis.Channels)
		}
	}
	picker := synth.NewDefaultPicker(r.cfg.Synthesis.Voice)
	return synth.NewService(ctx, r.cfg.Synthesis, backend, picker, busClient, r.logger), nil
}

func (r *Runtime) buildRecognition(busClient *bus.Client) (*recog.Service, gateway.TranscriptSink, error) {
	var backend recog.Recognizer
	var sink gateway.TranscriptSink
	if r.cfg.Recognition.Enabled {
		switch r.cfg.Recognition.Mode {
		case "exec":
			var err error
			backend, err = recog.NewExecRecognizer(r.cfg.Recognition)
			if err != nil {
				return nil, nil, err
			}
		case "mock":
			backend = recog.NewMockRecognizer()
		default:
			push := recog.NewPushRecognizer()
			backend = push
			sink = push
		}
	}
	return recog.NewService(r.cfg.Recognition, backend, busClient, r.logger), sink, nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
