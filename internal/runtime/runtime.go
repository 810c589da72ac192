package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/eventstore"
	"github.com/loqalabs/loqa-tts/internal/merge"
	"github.com/loqalabs/loqa-tts/internal/natsserver"
	"github.com/loqalabs/loqa-tts/internal/pipeline"
	"github.com/loqalabs/loqa-tts/internal/speech"
	"github.com/loqalabs/loqa-tts/internal/tts"
	"github.com/loqalabs/loqa-tts/internal/web"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	server      *web.Server
	store       *eventstore.Store
	bus         *bus.Client
	embedded    *natsserver.EmbeddedServer
	service     *tts.Service
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start wires every component, serves HTTP and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	p, err := r.buildPipeline(ctx)
	if err != nil {
		r.closeResources(context.Background())
		return err
	}

	if r.cfg.Bus.ServeRequests && r.bus != nil {
		r.service = tts.NewService(ctx, r.bus, p, DefaultRequest(r.cfg.TTS), r.logger)
		if err := r.service.Start(); err != nil {
			r.closeResources(context.Background())
			return fmt.Errorf("start tts service: %w", err)
		}
	}

	r.server = web.New(web.Options{
		OutputDir:   r.cfg.Output.Directory,
		SilencePath: r.cfg.Silence.Path,
		Defaults:    DefaultRequest(r.cfg.TTS),
		Events:      r.store,
		Metrics:     metricsHandler,
		Ready:       r.readiness(),
	}, p, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	serveErr := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.server.Listen(addr); err != nil {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			serveErr <- err
			cancel()
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("tts_mode", r.cfg.TTS.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.server.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
	r.closeResources(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// readiness reports ready once the runtime has started and every optional
// bus component is healthy.
func (r *Runtime) readiness() func() bool {
	checks := []func() bool{r.ready.Load}
	if r.bus != nil {
		checks = append(checks, r.bus.Healthy)
	}
	if r.service != nil {
		checks = append(checks, r.service.Healthy)
	}
	return func() bool {
		for _, check := range checks {
			if !check() {
				return false
			}
		}
		return true
	}
}

// BuildPipeline assembles a pipeline from cfg without the HTTP layer. The
// returned closer releases the event store and bus connection.
func BuildPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pipeline.Pipeline, func() error, error) {
	r := New(cfg, logger)
	p, err := r.buildPipeline(ctx)
	if err != nil {
		r.closeResources(ctx)
		return nil, nil, err
	}
	return p, func() error { return r.closeResources(context.Background()) }, nil
}

func (r *Runtime) buildPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	if err := audio.EnsureSilenceFile(r.cfg.Silence.Path); err != nil {
		return nil, fmt.Errorf("prepare silence artifact: %w", err)
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	r.store = store

	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		embedded, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "natsserver")))
		if err != nil {
			return nil, err
		}
		r.embedded = embedded
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
		if err != nil {
			return nil, err
		}
		r.bus = client
	}

	synth, err := newSynthesizer(r.cfg, r.logger)
	if err != nil {
		return nil, err
	}
	merger, err := merge.New(r.cfg.Merge)
	if err != nil {
		return nil, fmt.Errorf("configure merger: %w", err)
	}

	opts := []pipeline.Option{pipeline.WithRecorder(store)}
	if r.bus != nil {
		opts = append(opts, pipeline.WithNotifier(r.bus))
	}
	return pipeline.New(pipeline.Options{
		MaxTextLength: r.cfg.TTS.MaxTextLength,
		CallTimeout:   time.Duration(r.cfg.TTS.CallTimeoutMS) * time.Millisecond,
		OutputDir:     r.cfg.Output.Directory,
		SilencePath:   r.cfg.Silence.Path,
	}, synth, merger, r.logger, opts...), nil
}

func newSynthesizer(cfg config.Config, logger *slog.Logger) (speech.Synthesizer, error) {
	switch cfg.TTS.Mode {
	case "exec":
		synth, err := speech.NewExecSynth(cfg.TTS.Command)
		if err != nil {
			return nil, fmt.Errorf("configure exec synthesizer: %w", err)
		}
		return synth, nil
	case "mock":
		logger.Warn("using mock synthesizer; output is silent")
		return speech.NewMockSynth(audio.DefaultSampleRate), nil
	default:
		synth, err := speech.NewOpenAISynthesizer(speech.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("configure openai synthesizer: %w", err)
		}
		return synth, nil
	}
}

// DefaultRequest returns the request the UI starts from.
func DefaultRequest(cfg config.TTSConfig) speech.Request {
	return speech.Request{
		Model:  speech.Model(cfg.DefaultModel),
		Voice:  speech.Voice(cfg.DefaultVoice),
		Format: speech.Format(cfg.DefaultFormat),
		Speed:  cfg.DefaultSpeed,
	}
}

func (r *Runtime) closeResources(ctx context.Context) error {
	var errs []error
	if r.service != nil {
		r.service.Close()
		r.service = nil
	}
	if r.bus != nil {
		r.bus.Close()
		r.bus = nil
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
		r.embedded = nil
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
		r.store = nil
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		r.tracerClose = nil
	}
	return errors.Join(errs...)
}
