// Package app assembles the caption pipeline from its parts and manages its
// lifecycle: feed → corrector → voice log → dispatcher → overlay, plus the
// HTTP surface (health, metrics, overlay websocket).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/overcast-online/lingograph/internal/config"
	"github.com/overcast-online/lingograph/internal/dispatch"
	"github.com/overcast-online/lingograph/internal/health"
	"github.com/overcast-online/lingograph/internal/observe"
	"github.com/overcast-online/lingograph/internal/overlay"
	"github.com/overcast-online/lingograph/internal/transcript"
	"github.com/overcast-online/lingograph/internal/voicelog"
	"github.com/overcast-online/lingograph/pkg/feed"
	"github.com/overcast-online/lingograph/pkg/provider/translate"
	"github.com/overcast-online/lingograph/pkg/types"
)

// App wires the full caption pipeline. Construct with [New], drive with
// [App.Run], and tear down with [App.Shutdown].
type App struct {
	cfg        *config.Config
	translator translate.Translator
	source     feed.Source
	metrics    *observe.Metrics

	corrector  *transcript.Corrector
	recorder   voicelog.Recorder
	archive    *voicelog.Archive
	buffer     *overlay.Buffer
	renderer   *overlay.Renderer
	sink       overlay.Sink
	socket     *overlay.SocketSink
	dispatcher *dispatch.Dispatcher
	health     *health.Handler
	httpServer *http.Server
	watcher    *config.Watcher
	logLevel   *slog.LevelVar
}

// Option is a functional option for configuring an [App].
type Option func(*App)

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar hands the app the level var backing the process logger so
// config hot reloads can adjust verbosity.
func WithLogLevelVar(lvl *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lvl }
}

// New builds the pipeline described by cfg around the given translator and
// utterance source. Nothing runs until [App.Run].
func New(ctx context.Context, cfg *config.Config, translator translate.Translator, source feed.Source, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		translator: translator,
		source:     source,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.corrector = transcript.New(cfg.Glossary.Terms,
		transcript.WithThreshold(cfg.Glossary.PhoneticThreshold),
	)

	a.health = health.New()

	if err := a.initVoiceLog(ctx); err != nil {
		return nil, err
	}
	if err := a.initOverlay(); err != nil {
		return nil, err
	}
	if err := a.initDispatcher(); err != nil {
		return nil, err
	}
	a.initHTTP()

	return a, nil
}

// initVoiceLog sets up the original-language recorders: daily text files and,
// when a DSN is configured, the PostgreSQL archive.
func (a *App) initVoiceLog(ctx context.Context) error {
	out := a.cfg.Output
	var recorders []voicelog.Recorder

	if out.VoiceLogEnabled {
		w, err := voicelog.NewWriter(out.VoiceLogDirectory, a.cfg.Translation.FromLanguage)
		if err != nil {
			return fmt.Errorf("app: voice log: %w", err)
		}
		recorders = append(recorders, w)
		slog.Info("voice log enabled", "directory", out.VoiceLogDirectory)
	}

	if out.PostgresDSN != "" {
		sessionID := uuid.NewString()
		archive, err := voicelog.NewArchive(ctx, out.PostgresDSN, sessionID)
		if err != nil {
			return fmt.Errorf("app: voice log archive: %w", err)
		}
		a.archive = archive
		recorders = append(recorders, archive)
		a.health.AddCheck("archive", archive.Ping)
		slog.Info("voice log archive connected", "session_id", sessionID)
	}

	switch len(recorders) {
	case 0:
		// Recording disabled entirely.
	case 1:
		a.recorder = recorders[0]
	default:
		a.recorder = voicelog.NewMultiRecorder(recorders...)
	}
	return nil
}

// initOverlay builds the caption buffer, its sinks, and the renderer.
func (a *App) initOverlay() error {
	out := a.cfg.Output

	buffer, err := overlay.NewBuffer(out.OBSBufferLines, out.TTL())
	if err != nil {
		return fmt.Errorf("app: overlay: %w", err)
	}
	a.buffer = buffer

	fileSink, err := overlay.NewFileSink(out.OBSFile)
	if err != nil {
		return fmt.Errorf("app: overlay: %w", err)
	}
	a.socket = overlay.NewSocketSink()
	a.sink = overlay.NewMultiSink(fileSink, a.socket)

	renderer, err := overlay.NewRenderer(overlay.RendererConfig{
		Buffer:          buffer,
		Sink:            a.sink,
		SweepInterval:   out.SweepInterval(),
		Timestamps:      out.IncludeTimestamp,
		TimestampFormat: out.TimestampFormat,
		Separator:       out.OBSLineSeparator,
		ClearOnStart:    out.ClearOnStart,
		Metrics:         a.metrics,
	})
	if err != nil {
		return fmt.Errorf("app: overlay: %w", err)
	}
	a.renderer = renderer
	return nil
}

// initDispatcher builds the bounded translation dispatcher.
func (a *App) initDispatcher() error {
	d, err := dispatch.New(a.translator, a.cfg.Translation.DispatcherConfig(),
		dispatch.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("app: dispatcher: %w", err)
	}
	a.dispatcher = d

	// A healthy dispatcher can never hold more unreleased outcomes than the
	// queue, the workers, and the outcome buffer combined; anything above
	// that means the release stage is wedged.
	limit := 2*a.cfg.Translation.QueueSize + a.cfg.Translation.MaxConcurrentRequests
	a.health.AddCheck("dispatcher", func(context.Context) error {
		if n := d.Pending(); n > limit {
			return fmt.Errorf("%d outcomes pending release (limit %d)", n, limit)
		}
		return nil
	})
	return nil
}

// initHTTP assembles the HTTP surface: health endpoints, Prometheus metrics,
// and the overlay websocket, all behind the tracing middleware.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /overlay/ws", a.socket)

	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// WatchConfig starts polling the config file at path and applies the
// hot-reloadable settings (log level, glossary) when it changes.
func (a *App) WatchConfig(path string) error {
	w, err := config.NewWatcher(path, func(_, new *config.Config, diff config.ConfigDiff) {
		a.applyReload(new, diff)
	})
	if err != nil {
		return fmt.Errorf("app: config watcher: %w", err)
	}
	a.watcher = w
	return nil
}

// applyReload applies the hot-reloadable part of a config change.
func (a *App) applyReload(cfg *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.GlossaryChanged {
		a.corrector.SetTerms(cfg.Glossary.Terms)
		slog.Info("glossary reloaded",
			"terms", len(cfg.Glossary.Terms),
			"added", diff.TermsAdded,
			"removed", diff.TermsRemoved,
		)
	}
}

// Run operates the pipeline until ctx is cancelled or the utterance source
// ends. It always returns the first pipeline error, or nil on a clean feed
// end / cancellation-driven drain.
func (a *App) Run(ctx context.Context) error {
	utterances, err := a.source.Run(ctx)
	if err != nil {
		return fmt.Errorf("app: feed: %w", err)
	}

	a.renderer.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.dispatcher.Run(ctx)
	})

	g.Go(func() error {
		a.pump(ctx, utterances)
		return nil
	})

	// Closed when the last outcome has reached the overlay, so a finished
	// feed winds the HTTP surface down without waiting for a signal.
	pipelineDone := make(chan struct{})
	g.Go(func() error {
		defer close(pipelineDone)
		a.deliver(ctx)
		return nil
	})

	g.Go(func() error {
		err := a.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-pipelineDone:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// pump feeds utterances through correction and recording into the
// dispatcher. It closes the dispatcher when the source ends, so queued work
// drains and the outcome stream terminates.
func (a *App) pump(ctx context.Context, utterances <-chan types.Utterance) {
	defer a.dispatcher.Close()

	for u := range utterances {
		corrected, corrections := a.corrector.Correct(u.Text)
		for _, c := range corrections {
			slog.Debug("glossary correction",
				"sequence", u.Sequence,
				"heard", c.Heard,
				"term", c.Term,
				"confidence", c.Confidence,
			)
		}
		u.Text = corrected

		// Recording failures are logged, never block captioning.
		if a.recorder != nil {
			if err := a.recorder.Record(ctx, u); err != nil {
				slog.Warn("voice log record failed", "sequence", u.Sequence, "err", err)
			}
		}

		switch err := a.dispatcher.Submit(u); {
		case err == nil:
		case errors.Is(err, dispatch.ErrOverloaded):
			slog.Warn("dispatcher overloaded, dropping utterance", "sequence", u.Sequence)
		case errors.Is(err, dispatch.ErrClosed):
			return
		default:
			slog.Error("submit failed", "sequence", u.Sequence, "err", err)
		}
	}
	slog.Info("utterance feed ended")
}

// deliver moves ordered outcomes onto the overlay.
func (a *App) deliver(ctx context.Context) {
	for o := range a.dispatcher.Outcomes() {
		logger := observe.Logger(ctx)
		if o.Err != nil {
			logger.Warn("caption degraded",
				"sequence", o.Sequence,
				"status", o.Status.String(),
				"attempts", o.Attempts,
				"err", o.Err,
			)
		} else {
			logger.Debug("caption ready", "sequence", o.Sequence, "status", o.Status.String())
		}
		if err := a.renderer.Show(o.Sequence, o.Text); err != nil {
			logger.Error("overlay rejected caption", "sequence", o.Sequence, "err", err)
		}
	}
}

// Shutdown releases everything Run left behind. Safe to call after Run has
// returned; returns the joined close errors.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.renderer.Stop()

	if err := a.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("app: close sinks: %w", err))
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close voice log: %w", err))
		}
	}

	return errors.Join(errs...)
}

// slogLevel maps a config log level onto its slog equivalent.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
