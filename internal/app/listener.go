// Package app assembles the listener: recognition, trigger matching, alerts,
// word storage and the remote control surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/emmett/hark/internal/alert"
	"github.com/emmett/hark/internal/config"
	"github.com/emmett/hark/internal/input"
	"github.com/emmett/hark/internal/models"
	"github.com/emmett/hark/internal/output"
	"github.com/emmett/hark/internal/server"
	grpcserver "github.com/emmett/hark/internal/server/grpc"
	httpserver "github.com/emmett/hark/internal/server/http"
	"github.com/emmett/hark/internal/supervisor"
	"github.com/emmett/hark/internal/trace"
	"github.com/emmett/hark/internal/trigger"
	"github.com/emmett/hark/internal/wordstore"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Listener. Zero values pick the production parts.
type Options struct {
	Config    *config.Config
	ModelName string
	Version   string
	Log       zerolog.Logger

	// Out receives formatted events; nil writes to Config.Output.File or stdout
	Out io.Writer

	// Sessions replaces the Vosk microphone session factory
	Sessions supervisor.SessionFactory
	// Alerts replaces the desktop and log alert sinks
	Alerts supervisor.AlertSink
	// Store replaces the configured word store
	Store wordstore.Store
}

// Listener owns the supervisor and everything wired around it
type Listener struct {
	cfg     *config.Config
	version string
	log     zerolog.Logger

	sup     *supervisor.Supervisor
	words   *wordstore.Manager
	events  *server.Broadcaster
	cleanup []func() error
}

// New builds the listener graph. Nothing runs until Run.
func New(ctx context.Context, opts Options) (*Listener, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	l := &Listener{
		cfg:     cfg,
		version: opts.Version,
		log:     opts.Log.With().Str("component", "app").Logger(),
		events:  server.NewBroadcaster(opts.Log),
	}

	if err := trace.Initialize(ctx, trace.Config{
		ServiceName:    "hark",
		ServiceVersion: opts.Version,
		ExporterType:   cfg.Trace.Exporter,
		OTLPEndpoint:   cfg.Trace.OTLPEndpoint,
		SamplingRate:   cfg.Trace.SamplingRate,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	l.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return trace.Shutdown(ctx)
	})

	store := opts.Store
	if store == nil {
		var err error
		store, err = wordstore.Open(ctx, wordstore.Config{
			Backend:     cfg.Words.Backend,
			Path:        cfg.Words.Path,
			PostgresURL: cfg.Words.PostgresURL,
			MaxConns:    cfg.Words.MaxConns,
		})
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open word store: %w", err)
		}
	}
	if c, ok := store.(io.Closer); ok {
		l.onClose(c.Close)
	}

	formatter, err := l.formatter(opts.Out)
	if err != nil {
		l.Close()
		return nil, err
	}
	sinks := server.Sinks{output.NewFormatterSink(formatter, opts.Log), l.events}

	alerts := opts.Alerts
	if alerts == nil {
		alerts = l.alerts(opts.Log)
	}

	sessions := opts.Sessions
	if sessions == nil {
		mgr := models.NewManager(cfg.Model.Dir, opts.Log)
		name := opts.ModelName
		if name == "" {
			name = cfg.Model.Default
		}
		sessions = VoskSessions(cfg, mgr, name, opts.Log.With().Str("component", "stt").Logger())
	}

	l.sup = supervisor.New(supervisor.Config{
		RestartBackoff:      cfg.RestartBackoff(),
		TransientRetryDelay: config.Seconds(cfg.Supervisor.TransientRetryDelay),
	}, sessions, trigger.NewChannel(), sinks, alerts, opts.Log)

	l.words = wordstore.NewManager(store, wordstore.NewCache(cfg.Words.CachePath), l.sup, opts.Log)
	return l, nil
}

func (l *Listener) formatter(out io.Writer) (output.Formatter, error) {
	if out == nil {
		out = os.Stdout
		if l.cfg.Output.File != "" {
			f, err := os.Create(l.cfg.Output.File)
			if err != nil {
				return nil, fmt.Errorf("failed to create output file: %w", err)
			}
			l.onClose(f.Close)
			out = f
		}
	}
	f, err := output.NewFormatter(l.cfg.Output.Format, out)
	if err != nil {
		return nil, err
	}
	l.onClose(f.Close)
	return f, nil
}

func (l *Listener) alerts(log zerolog.Logger) supervisor.AlertSink {
	sinks := alert.Multi{alert.NewLogSink(log)}
	if l.cfg.Alert.Desktop || l.cfg.Alert.Beep {
		desktop := alert.NewDesktopSink(alert.Config{
			Title:   l.cfg.Alert.Title,
			Desktop: l.cfg.Alert.Desktop,
			Beep:    l.cfg.Alert.Beep,
			Pattern: l.cfg.Alert.Pattern,
		}, log)
		l.onClose(desktop.Close)
		sinks = append(sinks, desktop)
	}
	return sinks
}

func (l *Listener) onClose(fn func() error) {
	l.cleanup = append(l.cleanup, fn)
}

// Supervisor returns the recognition supervisor
func (l *Listener) Supervisor() *supervisor.Supervisor { return l.sup }

// Words returns the trigger word manager
func (l *Listener) Words() *wordstore.Manager { return l.words }

// Events returns the broadcaster remote subscribers attach to
func (l *Listener) Events() *server.Broadcaster { return l.events }

// Run loads the trigger words, serves the configured control surfaces and
// supervises recognition until ctx ends. With autoStart, listening begins
// right away.
func (l *Listener) Run(ctx context.Context, autoStart bool) error {
	defer l.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.sup.Run(ctx) })

	if err := l.loadWords(ctx); err != nil {
		l.log.Warn().Err(err).Msg("trigger words not loaded")
	}

	if addr := l.cfg.Server.HTTPAddr; addr != "" {
		srv := httpserver.NewServer(httpserver.Config{
			Addr:           addr,
			AllowedOrigins: l.cfg.Server.AllowedOrigins,
		}, l.sup, l.words, l.events, l.log)
		g.Go(srv.Run)
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if port := l.cfg.Server.GRPCPort; port > 0 {
		srv := grpcserver.NewServer(grpcserver.Config{Host: l.cfg.Server.Host, Port: port}, l.sup, l.events, l.log)
		g.Go(srv.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			srv.Stop()
			return nil
		})
	}

	if l.cfg.Hotkey.Enabled {
		hk, err := input.NewHotkey(l.cfg.Hotkey.Keys, input.ToggleFunc(l.toggle), l.log)
		if err == nil {
			err = hk.Start(ctx)
		}
		if err != nil {
			l.log.Warn().Err(err).Msg("hotkey unavailable")
		} else {
			defer hk.Stop()
		}
	}

	if autoStart {
		if err := l.sup.Start(ctx); err != nil {
			l.log.Error().Err(err).Msg("start listening")
		}
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (l *Listener) loadWords(ctx context.Context) error {
	words, err := l.words.Load(ctx)
	if err != nil {
		return err
	}
	if len(words) == 0 && len(l.cfg.Words.Seed) > 0 {
		words, err = l.words.Save(ctx, l.cfg.Words.Seed)
		if err != nil {
			return fmt.Errorf("failed to seed trigger words: %w", err)
		}
	}
	l.log.Info().Strs("words", words).Msg("trigger words loaded")
	return nil
}

// toggle starts listening when idle and stops it otherwise
func (l *Listener) toggle(ctx context.Context) error {
	st, err := l.sup.Status(ctx)
	if err != nil {
		return err
	}
	switch st.State {
	case supervisor.StateListening, supervisor.StateRestarting:
		return l.sup.Stop(ctx)
	}
	return l.sup.Start(ctx)
}

// Close releases everything New acquired, in reverse order
func (l *Listener) Close() error {
	var errs []error
	for i := len(l.cleanup) - 1; i >= 0; i-- {
		if err := l.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	l.cleanup = nil
	return errors.Join(errs...)
}
