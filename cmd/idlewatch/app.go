package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/idlewatch/pkg/config"
	"github.com/Veraticus/idlewatch/pkg/idle"
	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/logging"
	"github.com/Veraticus/idlewatch/pkg/sink"
	"github.com/Veraticus/idlewatch/pkg/source"
)

// newSource builds the input source; tests replace it.
var newSource = source.New

// Dependencies holds all the dependencies for the application
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	LogFile  *sink.FileSink
	Sink     interfaces.Sink
	Source   interfaces.Source
	Clock    *idle.Clock
	Listener *idle.Listener
	Sampler  *idle.Sampler
}

// NewDependencies creates all dependencies with the given configuration.
// The log file is opened first so an unwritable path fails before any
// input source is touched.
func NewDependencies(cfg *config.Config, logger *slog.Logger, stdout io.Writer) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	logFile, err := sink.OpenFile(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	deps.LogFile = logFile
	deps.Sink = logFile
	if cfg.Verbose {
		deps.Sink = sink.Multi{logFile, sink.NewWriterSink(stdout)}
	}

	src, err := newSource(cfg.Source, source.Options{
		Devices:      cfg.Devices,
		TTY:          cfg.TTY,
		PollInterval: cfg.PollInterval,
		Logger:       logging.WithComponent(logger, "source"),
	})
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}
	deps.Source = src

	location := time.UTC
	if cfg.LocalTime {
		location = time.Local
	}

	deps.Clock = idle.NewClock(time.Now())
	deps.Listener = idle.NewListener(src, deps.Clock,
		idle.WithListenerLogger(logging.WithComponent(logger, "listener")))
	deps.Sampler = idle.NewSampler(deps.Clock, deps.Sink, cfg.IdleThreshold, cfg.SampleInterval,
		idle.WithLogger(logging.WithComponent(logger, "sampler")),
		idle.WithLocation(location))

	return deps, nil
}

// Close releases the input source and the log file.
func (d *Dependencies) Close() error {
	var errs []error
	if d.Source != nil {
		errs = append(errs, d.Source.Close())
	}
	if d.LogFile != nil {
		errs = append(errs, d.LogFile.Close())
	}
	return errors.Join(errs...)
}

// Application represents the main application
type Application struct {
	deps *Dependencies
}

// NewApplication creates a new application with the given dependencies
func NewApplication(deps *Dependencies) *Application {
	return &Application{
		deps: deps,
	}
}

// Run runs the listener and the sampler until ctx is cancelled or either
// one fails. The first failure stops the other.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.deps.Listener.Run(ctx)
	})
	g.Go(func() error {
		return a.deps.Sampler.Run(ctx)
	})

	return g.Wait()
}
