package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/Veraticus/idlewatch/pkg/config"
	"github.com/Veraticus/idlewatch/pkg/logging"
	"github.com/Veraticus/idlewatch/pkg/source"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		configPath  string
		sourceName  string
		logLevel    string
		logFormat   string
		verbose     bool
		listSources bool
		help        bool
	)

	fs := flag.NewFlagSet("idlewatch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configPath, "config", "", "Path to config file")
	fs.StringVar(&sourceName, "source", "", "Input source (see --list-sources)")
	fs.StringVar(&logLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error")
	fs.StringVar(&logFormat, "log-format", "", "Diagnostic log format: text or json")
	fs.BoolVarP(&verbose, "verbose", "v", false, "Echo idle records to stdout")
	fs.BoolVar(&listSources, "list-sources", false, "List input sources and whether they work here")
	fs.BoolVarP(&help, "help", "h", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "idlewatch: %v\n", err)
		return exitFailure
	}

	if help {
		printUsage(stdout, fs)
		return exitOK
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "idlewatch: %v\n", err)
		return exitFailure
	}

	if err := config.ApplyArgs(cfg, fs.Args()); err != nil {
		fmt.Fprintf(stderr, "idlewatch: %v\n", err)
		return exitFailure
	}

	// Flags override everything else.
	if fs.Changed("source") {
		cfg.Source = sourceName
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if fs.Changed("verbose") {
		cfg.Verbose = verbose
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "idlewatch: invalid configuration: %v\n", err)
		return exitFailure
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "idlewatch: %v\n", err)
		return exitFailure
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "idlewatch: %v\n", err)
		return exitFailure
	}
	logger := logging.New(stderr, logging.Config{Level: level, Format: format})

	if listSources {
		printSources(stdout, cfg)
		return exitOK
	}

	deps, err := NewDependencies(cfg, logger, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "idlewatch: %v\n", err)
		return exitFailure
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("idlewatch.close", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("idlewatch.start",
		"log_file", cfg.LogFile,
		"idle_threshold", cfg.IdleThreshold,
		"sample_interval", cfg.SampleInterval,
		"source", cfg.Source)

	err = NewApplication(deps).Run(ctx)
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		logger.Info("idlewatch.stop", "reason", "signal")
		return exitInterrupted
	}
	if err != nil {
		logger.Error("idlewatch.failed", "error", err)
		fmt.Fprintf(stderr, "idlewatch: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// loadConfig reads an explicit config file when given, else the default locations.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		return config.LoadFile(path)
	}
	return config.Load()
}

func printSources(w io.Writer, cfg *config.Config) {
	opts := source.Options{
		Devices:      cfg.Devices,
		TTY:          cfg.TTY,
		PollInterval: cfg.PollInterval,
	}
	for _, name := range source.Names() {
		ok, reason := source.Available(name, opts)
		mark := "no "
		if ok {
			mark = "yes"
		}
		fmt.Fprintf(w, "%-11s %s  %s\n", name, mark, reason)
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "idlewatch - record every time you go idle")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: idlewatch [OPTIONS] [LOG_FILE [IDLE_MINUTES [SAMPLE_SECONDS]]]")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  LOG_FILE        Append-only idle log (default: %s)\n", config.DefaultLogFile())
	fmt.Fprintln(w, "  IDLE_MINUTES    Idle threshold in whole minutes (default: 5)")
	fmt.Fprintln(w, "  SAMPLE_SECONDS  Sampling interval in whole seconds (default: 30)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment Variables:")
	fmt.Fprintln(w, "  IDLEWATCH_LOG_FILE         Idle log path")
	fmt.Fprintln(w, "  IDLEWATCH_IDLE_THRESHOLD   Idle threshold as a duration (e.g. 5m)")
	fmt.Fprintln(w, "  IDLEWATCH_SAMPLE_INTERVAL  Sampling interval as a duration (e.g. 30s)")
	fmt.Fprintln(w, "  IDLEWATCH_SOURCE           Input source")
	fmt.Fprintln(w, "  IDLEWATCH_LOG_LEVEL        Diagnostic log level")
	fmt.Fprintln(w, "  IDLEWATCH_LOCAL_TIME       Stamp records in local time (true/false)")
	fmt.Fprintln(w, "  IDLEWATCH_DEBUG            Set to 1 for debug diagnostics")
	fmt.Fprintln(w, "  IDLEWATCH_CONFIG           Path to config file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration file: ~/.config/idlewatch/config.yaml (or .toml via --config)")
}
