package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/idlewatch/pkg/config"
	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/logging"
	"github.com/Veraticus/idlewatch/pkg/source"
	"github.com/Veraticus/idlewatch/pkg/testutil"
	"github.com/Veraticus/idlewatch/pkg/types"
)

var recordLine = regexp.MustCompile(`^idle threshold reached: \d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2}$`)

// useSource swaps the source factory for the duration of the test.
func useSource(t *testing.T, factory func(string, source.Options) (interfaces.Source, error)) {
	t.Helper()
	orig := newSource
	newSource = factory
	t.Cleanup(func() { newSource = orig })
}

func mockSourceFactory(src *testutil.MockSource) func(string, source.Options) (interfaces.Source, error) {
	return func(string, source.Options) (interfaces.Source, error) {
		return src, nil
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "idle.txt")
	cfg.IdleThreshold = 40 * time.Millisecond
	cfg.SampleInterval = 5 * time.Millisecond
	return cfg
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func waitForLines(t *testing.T, path string, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if lines := readLines(t, path); len(lines) >= n {
			return lines
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d records, have %v", n, readLines(t, path))
	return nil
}

func TestNewDependencies(t *testing.T) {
	src := testutil.NewMockSource()
	useSource(t, mockSourceFactory(src))

	cfg := testConfig(t)
	deps, err := NewDependencies(cfg, logging.Discard(), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer func() { _ = deps.Close() }()

	if deps.Config != cfg {
		t.Error("Config not set correctly")
	}
	if deps.Source != src {
		t.Error("Source not set correctly")
	}
	if deps.Clock == nil || deps.Listener == nil || deps.Sampler == nil {
		t.Error("core components not created")
	}
	if deps.Sink != deps.LogFile {
		t.Error("Sink should be the log file when not verbose")
	}
	if _, err := os.Stat(cfg.LogFile); err != nil {
		t.Errorf("log file should exist after startup: %v", err)
	}
}

func TestNewDependencies_UnwritableLogPath(t *testing.T) {
	useSource(t, func(string, source.Options) (interfaces.Source, error) {
		t.Error("source must not be created when the log file cannot be opened")
		return nil, errors.New("unexpected")
	})

	cfg := testConfig(t)
	cfg.LogFile = filepath.Join(t.TempDir(), "missing", "idle.txt")

	deps, err := NewDependencies(cfg, logging.Discard(), &bytes.Buffer{})
	if err == nil {
		_ = deps.Close()
		t.Fatal("expected startup error for unwritable log path")
	}
	if !strings.Contains(err.Error(), "open log file") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(filepath.Dir(cfg.LogFile)); !os.IsNotExist(statErr) {
		t.Error("failed startup must not create the log directory")
	}
}

func TestNewDependencies_SourceError(t *testing.T) {
	useSource(t, func(string, source.Options) (interfaces.Source, error) {
		return nil, source.ErrUnavailable
	})

	cfg := testConfig(t)
	if _, err := NewDependencies(cfg, logging.Discard(), &bytes.Buffer{}); !errors.Is(err, source.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestApplication_RecordsEachEpisodeOnce(t *testing.T) {
	src := testutil.NewMockSource()
	useSource(t, mockSourceFactory(src))

	cfg := testConfig(t)
	var stdout bytes.Buffer
	cfg.Verbose = true

	deps, err := NewDependencies(cfg, logging.Discard(), &stdout)
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer func() { _ = deps.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewApplication(deps).Run(ctx) }()

	// First episode starts at launch.
	waitForLines(t, cfg.LogFile, 1)

	// Staying idle must not produce another record.
	time.Sleep(4 * cfg.IdleThreshold)
	if lines := readLines(t, cfg.LogFile); len(lines) != 1 {
		t.Fatalf("expected one record while idle, got %v", lines)
	}

	// Activity re-arms the sampler.
	src.Emit(types.ClassKeyPress)
	lines := waitForLines(t, cfg.LogFile, 2)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("application did not stop after cancel")
	}

	for _, line := range lines {
		if !recordLine.MatchString(line) {
			t.Errorf("malformed record %q", line)
		}
	}
	if src.Subscribed() != types.ClassAll {
		t.Errorf("expected subscription to all classes, got %v", src.Subscribed())
	}
	if got := strings.Count(stdout.String(), "idle threshold reached: "); got != len(lines) {
		t.Errorf("verbose output has %d records, log has %d", got, len(lines))
	}
}

func TestApplication_SourceFailureStopsSampler(t *testing.T) {
	src := testutil.NewMockSource()
	useSource(t, mockSourceFactory(src))

	cfg := testConfig(t)
	cfg.IdleThreshold = time.Hour

	deps, err := NewDependencies(cfg, logging.Discard(), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer func() { _ = deps.Close() }()

	sourceErr := errors.New("display connection lost")
	src.Fail(sourceErr)

	select {
	case err := <-runAsync(deps):
		if !errors.Is(err, sourceErr) {
			t.Errorf("expected source error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("application kept running after source failure")
	}
}

func TestApplication_SinkFailureStopsListener(t *testing.T) {
	src := testutil.NewMockSource()
	useSource(t, mockSourceFactory(src))

	cfg := testConfig(t)
	deps, err := NewDependencies(cfg, logging.Discard(), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer func() { _ = deps.Close() }()

	// Appends to a closed log file fail.
	if err := deps.LogFile.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	select {
	case err := <-runAsync(deps):
		if err == nil || !strings.Contains(err.Error(), "append idle record") {
			t.Errorf("expected append failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("application kept running after sink failure")
	}
}

func runAsync(deps *Dependencies) <-chan error {
	done := make(chan error, 1)
	go func() { done <- NewApplication(deps).Run(context.Background()) }()
	return done
}
