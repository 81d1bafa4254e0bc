package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/source"
)

// isolateEnv keeps the user's config and environment out of run.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"IDLEWATCH_LOG_FILE",
		"IDLEWATCH_IDLE_THRESHOLD",
		"IDLEWATCH_SAMPLE_INTERVAL",
		"IDLEWATCH_SOURCE",
		"IDLEWATCH_LOG_LEVEL",
		"IDLEWATCH_LOCAL_TIME",
		"IDLEWATCH_DEBUG",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("IDLEWATCH_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
}

func TestRun_StartupErrors(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantInErr string
	}{
		{
			name:      "unwritable log path",
			args:      []string{filepath.Join("/nonexistent-idlewatch-dir", "idle.txt"), "1", "1"},
			wantInErr: "open log file",
		},
		{
			name:      "non-numeric threshold",
			args:      []string{"/tmp/idle.txt", "soon"},
			wantInErr: "invalid idle threshold",
		},
		{
			name:      "negative interval",
			args:      []string{"--", "/tmp/idle.txt", "5", "-1"},
			wantInErr: "invalid sample interval",
		},
		{
			name:      "negative interval without separator",
			args:      []string{"/tmp/idle.txt", "5", "-1"},
			wantInErr: "unknown shorthand flag",
		},
		{
			name:      "extra positional",
			args:      []string{"/tmp/idle.txt", "5", "30", "x"},
			wantInErr: "too many arguments",
		},
		{
			name:      "unknown flag",
			args:      []string{"--bogus"},
			wantInErr: "unknown flag",
		},
		{
			name:      "unknown source",
			args:      []string{"--source", "carrier-pigeon"},
			wantInErr: "unknown source",
		},
		{
			name:      "bad log level",
			args:      []string{"--log-level", "loud"},
			wantInErr: "unknown log level",
		},
		{
			name:      "missing explicit config",
			args:      []string{"--config", "/nonexistent-idlewatch-dir/config.yaml"},
			wantInErr: "config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			useSource(t, func(string, source.Options) (interfaces.Source, error) {
				t.Error("no source should be created on a startup error")
				return nil, errors.New("unexpected")
			})

			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)

			if code != exitFailure {
				t.Errorf("expected exit code %d, got %d", exitFailure, code)
			}
			if !strings.HasPrefix(stderr.String(), "idlewatch: ") {
				t.Errorf("expected prefixed error, got %q", stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.wantInErr) {
				t.Errorf("expected stderr to contain %q, got %q", tt.wantInErr, stderr.String())
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	isolateEnv(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--help"}, &stdout, &stderr); code != exitOK {
		t.Errorf("expected exit code 0, got %d", code)
	}

	out := stdout.String()
	for _, want := range []string{"LOG_FILE", "IDLE_MINUTES", "SAMPLE_SECONDS", "--list-sources", "IDLEWATCH_CONFIG"} {
		if !strings.Contains(out, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

func TestRun_SourceFailureExitsNonZero(t *testing.T) {
	isolateEnv(t)
	useSource(t, func(string, source.Options) (interfaces.Source, error) {
		return nil, source.ErrUnavailable
	})

	var stdout, stderr bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "idle.txt")
	if code := run([]string{logPath}, &stdout, &stderr); code != exitFailure {
		t.Errorf("expected exit code %d, got %d", exitFailure, code)
	}
	if !strings.Contains(stderr.String(), source.ErrUnavailable.Error()) {
		t.Errorf("unexpected stderr %q", stderr.String())
	}
}
