package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: slog.LevelInfo, Format: FormatJSON})

	logger.Debug("idle.sample", "idle", "1s")
	logger.Info("idle.episode", "detected_at", "17/05/2024 09:37:03")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the info record, got %d lines: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "idle.episode" {
		t.Errorf("msg = %v, want idle.episode", rec["msg"])
	}
	if _, ok := rec["component"]; ok {
		t.Errorf("component should only be set by WithComponent: %v", rec)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: slog.LevelDebug})

	logger.Debug("source.device.added", "path", "/dev/input/event3")

	out := buf.String()
	if !strings.Contains(out, "msg=source.device.added") || !strings.Contains(out, "path=/dev/input/event3") {
		t.Errorf("unexpected text output %q", out)
	}
	if strings.Contains(out, "component=") {
		t.Errorf("component attribute should be omitted: %q", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, Config{Level: slog.LevelInfo, Format: FormatJSON})

	WithComponent(base, "sampler").Info("idle.episode")
	base.Info("app.start")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %q", buf.String())
	}

	var tagged, plain map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &tagged); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &plain); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if tagged["component"] != "sampler" {
		t.Errorf("component = %v, want sampler", tagged["component"])
	}
	if _, ok := plain["component"]; ok {
		t.Errorf("base logger should stay untagged: %v", plain)
	}
}
