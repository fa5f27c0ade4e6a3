package logging

import (
	"bytes"
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
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetLevel_AdjustsConfiguredLogger(t *testing.T) {
	t.Setenv("CMSCOPE_LOG_LEVEL", "")
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger, err := Configure(&buf, "warn")
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	logger.Debug("before")
	SetLevel(slog.LevelDebug)
	logger.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("expected debug to be filtered at warn, got %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("expected debug to be logged after SetLevel, got %q", out)
	}
}

func TestConfigure_EnvOverridesLevel(t *testing.T) {
	t.Setenv("CMSCOPE_LOG_LEVEL", "ERROR")
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger, err := Configure(&buf, "debug")
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	logger.Warn("dropped")
	logger.Error("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected warn to be filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected error to be logged, got %q", out)
	}
}
