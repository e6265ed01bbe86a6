package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		ok       bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"DEBUG", LevelDebug, true},
		{" Info ", LevelInfo, true},
		{"", LevelInfo, false},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	levels := []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i := 0; i < len(levels)-1; i++ {
		if levels[i] >= levels[i+1] {
			t.Errorf("Log levels should be in ascending order: %v >= %v", levels[i], levels[i+1])
		}
	}
}

func captureOutput(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	prev := GetLevel()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, LevelWarn)

	Debug("debug line %d", 1)
	Info("info line %d", 2)
	Warn("warn line %d", 3)
	Error("error line %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug line") {
		t.Error("Debug message should be filtered at warn level")
	}
	if strings.Contains(out, "info line") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(out, "warn line 3") {
		t.Errorf("Expected warn line in output, got %q", out)
	}
	if !strings.Contains(out, "error line 4") {
		t.Errorf("Expected error line in output, got %q", out)
	}
}

func TestDebugEnabled(t *testing.T) {
	_ = captureOutput(t, LevelDebug)
	if !IsDebugEnabled() {
		t.Error("Expected debug to be enabled at debug level")
	}
	SetLevel(LevelInfo)
	if IsDebugEnabled() {
		t.Error("Expected debug to be disabled at info level")
	}
}

func TestPrintfIgnoresLevel(t *testing.T) {
	buf := captureOutput(t, LevelError)
	Printf("banner %s", "line")
	if !strings.Contains(buf.String(), "banner line") {
		t.Errorf("Expected Printf output regardless of level, got %q", buf.String())
	}
}

func TestWithAddsField(t *testing.T) {
	buf := captureOutput(t, LevelInfo)
	l := With("user", 7)
	l.Info().Msg("scoped")
	if !strings.Contains(buf.String(), `"user":7`) {
		t.Errorf("Expected user field in output, got %q", buf.String())
	}
}

func TestInitializeFileLogging(t *testing.T) {
	dir := t.TempDir()
	prev := GetLevel()
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})

	err := Initialize(Config{
		Level:       "info",
		FileLogging: true,
		Directory:   dir,
		Filename:    "photo-library.log",
		MaxSize:     1,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Info("written to file")

	data, err := os.ReadFile(filepath.Join(dir, "photo-library.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("Expected message in log file, got %q", string(data))
	}
}

func TestInitializeRejectsUnknownLevel(t *testing.T) {
	if err := Initialize(Config{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.expected {
				t.Errorf("LogLevel.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}
