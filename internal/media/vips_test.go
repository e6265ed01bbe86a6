package media

import (
	"testing"

	"github.com/davidbyttow/govips/v2/vips"

	"photo-library/internal/logging"
)

func TestVipsLogSettings(t *testing.T) {
	tests := []struct {
		level logging.LogLevel
		want  vips.LogLevel
	}{
		{logging.LevelDebug, vips.LogLevelInfo},
		{logging.LevelInfo, vips.LogLevelWarning},
		{logging.LevelWarn, vips.LogLevelError},
		{logging.LevelError, vips.LogLevelCritical},
	}
	for _, tt := range tests {
		got, handler := vipsLogSettings(tt.level)
		if got != tt.want {
			t.Errorf("vipsLogSettings(%v) level = %v, want %v", tt.level, got, tt.want)
		}
		if handler == nil {
			t.Errorf("vipsLogSettings(%v) handler = nil", tt.level)
		}
		// Messages above the threshold are dropped without panicking.
		handler("test", vips.LogLevelDebug, "ignored")
	}
}

func TestLoadImageWithVipsUnavailable(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips already initialized in this process")
	}
	if _, err := LoadImageWithVips("/nonexistent.jpg", HighResSize); err == nil {
		t.Error("LoadImageWithVips() succeeded before InitVips")
	}
}
