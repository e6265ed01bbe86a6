package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

// Config holds the output configuration for the logger.
type Config struct {
	// Level overrides LOG_LEVEL when non-empty.
	Level string `mapstructure:"level"`
	// FileLogging enables a rotating log file next to console output.
	FileLogging bool `mapstructure:"file_logging"`
	// Directory and Filename locate the log file.
	Directory string `mapstructure:"directory"`
	Filename  string `mapstructure:"filename"`
	// MaxSize is the size in megabytes before a log file is rolled.
	MaxSize int `mapstructure:"max_size"`
	// MaxBackups is the number of rolled files to keep.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAge is the number of days to keep rolled files.
	MaxAge int `mapstructure:"max_age"`
	// Compress gzips rolled files.
	Compress bool `mapstructure:"compress"`
}

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	loggerMu sync.RWMutex
	logger   = newLogger(consoleWriter(os.Stderr))
)

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}

// ParseLevel converts a level name into a LogLevel.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		// DEBUG wins over LOG_LEVEL
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel = LevelDebug
				return
			}
		}

		level, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
		currentLevel = level
	})
}

// Initialize configures log outputs and, when cfg.Level is set, the level.
func Initialize(cfg Config) error {
	initLevel()

	if cfg.Level != "" {
		level, ok := ParseLevel(cfg.Level)
		if !ok {
			return fmt.Errorf("unknown log level %q", cfg.Level)
		}
		SetLevel(level)
	}

	writers := []io.Writer{consoleWriter(os.Stderr)}
	if cfg.FileLogging {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, cfg.Filename),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	SetOutput(zerolog.MultiLevelWriter(writers...))
	return nil
}

// SetOutput replaces the log destination. Tests use it to capture output.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = newLogger(w)
}

// SetLevel overrides the level derived from the environment.
func SetLevel(level LogLevel) {
	initLevel()
	loggerMu.Lock()
	defer loggerMu.Unlock()
	currentLevel = level
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func current() *zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	l := logger
	return &l
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		current().Debug().Msgf(format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		current().Info().Msgf(format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		current().Warn().Msgf(format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		current().Error().Msgf(format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	current().Fatal().Msgf(format, args...)
}

// Printf logs a message regardless of level
func Printf(format string, args ...interface{}) {
	current().Log().Msgf(format, args...)
}

// Event starts a structured line at level. It returns nil, which zerolog
// treats as a no-op, when level is disabled.
func Event(level LogLevel) *zerolog.Event {
	if GetLevel() > level {
		return nil
	}
	l := current()
	switch level {
	case LevelDebug:
		return l.Debug()
	case LevelInfo:
		return l.Info()
	case LevelWarn:
		return l.Warn()
	default:
		return l.Error()
	}
}

// With returns a structured logger carrying the given key/value context.
// Used by the scanner to tag every line of a job with its user.
func With(key string, value interface{}) zerolog.Logger {
	return current().With().Interface(key, value).Logger()
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
