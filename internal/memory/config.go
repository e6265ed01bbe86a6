package memory

import (
	"math"
	"os"
	"runtime/debug"

	"github.com/dustin/go-humanize"

	"photo-library/internal/logging"
)

// DefaultRatio is the share of the container memory given to the Go heap.
// The rest is left to ffmpeg, libvips and goroutine stacks.
const DefaultRatio = 0.80

// Config holds memory management configuration
type Config struct {
	// LimitBytes is the container memory limit; 0 leaves GOMEMLIMIT alone.
	LimitBytes int64 `mapstructure:"limit_bytes"`
	// Ratio of LimitBytes used as GOMEMLIMIT, in (0,1].
	Ratio float64 `mapstructure:"ratio"`
	// HighWaterMark is the usage at which paused scans resume.
	HighWaterMark float64 `mapstructure:"high_water_mark"`
	// CriticalWaterMark is the usage at which scans pause.
	CriticalWaterMark float64 `mapstructure:"critical_water_mark"`
	// CheckInterval in seconds.
	CheckInterval int `mapstructure:"check_interval"`
}

// LimitResult reports how the heap limit was chosen.
type LimitResult struct {
	// Source is "GOMEMLIMIT", "config" or "none".
	Source     string
	Container  int64
	GoMemLimit int64
	Ratio      float64
}

// ApplyLimit sets GOMEMLIMIT from cfg unless the environment already sets
// it. Call it before significant allocations.
func ApplyLimit(cfg Config) LimitResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		res := LimitResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			res.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return res
	}
	if cfg.LimitBytes <= 0 {
		logging.Debug("No memory limit configured, GOMEMLIMIT left unset")
		return LimitResult{Source: "none"}
	}

	ratio := cfg.Ratio
	if ratio <= 0 || ratio > 1 {
		if ratio != 0 {
			logging.Warn("Memory ratio %.2f out of range (0.0-1.0], using %.2f", ratio, DefaultRatio)
		}
		ratio = DefaultRatio
	}
	limit := int64(float64(cfg.LimitBytes) * ratio)
	debug.SetMemoryLimit(limit)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		humanize.IBytes(uint64(limit)), ratio*100, humanize.IBytes(uint64(cfg.LimitBytes)))
	return LimitResult{Source: "config", Container: cfg.LimitBytes, GoMemLimit: limit, Ratio: ratio}
}
