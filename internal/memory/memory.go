package memory

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"photo-library/internal/logging"
	"photo-library/internal/metrics"
)

const (
	defaultHighWaterMark     = 0.70
	defaultCriticalWaterMark = 0.85
	defaultCheckInterval     = 5 * time.Second
)

// Guard pauses scans while heap usage is critical and releases them once
// usage falls below the high water mark.
type Guard struct {
	limit    int64
	high     float64
	critical float64
	interval time.Duration
	sample   func() uint64

	mu      sync.Mutex
	current uint64
	paused  bool
	resume  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewGuard creates a guard bounded by GOMEMLIMIT. Without a limit the
// guard never pauses.
func NewGuard(cfg Config) *Guard {
	g := &Guard{
		high:     cfg.HighWaterMark,
		critical: cfg.CriticalWaterMark,
		interval: time.Duration(cfg.CheckInterval) * time.Second,
		sample:   heapAlloc,
		resume:   make(chan struct{}),
		stop:     make(chan struct{}),
	}
	if g.high <= 0 || g.high >= 1 {
		g.high = defaultHighWaterMark
	}
	if g.critical <= g.high || g.critical > 1 {
		g.critical = max(defaultCriticalWaterMark, g.high)
	}
	if g.interval <= 0 {
		g.interval = defaultCheckInterval
	}
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		g.limit = limit
		logging.Info("Memory guard using limit %s", humanize.IBytes(uint64(limit)))
	} else {
		logging.Warn("Memory guard: no memory limit configured, backpressure disabled")
	}
	return g
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins sampling heap usage.
func (g *Guard) Start() {
	if g.limit == 0 {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.check()
			case <-g.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases every waiter.
func (g *Guard) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
	g.wg.Wait()
}

func (g *Guard) check() {
	alloc := g.sample()
	usage := float64(alloc) / float64(g.limit)
	metrics.MemoryUsageRatio.Set(usage)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = alloc

	switch {
	case usage >= g.critical && !g.paused:
		logging.Warn("Memory critical (%.1f%% of limit), pausing scans", usage*100)
		g.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case usage < g.high && g.paused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming scans", usage*100)
		g.paused = false
		metrics.MemoryPaused.Set(0)
		close(g.resume)
		g.resume = make(chan struct{})
	}
}

// Wait blocks while scans are paused. It returns ctx.Err() when ctx ends
// first and nil once it is safe to proceed or the guard stops.
func (g *Guard) Wait(ctx context.Context) error {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return nil
	}
	resume := g.resume
	g.mu.Unlock()

	logging.Debug("Scan waiting for memory pressure to ease")
	select {
	case <-resume:
		return nil
	case <-g.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether scans are currently held back.
func (g *Guard) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Usage returns the last sampled heap usage as a fraction of the limit.
func (g *Guard) Usage() float64 {
	if g.limit == 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return float64(g.current) / float64(g.limit)
}
