package orchestrator

import (
	"time"

	"photo-library/internal/logging"
	"photo-library/internal/metrics"
)

// trigger runs a full scan every interval. A tick is skipped while a job of
// the previous full scan is still queued or running.
func (o *Orchestrator) trigger() {
	defer o.loops.Done()

	var (
		timer *time.Timer
		tick  <-chan time.Time
	)
	reset := func() {
		if timer != nil {
			timer.Stop()
			timer, tick = nil, nil
		}
		o.mu.Lock()
		seconds := o.interval
		o.mu.Unlock()
		if seconds > 0 {
			timer = time.NewTimer(time.Duration(seconds) * time.Second)
			tick = timer.C
		}
	}
	reset()
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.intervalChange:
			reset()
		case <-tick:
			o.periodicTick()
			reset()
		}
	}
}

func (o *Orchestrator) periodicTick() {
	if o.fullScanActive() {
		logging.Info("Skipping periodic scan, the previous one is still running")
		metrics.ScanPeriodicTicksTotal.WithLabelValues("skipped").Inc()
		return
	}
	metrics.ScanPeriodicTicksTotal.WithLabelValues("started").Inc()
	res, err := o.ScanAll(o.ctx)
	if err != nil {
		logging.Error("Periodic scan failed to start: %v", err)
		return
	}
	logging.Info("Periodic scan: %s", res.Message)
}

// fullScanActive reports whether a job of the last full scan is still
// queued or running.
func (o *Orchestrator) fullScanActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.fullScan) > 0
}
