package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
	"photo-library/internal/logging"
	"photo-library/internal/media"
	"photo-library/internal/metrics"
	"photo-library/internal/notify"
	"photo-library/internal/scanner"
)

const (
	// Finished jobs kept for Jobs()
	historySize = 50

	// How long clients show a terminal message
	messageTimeout = 10 * time.Second
)

// Runner executes one scan job.
type Runner interface {
	Run(ctx context.Context, job scanner.Job) (*scanner.Result, error)
}

// Catalog is the part of the catalog the orchestrator reads and persists
// settings to.
type Catalog interface {
	UsersWithRootPaths(ctx context.Context) ([]int64, error)
	RootPaths(ctx context.Context, userID int64) ([]database.RootPath, error)
	SiteInfo(ctx context.Context, defaults database.SiteInfo) (database.SiteInfo, error)
	SavePeriodicScanInterval(ctx context.Context, seconds int) error
	SaveConcurrentWorkers(ctx context.Context, n int) error
	SaveThumbnailMethod(ctx context.Context, method string) error
}

// Config wires an Orchestrator.
type Config struct {
	Catalog   Catalog
	Runner    Runner
	Publisher notify.Publisher
	// Defaults apply to settings never persisted.
	Defaults database.SiteInfo
}

// Orchestrator owns the scan queue, the worker limit and the periodic
// trigger.
type Orchestrator struct {
	catalog Catalog
	runner  Runner
	pub     notify.Publisher

	mu       sync.Mutex
	queue    []*job
	active   map[int64]*job
	fullScan map[*job]struct{}
	history  []JobStatus
	running  int
	workers  int
	interval int
	method   string
	closed   bool

	wake           chan struct{}
	intervalChange chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
	jobs   sync.WaitGroup
}

// New loads the persisted settings and starts the dispatcher and the
// periodic trigger.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	info, err := cfg.Catalog.SiteInfo(ctx, cfg.Defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load scanner settings: %w", err)
	}
	if info.ConcurrentWorkers < 1 {
		logging.Warn("Ignoring invalid worker count %d, using 1", info.ConcurrentWorkers)
		info.ConcurrentWorkers = 1
	}
	if info.PeriodicScanInterval < 0 {
		logging.Warn("Ignoring negative periodic scan interval %d", info.PeriodicScanInterval)
		info.PeriodicScanInterval = 0
	}
	if !media.ValidFilter(info.ThumbnailMethod) {
		logging.Warn("Ignoring unknown thumbnail method %q, using %s", info.ThumbnailMethod, media.DefaultFilter)
		info.ThumbnailMethod = media.DefaultFilter
	}

	pub := cfg.Publisher
	if pub == nil {
		pub = discard{}
	}

	o := &Orchestrator{
		catalog:        cfg.Catalog,
		runner:         cfg.Runner,
		pub:            pub,
		active:         make(map[int64]*job),
		fullScan:       make(map[*job]struct{}),
		workers:        info.ConcurrentWorkers,
		interval:       info.PeriodicScanInterval,
		method:         info.ThumbnailMethod,
		wake:           make(chan struct{}, 1),
		intervalChange: make(chan struct{}, 1),
	}
	o.ctx, o.cancel = context.WithCancel(context.WithoutCancel(ctx))
	metrics.ScanWorkers.Set(float64(o.workers))

	o.loops.Add(2)
	go o.dispatch()
	go o.trigger()

	logging.Info("Scan orchestrator started: %d workers, periodic interval %ds, thumbnail method %s",
		o.workers, o.interval, o.method)
	return o, nil
}

// ScanAll enqueues a job for every user owning a root path.
func (o *Orchestrator) ScanAll(ctx context.Context) (*ScannerResult, error) {
	users, err := o.catalog.UsersWithRootPaths(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, errClosed
	}
	statuses := make([]JobStatus, 0, len(users))
	for _, id := range users {
		j, _ := o.enqueueLocked(id, false)
		o.fullScan[j] = struct{}{}
		statuses = append(statuses, j.status)
	}
	return resultFor(fmt.Sprintf("Scan queued for %d users", len(users)), statuses...), nil
}

// ScanUser enqueues a scan of one user. A request for a user whose job is
// already queued or running returns that job's status.
func (o *Orchestrator) ScanUser(ctx context.Context, userID int64) (*ScannerResult, error) {
	if err := o.checkRoots(ctx, userID); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, errClosed
	}
	j, created := o.enqueueLocked(userID, false)
	if !created {
		return resultFor(fmt.Sprintf("Scan of user %d is already %s", userID, j.status.State), j.status), nil
	}
	return resultFor(fmt.Sprintf("Scan of user %d queued", userID), j.status), nil
}

// RegenerateUser enqueues a scan that regenerates the derived assets of
// every file of the user. A queued scan of the user is upgraded; a running
// scan that does not regenerate is a Conflict.
func (o *Orchestrator) RegenerateUser(ctx context.Context, userID int64) (*ScannerResult, error) {
	if err := o.checkRoots(ctx, userID); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, errClosed
	}
	if j, ok := o.active[userID]; ok && j.status.State == StateRunning && !j.status.Regenerate {
		return nil, fmt.Errorf("a scan of user %d is running: %w", userID, apperr.ErrConflict)
	}
	j, created := o.enqueueLocked(userID, true)
	j.status.Regenerate = true
	if !created {
		return resultFor(fmt.Sprintf("Regeneration of user %d is already %s", userID, j.status.State), j.status), nil
	}
	return resultFor(fmt.Sprintf("Regeneration of user %d queued", userID), j.status), nil
}

// CancelUser cancels the queued or running job of a user.
func (o *Orchestrator) CancelUser(userID int64) (*JobStatus, error) {
	o.mu.Lock()
	j, ok := o.active[userID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("no scan of user %d: %w", userID, apperr.ErrNotFound)
	}

	if j.status.State == StateQueued {
		for i, q := range o.queue {
			if q == j {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				break
			}
		}
		delete(o.active, userID)
		metrics.ScanJobsQueued.Set(float64(len(o.queue)))
		o.mu.Unlock()
		o.complete(j, nil, context.Canceled, 0)
		status := o.snapshot(j)
		return &status, nil
	}
	status := j.status
	o.mu.Unlock()

	logging.Info("Cancelling scan %s of user %d", status.ID, userID)
	j.cancel()
	return &status, nil
}

// Jobs lists running and queued jobs in admission order followed by
// recently finished ones, newest first.
func (o *Orchestrator) Jobs() []JobStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	var list []JobStatus
	for _, j := range o.active {
		if j.status.State == StateRunning {
			list = append(list, j.status)
		}
	}
	sortByQueued(list)
	for _, j := range o.queue {
		list = append(list, j.status)
	}
	for i := len(o.history) - 1; i >= 0; i-- {
		list = append(list, o.history[i])
	}
	return list
}

// SiteInfo returns the live settings.
func (o *Orchestrator) SiteInfo() database.SiteInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return database.SiteInfo{
		PeriodicScanInterval: o.interval,
		ConcurrentWorkers:    o.workers,
		ThumbnailMethod:      o.method,
	}
}

// ThumbnailMethod returns the live thumbnail downsample method.
func (o *Orchestrator) ThumbnailMethod() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.method
}

// SetConcurrentWorkers changes the number of concurrent jobs. Running jobs
// are never aborted; a lower limit applies as they finish.
func (o *Orchestrator) SetConcurrentWorkers(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("concurrent workers must be at least 1, got %d: %w", n, apperr.ErrInvalidArgument)
	}
	if err := o.catalog.SaveConcurrentWorkers(ctx, n); err != nil {
		return fmt.Errorf("failed to persist concurrent workers: %w", err)
	}

	o.mu.Lock()
	o.workers = n
	o.mu.Unlock()
	metrics.ScanWorkers.Set(float64(n))
	logging.Info("Scan workers set to %d", n)
	o.signal()
	return nil
}

// SetPeriodicScanInterval changes the periodic full scan interval in
// seconds. 0 disables periodic scans.
func (o *Orchestrator) SetPeriodicScanInterval(ctx context.Context, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("periodic scan interval must not be negative, got %d: %w", seconds, apperr.ErrInvalidArgument)
	}
	if err := o.catalog.SavePeriodicScanInterval(ctx, seconds); err != nil {
		return fmt.Errorf("failed to persist periodic scan interval: %w", err)
	}

	o.mu.Lock()
	o.interval = seconds
	o.mu.Unlock()
	logging.Info("Periodic scan interval set to %ds", seconds)

	select {
	case o.intervalChange <- struct{}{}:
	default:
	}
	return nil
}

// SetThumbnailDownsampleMethod changes the resampling filter used by future
// thumbnail generations.
func (o *Orchestrator) SetThumbnailDownsampleMethod(ctx context.Context, method string) error {
	if _, err := media.ParseFilter(method); err != nil {
		return err
	}
	if err := o.catalog.SaveThumbnailMethod(ctx, method); err != nil {
		return fmt.Errorf("failed to persist thumbnail method: %w", err)
	}

	o.mu.Lock()
	o.method = method
	o.mu.Unlock()
	logging.Info("Thumbnail method set to %s", method)
	return nil
}

// Shutdown stops the trigger, cancels every job and waits for running jobs
// to return or ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	queued := o.queue
	o.queue = nil
	var running []*job
	for _, j := range o.active {
		if j.status.State == StateRunning {
			running = append(running, j)
		}
	}
	o.mu.Unlock()

	o.cancel()
	for _, j := range queued {
		o.complete(j, nil, context.Canceled, 0)
	}
	for _, j := range running {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.loops.Wait()
		o.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Info("Scan orchestrator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scan jobs still running: %w", ctx.Err())
	}
}

var errClosed = errors.New("scan orchestrator is shut down")

func (o *Orchestrator) checkRoots(ctx context.Context, userID int64) error {
	roots, err := o.catalog.RootPaths(ctx, userID)
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		return fmt.Errorf("user %d has no root paths: %w", userID, apperr.ErrNotFound)
	}
	return nil
}

// enqueueLocked returns the active job of userID or queues a new one.
func (o *Orchestrator) enqueueLocked(userID int64, regenerate bool) (*job, bool) {
	if j, ok := o.active[userID]; ok {
		metrics.ScanJobsCoalescedTotal.Inc()
		return j, false
	}

	ctx, cancel := context.WithCancel(o.ctx)
	j := &job{
		status: JobStatus{
			ID:         uuid.NewString(),
			UserID:     userID,
			State:      StateQueued,
			Regenerate: regenerate,
			QueuedAt:   time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	o.active[userID] = j
	o.queue = append(o.queue, j)
	metrics.ScanJobsQueued.Set(float64(len(o.queue)))
	logging.Debug("Queued scan %s of user %d", j.status.ID, userID)
	o.signal()
	return j, true
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// dispatch admits queued jobs whenever the queue or the limit changes.
func (o *Orchestrator) dispatch() {
	defer o.loops.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.wake:
		}
		o.admit()
	}
}

func (o *Orchestrator) admit() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for !o.closed && o.running < o.workers && len(o.queue) > 0 {
		j := o.queue[0]
		o.queue = o.queue[1:]

		now := time.Now()
		j.status.State = StateRunning
		j.status.StartedAt = &now
		o.running++
		o.jobs.Add(1)
		go o.execute(j)
	}
	metrics.ScanJobsQueued.Set(float64(len(o.queue)))
	metrics.ScanJobsRunning.Set(float64(o.running))
}

func (o *Orchestrator) execute(j *job) {
	defer o.jobs.Done()
	start := time.Now()

	o.pub.Publish(notify.Progress(j.progressKey(), j.header(), "Starting", 0))
	res, err := o.run(j)
	o.complete(j, res, err, time.Since(start))
	o.signal()
}

// run calls the runner, turning a panic into a failed job.
func (o *Orchestrator) run(j *job) (res *scanner.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Scan %s of user %d panicked: %v\n%s", j.status.ID, j.status.UserID, r, debug.Stack())
			res, err = nil, fmt.Errorf("scan panicked: %v", r)
		}
	}()

	o.mu.Lock()
	sj := scanner.Job{UserID: j.status.UserID, Regenerate: j.status.Regenerate}
	o.mu.Unlock()
	sj.Progress = func(p scanner.Progress) { o.progress(j, p) }

	return o.runner.Run(j.ctx, sj)
}

// progress records and publishes a progress report. The published fraction
// never decreases.
func (o *Orchestrator) progress(j *job, p scanner.Progress) {
	o.mu.Lock()
	fraction := max(j.status.Progress, min(p.Fraction, 1))
	j.status.Progress = fraction
	o.mu.Unlock()

	content := fmt.Sprintf("%d of %d files", p.Processed, p.Total)
	o.pub.Publish(notify.Progress(j.progressKey(), j.header(), content, fraction))
}

// complete finishes j. A queued job that never ran has a zero elapsed time.
func (o *Orchestrator) complete(j *job, res *scanner.Result, err error, elapsed time.Duration) {
	cancelled := errors.Is(err, context.Canceled)
	var msg string
	switch {
	case cancelled:
		msg = "Scan cancelled"
		if res != nil {
			msg += ": " + res.Summary()
		}
	case err != nil:
		msg = "Scan failed: " + err.Error()
	default:
		msg = "Scan completed: " + res.Summary()
		if n := len(res.Warnings); n > 0 {
			msg += fmt.Sprintf(". %d warnings, first: %s", n, strings.TrimSpace(res.Warnings[0]))
		}
	}

	o.mu.Lock()
	wasRunning := j.status.State == StateRunning
	now := time.Now()
	j.status.State = StateFinished
	j.status.FinishedAt = &now
	j.status.Success = err == nil
	j.status.Message = msg
	j.status.Result = res
	if j.status.Success {
		j.status.Progress = 1
	}
	if o.active[j.status.UserID] == j {
		delete(o.active, j.status.UserID)
	}
	delete(o.fullScan, j)
	if wasRunning {
		o.running--
	}
	o.history = append(o.history, j.status)
	if len(o.history) > historySize {
		o.history = o.history[len(o.history)-historySize:]
	}
	metrics.ScanJobsRunning.Set(float64(o.running))
	o.mu.Unlock()

	j.cancel()
	close(j.done)

	outcome := "success"
	switch {
	case cancelled:
		outcome = "cancelled"
		logging.Info("Scan %s of user %d cancelled", j.status.ID, j.status.UserID)
	case err != nil:
		outcome = "failure"
		logging.Error("Scan %s of user %d failed: %v", j.status.ID, j.status.UserID, err)
	}
	metrics.ScanJobsTotal.WithLabelValues(outcome).Inc()
	if wasRunning {
		metrics.ScanJobDuration.Observe(elapsed.Seconds())
	}

	o.pub.Publish(notify.Message(j.resultKey(), j.header(), msg, err == nil, messageTimeout))
	o.pub.Publish(notify.Close(j.progressKey()))
}

func (o *Orchestrator) snapshot(j *job) JobStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return j.status
}

func sortByQueued(list []JobStatus) {
	sort.SliceStable(list, func(i, k int) bool { return list[i].QueuedAt.Before(list[k].QueuedAt) })
}

type discard struct{}

func (discard) Publish(notify.Notification) {}
