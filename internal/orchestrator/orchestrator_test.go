package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
	"photo-library/internal/metrics"
	"photo-library/internal/notify"
	"photo-library/internal/scanner"
)

const waitTimeout = 5 * time.Second

type outcome func() (*scanner.Result, error)

type call struct {
	job     scanner.Job
	release chan outcome
}

// fakeRunner hands every run to the test and blocks until released or
// cancelled.
type fakeRunner struct {
	calls chan *call
}

func (r *fakeRunner) Run(ctx context.Context, job scanner.Job) (*scanner.Result, error) {
	c := &call{job: job, release: make(chan outcome)}
	r.calls <- c
	select {
	case out := <-c.release:
		return out()
	case <-ctx.Done():
		return &scanner.Result{Cancelled: true}, ctx.Err()
	}
}

func (r *fakeRunner) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-r.calls:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a job to start")
		return nil
	}
}

func (r *fakeRunner) idle(t *testing.T) {
	t.Helper()
	select {
	case c := <-r.calls:
		t.Fatalf("unexpected job start for user %d", c.job.UserID)
	case <-time.After(100 * time.Millisecond):
	}
}

func succeed() (*scanner.Result, error) {
	return &scanner.Result{New: 1}, nil
}

type recorder struct {
	mu   sync.Mutex
	seen []notify.Notification
}

func (r *recorder) Publish(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

func (r *recorder) notifications() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.seen...)
}

type fixture struct {
	db     *database.Database
	runner *fakeRunner
	pub    *recorder
	orch   *Orchestrator
	users  []int64
}

var defaults = database.SiteInfo{ConcurrentWorkers: 2, ThumbnailMethod: "NearestNeighbor"}

// newFixture creates users with one root path each and an orchestrator
// with the given worker count.
func newFixture(t *testing.T, users, workers int) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, runner: &fakeRunner{calls: make(chan *call, 16)}, pub: &recorder{}}
	for i := 0; i < users; i++ {
		u, err := db.CreateUser(ctx, fmt.Sprintf("user%d", i), false)
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		if _, _, err := db.AddRootPath(ctx, u.ID, t.TempDir()); err != nil {
			t.Fatalf("AddRootPath() error = %v", err)
		}
		f.users = append(f.users, u.ID)
	}

	d := defaults
	d.ConcurrentWorkers = workers
	f.orch, err = New(ctx, Config{Catalog: db, Runner: f.runner, Publisher: f.pub, Defaults: d})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		f.orch.Shutdown(ctx)
	})
	return f
}

// wait polls until the job with id is finished.
func (f *fixture) wait(t *testing.T, id string) JobStatus {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		for _, s := range f.orch.Jobs() {
			if s.ID == id && s.State == StateFinished {
				return s
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return JobStatus{}
}

func TestScanUserCoalescesActiveJob(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	user := f.users[0]

	first, err := f.orch.ScanUser(ctx, user)
	if err != nil {
		t.Fatalf("ScanUser() error = %v", err)
	}
	if first.Finished || len(first.Jobs) != 1 {
		t.Fatalf("ScanUser() = %+v, want one unfinished job", first)
	}
	c := f.runner.next(t)

	before := testutil.ToFloat64(metrics.ScanJobsCoalescedTotal)
	second, err := f.orch.ScanUser(ctx, user)
	if err != nil {
		t.Fatalf("second ScanUser() error = %v", err)
	}
	if second.Jobs[0].ID != first.Jobs[0].ID {
		t.Errorf("second request created job %s, want %s", second.Jobs[0].ID, first.Jobs[0].ID)
	}
	if second.Jobs[0].State != StateRunning {
		t.Errorf("coalesced job state = %s, want running", second.Jobs[0].State)
	}
	if got := testutil.ToFloat64(metrics.ScanJobsCoalescedTotal) - before; got != 1 {
		t.Errorf("coalesced counter delta = %v, want 1", got)
	}
	f.runner.idle(t)

	c.release <- succeed
	s := f.wait(t, first.Jobs[0].ID)
	if !s.Success || s.Progress != 1 || s.Result == nil || s.Result.New != 1 {
		t.Errorf("finished job = %+v", s)
	}

	// A new request after completion starts a fresh job.
	third, err := f.orch.ScanUser(ctx, user)
	if err != nil {
		t.Fatalf("third ScanUser() error = %v", err)
	}
	if third.Jobs[0].ID == first.Jobs[0].ID {
		t.Error("request after completion reused the finished job")
	}
	f.runner.next(t).release <- succeed
}

func TestAdmissionIsFIFOWithinWorkerLimit(t *testing.T) {
	f := newFixture(t, 3, 1)

	res, err := f.orch.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}
	if len(res.Jobs) != 3 {
		t.Fatalf("ScanAll() queued %d jobs, want 3", len(res.Jobs))
	}

	for i, want := range f.users {
		c := f.runner.next(t)
		if c.job.UserID != want {
			t.Fatalf("job %d ran user %d, want %d", i, c.job.UserID, want)
		}
		f.runner.idle(t)
		c.release <- succeed
	}
}

func TestRaisingWorkerLimitAdmitsQueuedJobs(t *testing.T) {
	f := newFixture(t, 2, 1)
	ctx := context.Background()

	if _, err := f.orch.ScanAll(ctx); err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}
	first := f.runner.next(t)
	f.runner.idle(t)

	if err := f.orch.SetConcurrentWorkers(ctx, 2); err != nil {
		t.Fatalf("SetConcurrentWorkers() error = %v", err)
	}
	second := f.runner.next(t)
	if first.job.UserID == second.job.UserID {
		t.Fatalf("user %d running twice", first.job.UserID)
	}
	first.release <- succeed
	second.release <- succeed
}

func TestScanUserWithoutRootsIsNotFound(t *testing.T) {
	f := newFixture(t, 0, 1)
	u, err := f.db.CreateUser(context.Background(), "rootless", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if _, err := f.orch.ScanUser(context.Background(), u.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ScanUser() error = %v, want NotFound", err)
	}
	if _, err := f.orch.RegenerateUser(context.Background(), u.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("RegenerateUser() error = %v, want NotFound", err)
	}
	if _, err := f.orch.CancelUser(u.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("CancelUser() error = %v, want NotFound", err)
	}
}

func TestSettingsAreValidatedAndPersisted(t *testing.T) {
	f := newFixture(t, 0, 1)
	ctx := context.Background()

	invalid := []struct {
		name string
		set  func() error
	}{
		{"zero workers", func() error { return f.orch.SetConcurrentWorkers(ctx, 0) }},
		{"negative interval", func() error { return f.orch.SetPeriodicScanInterval(ctx, -1) }},
		{"unknown method", func() error { return f.orch.SetThumbnailDownsampleMethod(ctx, "Bicubic9000") }},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.set(); !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("error = %v, want InvalidArgument", err)
			}
		})
	}
	if got := f.orch.SiteInfo(); got.ConcurrentWorkers != 1 || got.PeriodicScanInterval != 0 || got.ThumbnailMethod != "NearestNeighbor" {
		t.Fatalf("rejected settings changed SiteInfo() = %+v", got)
	}

	if err := f.orch.SetConcurrentWorkers(ctx, 4); err != nil {
		t.Fatalf("SetConcurrentWorkers() error = %v", err)
	}
	if err := f.orch.SetPeriodicScanInterval(ctx, 3600); err != nil {
		t.Fatalf("SetPeriodicScanInterval() error = %v", err)
	}
	if err := f.orch.SetThumbnailDownsampleMethod(ctx, "Lanczos"); err != nil {
		t.Fatalf("SetThumbnailDownsampleMethod() error = %v", err)
	}

	want := database.SiteInfo{PeriodicScanInterval: 3600, ConcurrentWorkers: 4, ThumbnailMethod: "Lanczos"}
	if got := f.orch.SiteInfo(); got != want {
		t.Errorf("SiteInfo() = %+v, want %+v", got, want)
	}
	if got := f.orch.ThumbnailMethod(); got != "Lanczos" {
		t.Errorf("ThumbnailMethod() = %q, want Lanczos", got)
	}

	// A restarted orchestrator reads the persisted values.
	restarted, err := New(ctx, Config{Catalog: f.db, Runner: f.runner, Defaults: defaults})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer restarted.Shutdown(ctx)
	if got := restarted.SiteInfo(); got != want {
		t.Errorf("restarted SiteInfo() = %+v, want %+v", got, want)
	}
}

func TestPanickingJobFailsAlone(t *testing.T) {
	f := newFixture(t, 2, 2)

	res, err := f.orch.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}
	ids := map[int64]string{}
	for _, s := range res.Jobs {
		ids[s.UserID] = s.ID
	}

	calls := map[int64]*call{}
	for range f.users {
		c := f.runner.next(t)
		calls[c.job.UserID] = c
	}

	calls[f.users[0]].release <- func() (*scanner.Result, error) { panic("decoder exploded") }
	failed := f.wait(t, ids[f.users[0]])
	if failed.Success || failed.Message == "" {
		t.Errorf("panicked job = %+v, want failure with message", failed)
	}

	for _, s := range f.orch.Jobs() {
		if s.ID == ids[f.users[1]] && s.State != StateRunning {
			t.Errorf("other job state = %s, want running", s.State)
		}
	}
	calls[f.users[1]].release <- succeed
	if s := f.wait(t, ids[f.users[1]]); !s.Success {
		t.Errorf("other job = %+v, want success", s)
	}
}

func TestCancelUser(t *testing.T) {
	f := newFixture(t, 2, 1)

	if _, err := f.orch.ScanAll(context.Background()); err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}
	running := f.runner.next(t)
	queuedUser := f.users[1]
	if running.job.UserID == queuedUser {
		queuedUser = f.users[0]
	}

	queued, err := f.orch.CancelUser(queuedUser)
	if err != nil {
		t.Fatalf("CancelUser(queued) error = %v", err)
	}
	if queued.State != StateFinished || queued.Success {
		t.Errorf("cancelled queued job = %+v, want finished without success", queued)
	}

	status, err := f.orch.CancelUser(running.job.UserID)
	if err != nil {
		t.Fatalf("CancelUser(running) error = %v", err)
	}
	s := f.wait(t, status.ID)
	if s.Success || s.Result == nil || !s.Result.Cancelled {
		t.Errorf("cancelled running job = %+v", s)
	}

	// The cancelled queued job never starts.
	f.runner.idle(t)
	if _, err := f.orch.CancelUser(running.job.UserID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("CancelUser(finished) error = %v, want NotFound", err)
	}
}

func TestRegenerateUser(t *testing.T) {
	f := newFixture(t, 2, 1)
	ctx := context.Background()
	busy, waiting := f.users[0], f.users[1]

	if _, err := f.orch.ScanUser(ctx, busy); err != nil {
		t.Fatalf("ScanUser() error = %v", err)
	}
	running := f.runner.next(t)

	if _, err := f.orch.RegenerateUser(ctx, busy); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("RegenerateUser(running) error = %v, want Conflict", err)
	}

	if _, err := f.orch.ScanUser(ctx, waiting); err != nil {
		t.Fatalf("ScanUser() error = %v", err)
	}
	res, err := f.orch.RegenerateUser(ctx, waiting)
	if err != nil {
		t.Fatalf("RegenerateUser(queued) error = %v", err)
	}
	if !res.Jobs[0].Regenerate {
		t.Errorf("queued job not upgraded: %+v", res.Jobs[0])
	}

	running.release <- succeed
	next := f.runner.next(t)
	if next.job.UserID != waiting || !next.job.Regenerate {
		t.Errorf("next job = %+v, want regeneration of user %d", next.job, waiting)
	}
	next.release <- succeed
}

func TestJobNotifications(t *testing.T) {
	f := newFixture(t, 1, 1)

	res, err := f.orch.ScanUser(context.Background(), f.users[0])
	if err != nil {
		t.Fatalf("ScanUser() error = %v", err)
	}
	c := f.runner.next(t)
	c.job.Progress(scanner.Progress{Processed: 5, Total: 10, Fraction: 0.5})
	c.job.Progress(scanner.Progress{Processed: 6, Total: 20, Fraction: 0.3})
	for _, s := range f.orch.Jobs() {
		if s.ID == res.Jobs[0].ID && s.Progress != 0.5 {
			t.Errorf("progress = %v after a lower report, want 0.5", s.Progress)
		}
	}
	c.release <- succeed
	f.wait(t, res.Jobs[0].ID)

	id := res.Jobs[0].ID
	got := f.pub.notifications()
	if len(got) < 4 {
		t.Fatalf("got %d notifications, want at least 4: %+v", len(got), got)
	}
	var last float64
	for _, n := range got[:len(got)-2] {
		if n.Type != notify.TypeProgress || n.Key != "scan-progress-"+id {
			t.Fatalf("unexpected notification before completion: %+v", n)
		}
		if *n.Progress < last {
			t.Errorf("progress went from %v to %v", last, *n.Progress)
		}
		last = *n.Progress
	}

	msg, closing := got[len(got)-2], got[len(got)-1]
	if msg.Type != notify.TypeMessage || msg.Key != "scan-result-"+id || !msg.Positive || msg.Timeout == nil {
		t.Errorf("result notification = %+v", msg)
	}
	if closing.Type != notify.TypeClose || closing.Key != "scan-progress-"+id {
		t.Errorf("last notification = %+v, want close of the progress item", closing)
	}
}

func TestPeriodicTickSkipsWhileFullScanActive(t *testing.T) {
	f := newFixture(t, 1, 1)
	skipped := metrics.ScanPeriodicTicksTotal.WithLabelValues("skipped")
	started := metrics.ScanPeriodicTicksTotal.WithLabelValues("started")
	skippedBefore, startedBefore := testutil.ToFloat64(skipped), testutil.ToFloat64(started)

	f.orch.periodicTick()
	c := f.runner.next(t)
	f.orch.periodicTick()

	if got := testutil.ToFloat64(started) - startedBefore; got != 1 {
		t.Errorf("started ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(skipped) - skippedBefore; got != 1 {
		t.Errorf("skipped ticks = %v, want 1", got)
	}

	c.release <- succeed
	deadline := time.Now().Add(waitTimeout)
	for f.orch.fullScanActive() {
		if time.Now().After(deadline) {
			t.Fatal("full scan still active")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.orch.periodicTick()
	f.runner.next(t).release <- succeed
	if got := testutil.ToFloat64(started) - startedBefore; got != 2 {
		t.Errorf("started ticks = %v, want 2", got)
	}
}

func TestFinishedFullScanJobsAreReleased(t *testing.T) {
	f := newFixture(t, 2, 2)
	res, err := f.orch.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}
	f.runner.next(t).release <- succeed
	f.runner.next(t).release <- succeed
	for _, want := range res.Jobs {
		f.wait(t, want.ID)
	}

	f.orch.mu.Lock()
	left := len(f.orch.fullScan)
	f.orch.mu.Unlock()
	if left != 0 {
		t.Errorf("full scan set holds %d finished jobs, want 0", left)
	}
}

func TestShutdownCancelsJobs(t *testing.T) {
	f := newFixture(t, 2, 1)
	ctx := context.Background()

	res, err := f.orch.ScanAll(ctx)
	if err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}
	f.runner.next(t)

	sctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	if err := f.orch.Shutdown(sctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	for _, want := range res.Jobs {
		s := f.wait(t, want.ID)
		if s.Success {
			t.Errorf("job %s succeeded after shutdown", s.ID)
		}
	}
	if _, err := f.orch.ScanUser(ctx, f.users[0]); err == nil {
		t.Error("ScanUser() after Shutdown succeeded")
	}
}
