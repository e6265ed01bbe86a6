package orchestrator

import (
	"context"
	"fmt"
	"time"

	"photo-library/internal/scanner"
)

// State is the lifecycle state of a scan job.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// JobStatus is a snapshot of a scan job.
type JobStatus struct {
	ID         string          `json:"id"`
	UserID     int64           `json:"userId"`
	State      State           `json:"state"`
	Regenerate bool            `json:"regenerate"`
	Progress   float64         `json:"progress"`
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	QueuedAt   time.Time       `json:"queuedAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Result     *scanner.Result `json:"result,omitempty"`
}

// ScannerResult answers a scan request.
type ScannerResult struct {
	Finished bool        `json:"finished"`
	Success  bool        `json:"success"`
	Progress *float64    `json:"progress,omitempty"`
	Message  string      `json:"message"`
	Jobs     []JobStatus `json:"jobs,omitempty"`
}

type job struct {
	status JobStatus
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *job) progressKey() string {
	return "scan-progress-" + j.status.ID
}

func (j *job) resultKey() string {
	return "scan-result-" + j.status.ID
}

func (j *job) header() string {
	if j.status.Regenerate {
		return fmt.Sprintf("Regenerating library of user %d", j.status.UserID)
	}
	return fmt.Sprintf("Scanning library of user %d", j.status.UserID)
}

func resultFor(msg string, statuses ...JobStatus) *ScannerResult {
	res := &ScannerResult{Finished: true, Success: true, Message: msg, Jobs: statuses}
	for _, s := range statuses {
		if s.State != StateFinished {
			res.Finished = false
		}
		if s.State == StateFinished && !s.Success {
			res.Success = false
		}
	}
	if len(statuses) == 1 {
		p := statuses[0].Progress
		res.Progress = &p
	}
	return res
}
