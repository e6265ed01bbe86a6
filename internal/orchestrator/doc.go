// Package orchestrator schedules scan jobs.
//
// A single dispatcher goroutine owns the FIFO queue and admits at most the
// configured number of concurrent jobs. Requests for a user whose job is
// already queued or running are coalesced into that job. A periodic trigger
// enqueues a full scan unless the previous one is still in flight.
//
// Live settings (worker count, periodic interval, thumbnail method) are
// persisted in the catalog and take effect at the next scheduling decision.
// Every job transition is published as a notification.
package orchestrator
