// Package workers sizes the scan worker pool. GOMAXPROCS already reflects
// container CPU quotas, so it is the base for every estimate.
package workers

import "runtime"

// DefaultScanLimit caps the automatic scan worker count. Scan jobs decode
// full resolution images, so memory rather than CPU is the usual bound.
const DefaultScanLimit = 3

// scanMultiplier treats scanning as half I/O, half decode.
const scanMultiplier = 1.5

// perCPU returns multiplier workers per schedulable CPU, clamped to
// [1, limit]. A limit of 0 leaves the upper bound open.
func perCPU(multiplier float64, limit int) int {
	n := max(1, int(float64(runtime.GOMAXPROCS(0))*multiplier))
	if limit > 0 {
		n = min(n, limit)
	}
	return n
}

// ScanWorkers resolves the configured number of concurrent scan jobs.
// A configured value below 1 selects an automatic count.
func ScanWorkers(configured int) int {
	if configured >= 1 {
		return configured
	}
	return perCPU(scanMultiplier, DefaultScanLimit)
}
