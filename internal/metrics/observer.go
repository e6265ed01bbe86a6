package metrics

import "photo-library/internal/filesystem"

// ObserveFilesystem records one filesystem call. Install it with
// filesystem.SetObserver.
func ObserveFilesystem(e filesystem.Event) {
	FilesystemOperationDuration.WithLabelValues(e.Volume, e.Op).Observe(e.Duration.Seconds())
	if e.Err != nil {
		FilesystemOperationErrors.WithLabelValues(e.Volume, e.Op).Inc()
	}
	if !e.Retried() {
		return
	}
	FilesystemStaleErrors.WithLabelValues(e.Volume, e.Op).Add(float64(e.Stale))
	outcome := "recovered"
	if e.Err != nil {
		outcome = "exhausted"
	}
	FilesystemRetriedCalls.WithLabelValues(e.Volume, e.Op, outcome).Inc()
}
