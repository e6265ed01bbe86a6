// Package memory keeps scans inside the container's memory budget.
//
// [ApplyLimit] sets GOMEMLIMIT from the configured container limit, leaving
// room outside the Go heap for ffmpeg and libvips. A [Guard] samples heap
// usage and pauses scans at the critical water mark until usage falls back
// below the high water mark:
//
//	guard := memory.NewGuard(cfg.Memory)
//	guard.Start()
//	defer guard.Stop()
//
//	if err := guard.Wait(ctx); err != nil {
//	    return err
//	}
//
// An explicit GOMEMLIMIT environment variable always wins over the
// configuration.
package memory
