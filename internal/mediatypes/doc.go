// Package mediatypes classifies files found by the scanner as photos or
// videos.
//
// This package exists as a dependency-free foundation that can be imported by
// other packages without creating import cycles. Classification is two-step:
// the lowercase extension selects a candidate type and DetectFormat sniffs
// the first bytes of the file to confirm it.
//
//	kind, err := mediatypes.Classify(path)
//	if errors.Is(err, apperr.ErrUnsupported) {
//	    // skip with a scan warning
//	}
//
// The extension maps (PhotoExtensions, VideoExtensions) can be used directly
// for quick filtering during directory listing:
//
//	if mediatypes.IsMediaFile(entry.Name()) {
//	    estimate++
//	}
package mediatypes
