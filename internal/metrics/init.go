package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, outcome := range []string{"success", "failure", "cancelled"} {
		ScanJobsTotal.WithLabelValues(outcome)
	}

	for _, action := range []string{"started", "skipped"} {
		ScanPeriodicTicksTotal.WithLabelValues(action)
	}

	for _, result := range []string{"new", "changed", "unchanged", "unsupported", "error"} {
		ScanFilesTotal.WithLabelValues(result)
	}

	for _, result := range []string{"new", "existing", "error"} {
		ScanAlbumsTotal.WithLabelValues(result)
	}

	for _, kind := range []string{"media", "album"} {
		ScanTombstonesTotal.WithLabelValues(kind)
	}

	for _, t := range []string{"photo", "video"} {
		ScanFileDuration.WithLabelValues(t)
		ThumbnailGenerationDuration.WithLabelValues(t)
		ThumbnailFFmpegDuration.WithLabelValues(t)
		CatalogMediaTotal.WithLabelValues(t)
		for _, status := range []string{"success", "error", "unsupported"} {
			MetadataExtractionsTotal.WithLabelValues(t, status)
			ThumbnailGenerationsTotal.WithLabelValues(t, status)
		}
	}

	for _, purpose := range []string{"thumbnail", "highres", "video-thumbnail", "video-web"} {
		ThumbnailBytesWritten.WithLabelValues(purpose)
	}

	for _, status := range []string{"success", "error", "skipped"} {
		TranscoderJobsTotal.WithLabelValues(status)
	}

	for _, outcome := range []string{"kept", "matched", "new_group"} {
		FaceAssignmentsTotal.WithLabelValues(outcome)
	}

	for _, op := range []string{"combine", "move", "detach", "label", "recognize"} {
		for _, status := range []string{"success", "error"} {
			FaceGroupOperationsTotal.WithLabelValues(op, status)
		}
	}

	for _, result := range []string{"ok", "not_found", "gone", "expired", "unauthorized"} {
		ShareValidationsTotal.WithLabelValues(result)
	}

	for _, t := range []string{"message", "progress", "close"} {
		NotificationsPublishedTotal.WithLabelValues(t)
	}

	for _, state := range []string{"labeled", "unlabeled"} {
		CatalogFaceGroupsTotal.WithLabelValues(state)
	}

	for _, vol := range []string{"library", "cache", "database"} {
		for _, op := range []string{"stat", "open", "readdir", "read"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemStaleErrors.WithLabelValues(vol, op)
			FilesystemRetriedCalls.WithLabelValues(vol, op, "recovered")
			FilesystemRetriedCalls.WithLabelValues(vol, op, "exhausted")
		}
	}

	for _, op := range []string{"create_album", "commit_media", "touch_media", "tombstone",
		"timeline", "face_groups", "combine_face_groups", "move_faces", "share_lookup"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}
}
