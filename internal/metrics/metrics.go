package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_db_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_db_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_db_transaction_duration_seconds",
			Help:    "Catalog transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"result"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Scanner metrics
var (
	ScanJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_scan_jobs_total",
			Help: "Total number of finished scan jobs by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "cancelled"
	)

	ScanJobsCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_library_scan_jobs_coalesced_total",
			Help: "Scan requests answered by an already active job",
		},
	)

	ScanJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_library_scan_job_duration_seconds",
			Help:    "Duration of scan jobs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	ScanJobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_scan_jobs_running",
			Help: "Number of scan jobs currently running",
		},
	)

	ScanJobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_scan_jobs_queued",
			Help: "Number of scan jobs waiting for a worker",
		},
	)

	ScanWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_scan_workers",
			Help: "Configured number of concurrent scan workers",
		},
	)

	ScanPeriodicTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_scan_periodic_ticks_total",
			Help: "Periodic scan trigger ticks by action",
		},
		[]string{"action"}, // "started", "skipped"
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_scan_files_total",
			Help: "Files visited by scan jobs by result",
		},
		[]string{"result"}, // "new", "changed", "unchanged", "unsupported", "error"
	)

	ScanAlbumsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_scan_albums_total",
			Help: "Directories visited by scan jobs by result",
		},
		[]string{"result"}, // "new", "existing", "error"
	)

	ScanTombstonesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_scan_tombstones_total",
			Help: "Records tombstoned because their source disappeared",
		},
		[]string{"kind"}, // "media", "album"
	)

	ScanFileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_scan_file_duration_seconds",
			Help:    "Time spent processing a new or changed file",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)
)

// Metadata metrics
var (
	MetadataExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_metadata_extractions_total",
			Help: "Metadata extractions by media type and status",
		},
		[]string{"type", "status"},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"type", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)

	ThumbnailFFmpegDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_thumbnail_ffmpeg_duration_seconds",
			Help:    "Time spent extracting video keyframes with ffmpeg",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	ThumbnailBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_thumbnail_bytes_written_total",
			Help: "Bytes of derived images written by purpose",
		},
		[]string{"purpose"},
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_transcoder_jobs_total",
			Help: "Total number of web rendition transcodes",
		},
		[]string{"status"},
	)

	TranscoderJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_library_transcoder_job_duration_seconds",
			Help:    "Duration of web rendition transcodes",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// Face metrics
var (
	FacesDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_library_faces_detected_total",
			Help: "Total number of faces detected on photos",
		},
	)

	FaceAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_face_assignments_total",
			Help: "Face group assignments by outcome",
		},
		[]string{"outcome"}, // "kept", "matched", "new_group"
	)

	FaceGroupOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_face_group_operations_total",
			Help: "Face group mutations by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// Share metrics
var (
	ShareValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_share_validations_total",
			Help: "Share token validations by result",
		},
		[]string{"result"},
	)
)

// Notification metrics
var (
	NotificationSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_notification_subscribers",
			Help: "Number of connected notification subscribers",
		},
	)

	NotificationsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_notifications_published_total",
			Help: "Notifications published by type",
		},
		[]string{"type"},
	)
)

// Catalog gauges, refreshed by the Collector
var (
	CatalogMediaTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_library_catalog_media",
			Help: "Number of live media records by type",
		},
		[]string{"type"},
	)

	CatalogAlbumsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_catalog_albums",
			Help: "Number of live albums",
		},
	)

	CatalogTombstonesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_catalog_tombstoned_media",
			Help: "Number of tombstoned media records",
		},
	)

	CatalogFaceGroupsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_library_catalog_face_groups",
			Help: "Number of face groups by label state",
		},
		[]string{"state"}, // "labeled", "unlabeled"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem calls including retries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_filesystem_operation_errors_total",
			Help: "Filesystem calls that failed",
		},
		[]string{"volume", "operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_filesystem_stale_errors_total",
			Help: "Stale NFS file handles observed",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetriedCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_filesystem_retried_calls_total",
			Help: "Filesystem calls retried after stale handles by outcome",
		},
		[]string{"volume", "operation", "outcome"}, // "recovered", "exhausted"
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_library_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_memory_paused",
			Help: "1 while scans are paused for memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_library_memory_pauses_total",
			Help: "Times scans were paused for memory pressure",
		},
	)
)
