package startup

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
	"photo-library/internal/logging"
	"photo-library/internal/memory"
	"photo-library/internal/workers"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	CacheDir    string            `mapstructure:"cache_dir"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Scanner     ScannerConfig     `mapstructure:"scanner"`
	Thumbnails  ThumbnailConfig   `mapstructure:"thumbnails"`
	Faces       FacesConfig       `mapstructure:"faces"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Transcoding TranscodingConfig `mapstructure:"transcoding"`
	Memory      memory.Config     `mapstructure:"memory"`
	Log         logging.Config    `mapstructure:"log"`

	// Derived paths
	ThumbnailDir string `mapstructure:"-"`
	TranscodeDir string `mapstructure:"-"`
}

// DatabaseConfig locates the catalog database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig configures the HTTP boundary.
type HTTPConfig struct {
	Port            string `mapstructure:"port"`
	LogHealthChecks bool   `mapstructure:"log_health_checks"`
	MetricsEnabled  bool   `mapstructure:"metrics_enabled"`
}

// ScannerConfig configures scan scheduling.
type ScannerConfig struct {
	// Workers is the number of concurrent scan jobs; below 1 selects an
	// automatic count.
	Workers int `mapstructure:"workers"`
	// PeriodicInterval in seconds; 0 disables periodic scans.
	PeriodicInterval int `mapstructure:"periodic_interval"`
	// ContentHash adds a BLAKE3 hash of the file to the fingerprint.
	ContentHash bool `mapstructure:"content_hash"`
}

// PeriodicDuration returns the periodic interval as a duration.
func (s ScannerConfig) PeriodicDuration() time.Duration {
	return time.Duration(s.PeriodicInterval) * time.Second
}

// SiteDefaults returns the scanner settings used until they are changed
// through the API.
func (c *Config) SiteDefaults() database.SiteInfo {
	return database.SiteInfo{
		PeriodicScanInterval: c.Scanner.PeriodicInterval,
		ConcurrentWorkers:    c.Scanner.Workers,
		ThumbnailMethod:      c.Thumbnails.Method,
	}
}

// ThumbnailConfig configures derived image generation.
type ThumbnailConfig struct {
	Method  string `mapstructure:"method"`
	UseVips bool   `mapstructure:"use_vips"`
}

// FacesConfig configures face clustering.
type FacesConfig struct {
	MaxDistance float64 `mapstructure:"max_distance"`
}

// StorageConfig selects the derived asset backend.
type StorageConfig struct {
	Type string   `mapstructure:"type"`
	S3   S3Config `mapstructure:"s3"`
}

// S3Config holds the configuration for an S3 compatible bucket.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// TranscodingConfig toggles web renditions for videos.
type TranscodingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// EnvPrefix prefixes environment overrides, e.g. PHOTOLIB_HTTP_PORT.
const EnvPrefix = "photolib"

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "/database/photo-library.db")
	v.SetDefault("cache_dir", "/cache")
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.log_health_checks", false)
	v.SetDefault("http.metrics_enabled", true)
	v.SetDefault("scanner.workers", 0)
	v.SetDefault("scanner.periodic_interval", 0)
	v.SetDefault("scanner.content_hash", false)
	v.SetDefault("thumbnails.method", "NearestNeighbor")
	v.SetDefault("thumbnails.use_vips", false)
	v.SetDefault("faces.max_distance", 0.6)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("transcoding.enabled", true)
	v.SetDefault("memory.limit_bytes", 0)
	v.SetDefault("memory.ratio", memory.DefaultRatio)
	v.SetDefault("memory.high_water_mark", 0.70)
	v.SetDefault("memory.critical_water_mark", 0.85)
	v.SetDefault("memory.check_interval", 5)
	v.SetDefault("log.level", "")
	v.SetDefault("log.file_logging", false)
	v.SetDefault("log.directory", "/var/log/photo-library")
	v.SetDefault("log.filename", "photo-library.log")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
}

// ReadConfig reads configuration from defaults, the optional file at path and
// PHOTOLIB_* environment variables, in increasing priority. It performs no
// filesystem checks.
func ReadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Scanner.Workers = workers.ScanWorkers(cfg.Scanner.Workers)
	cfg.ThumbnailDir = filepath.Join(cfg.CacheDir, "thumbnails")
	cfg.TranscodeDir = filepath.Join(cfg.CacheDir, "transcoded")

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Scanner.PeriodicInterval < 0 {
		return fmt.Errorf("scanner.periodic_interval must not be negative: %w", apperr.ErrInvalidArgument)
	}
	if c.Faces.MaxDistance <= 0 {
		return fmt.Errorf("faces.max_distance must be positive: %w", apperr.ErrInvalidArgument)
	}
	switch c.Storage.Type {
	case "local":
	case "s3":
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3 requires endpoint and bucket: %w", apperr.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("unknown storage.type %q: %w", c.Storage.Type, apperr.ErrInvalidArgument)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required: %w", apperr.ErrInvalidArgument)
	}
	return nil
}

// LoadConfig reads the configuration, initializes logging, logs the startup
// banner and prepares the database and cache directories.
func LoadConfig(path string) (*Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	printBanner()
	logSystemInfo()

	section("CONFIGURATION")
	if path != "" {
		logging.Info("  Config file:           %s", path)
	}
	logging.Info("  database.path:         %s", cfg.Database.Path)
	logging.Info("  cache_dir:             %s", cfg.CacheDir)
	logging.Info("  http.port:             %s", cfg.HTTP.Port)
	logging.Info("  http.metrics_enabled:  %v", cfg.HTTP.MetricsEnabled)
	logging.Info("  scanner.workers:       %d", cfg.Scanner.Workers)
	logging.Info("  scanner.periodic:      %v", cfg.Scanner.PeriodicDuration())
	logging.Info("  scanner.content_hash:  %v", cfg.Scanner.ContentHash)
	logging.Info("  thumbnails.method:     %s", cfg.Thumbnails.Method)
	logging.Info("  thumbnails.use_vips:   %v", cfg.Thumbnails.UseVips)
	logging.Info("  faces.max_distance:    %.3f", cfg.Faces.MaxDistance)
	logging.Info("  storage.type:          %s", cfg.Storage.Type)
	if cfg.Memory.LimitBytes > 0 {
		logging.Info("  memory.limit_bytes:    %d", cfg.Memory.LimitBytes)
	}
	if cfg.Storage.Type == "s3" {
		logging.Info("  storage.s3.endpoint:   %s", cfg.Storage.S3.Endpoint)
		logging.Info("  storage.s3.bucket:     %s", cfg.Storage.S3.Bucket)
	}
	logging.Info("  log level:             %s", logging.GetLevel())

	section("DIRECTORIES")

	dbPath, err := filepath.Abs(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	cfg.Database.Path = dbPath

	cacheDir, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	cfg.CacheDir = cacheDir
	cfg.ThumbnailDir = filepath.Join(cacheDir, "thumbnails")
	cfg.TranscodeDir = filepath.Join(cacheDir, "transcoded")
	logging.Info("  Cache directory: %s", cacheDir)

	databaseDir := filepath.Dir(dbPath)
	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable: %w", err)
	}
	ok("Database directory %s is writable", databaseDir)

	if err := ensureDirectory(cfg.TranscodeDir, "transcoding"); err != nil {
		logging.Warn("  Transcode directory issue: %v", err)
		cfg.Transcoding.Enabled = false
	}
	if cfg.Storage.Type == "local" {
		if err := ensureDirectory(cfg.ThumbnailDir, "thumbnails"); err != nil {
			return nil, fmt.Errorf("thumbnail directory error: %w", err)
		}
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Transcoding: %s", enabledString(cfg.Transcoding.Enabled))
	logging.Info("    Metrics:     %s", enabledString(cfg.HTTP.MetricsEnabled))

	return cfg, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}
