// Package startup loads the configuration and logs the server's startup
// and shutdown sequence.
package startup

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"photo-library/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

const rule = "------------------------------------------------------------"

// section starts a titled block of the startup log.
func section(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", title)
	logging.Info(rule)
}

func ok(format string, args ...interface{}) {
	logging.Info("  [OK] "+format, args...)
}

// LogDatabaseInit logs how long opening and migrating the catalog took.
func LogDatabaseInit(duration time.Duration) {
	section("DATABASE")
	ok("Catalog ready in %v", duration.Round(time.Millisecond))
}

// Tools reports which external media tools were found.
type Tools struct {
	FFmpeg  bool
	FFprobe bool
}

// Video reports whether video metadata and frames can be extracted.
func (t Tools) Video() bool {
	return t.FFmpeg && t.FFprobe
}

// LogMediaToolsInit looks for ffmpeg and ffprobe and logs what video
// features are available.
func LogMediaToolsInit(transcodingEnabled bool) Tools {
	section("MEDIA TOOLS")

	var tools Tools
	for name, found := range map[string]*bool{"ffmpeg": &tools.FFmpeg, "ffprobe": &tools.FFprobe} {
		version, err := toolVersion(name)
		if err != nil {
			logging.Warn("  %s unavailable: %v", name, err)
			continue
		}
		*found = true
		ok("%s: %s", name, version)
	}

	switch {
	case !tools.Video():
		logging.Warn("  Video metadata and thumbnails will be skipped")
	case !transcodingEnabled:
		logging.Info("  Web renditions: DISABLED")
	default:
		logging.Info("  Web renditions: ENABLED")
	}
	return tools
}

// LogOrchestratorInit logs the scan scheduling settings.
func LogOrchestratorInit(workers int, interval time.Duration) {
	section("SCANNER")
	logging.Info("  Concurrent workers: %d", workers)
	if interval > 0 {
		logging.Info("  Periodic scans:     every %v", interval)
	} else {
		logging.Info("  Periodic scans:     DISABLED")
	}
}

// LogOrchestratorStarted logs successful orchestrator start
func LogOrchestratorStarted() {
	ok("Scan orchestrator started")
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes lists the routes of router in registration order. Routes
// without a method restriction are reported with method "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			// Subrouter prefixes without a template of their own
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, RouteInfo{Method: m, Path: path, Name: route.GetName()})
		}
		return nil
	})
	return routes, err
}

// LogHTTPRoutes logs the route count and, at debug level, every route
// grouped by its leading path segments.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section("HTTP SERVER")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("  Failed to list routes: %v", err)
	}
	logging.Info("  Routes registered: %d", len(routes))

	if logging.IsDebugEnabled() {
		groups := make(map[string][]RouteInfo)
		for _, r := range routes {
			g := getRouteGroup(r.Path)
			groups[g] = append(groups[g], r)
		}
		names := make([]string, 0, len(groups))
		for g := range groups {
			names = append(names, g)
		}
		sort.Strings(names)
		for _, g := range names {
			logging.Debug("  [%s]", cmp.Or(g, "root"))
			for _, r := range groups[g] {
				logging.Debug("    %-6s %s", r.Method, r.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set PHOTOLIB_HTTP_LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup returns the first path segment, or the first two for
// routes under /api.
func getRouteGroup(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "api" && len(parts) > 1 {
		return "api/" + parts[1]
	}
	return parts[0]
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs the listening endpoints.
func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time: %v", config.StartupDuration.Round(time.Millisecond))
	logging.Info("  API:          http://0.0.0.0:%s/api", config.Port)
	logging.Info("  Events:       http://0.0.0.0:%s/api/notifications", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:      http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("  Metrics:      DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
}

// Shutdown times and logs the shutdown sequence.
type Shutdown struct {
	start time.Time
}

// BeginShutdown logs why the server is stopping.
func BeginShutdown(reason string) *Shutdown {
	section(fmt.Sprintf("SHUTDOWN INITIATED (%s)", reason))
	return &Shutdown{start: time.Now()}
}

// Step runs fn and logs its outcome. Failures are logged and do not stop
// the sequence.
func (s *Shutdown) Step(name string, fn func() error) {
	logging.Debug("  %s...", name)
	stepStart := time.Now()
	if err := fn(); err != nil {
		logging.Warn("  [FAILED] %s: %v", name, err)
		return
	}
	ok("%s (%v)", name, time.Since(stepStart).Round(time.Millisecond))
}

// Done logs the total shutdown time.
func (s *Shutdown) Done() {
	ok("Shutdown complete in %v", time.Since(s.start).Round(time.Millisecond))
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	fmt.Println(`
` + rule + `
     ___  __        __          __    _ __
    / _ \/ /  ___  / /____     / /   (_) /  _______ _______ __
   / ___/ _ \/ _ \/ __/ _ \   / /__/ / _ \/ __/ _ '/ __/ // /
  /_/  /_//_/\___/\__/\___/  /____/_/_.__/_/  \_,_/_/  \_, /
                                                      /___/
` + rule)
	info := GetBuildInfo()
	logging.Info("  Version:    %s (%s)", info.Version, info.Commit)
	logging.Info("  Build Time: %s", info.BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:  %s (%s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs:        %d (GOMAXPROCS %d)", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		logging.Info("  GOMEMLIMIT:  %s", humanize.IBytes(uint64(limit)))
	}
	if hostname, err := os.Hostname(); err == nil {
		logging.Debug("  Hostname:    %s", hostname)
	}
}

// ensureDirectory creates path if needed and fails when it is a file.
func ensureDirectory(path, name string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", name, err)
		}
		logging.Debug("  Created %s directory %s", name, path)
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat %s directory: %w", name, err)
	case !info.IsDir():
		return fmt.Errorf("%s path %s is not a directory", name, path)
	}
	return nil
}

// testWriteAccess creates and removes a scratch file in dir.
func testWriteAccess(dir string) error {
	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("Failed to remove scratch file %s: %v", name, err)
	}
	return nil
}

// toolVersion returns the first line of `name -version`.
func toolVersion(name string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", name, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}
