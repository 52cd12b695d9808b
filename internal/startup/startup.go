package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"filedl/internal/logging"

	"github.com/gorilla/mux"
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

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration. The CLI layer populates the
// input fields from flags and FILEDL_* environment variables; Finalize
// validates them and fills in the derived paths.
type Config struct {
	Port            string
	DataDir         string
	LinkedDir       string
	DatabaseDir     string
	CacheDir        string
	CacheMaxBytes   int64
	MaxPixels       int
	Workers         int
	StrongHashes    bool
	VipsEnabled     bool
	LogHealthChecks bool
	MetricsEnabled  bool

	// Derived paths
	DatabasePath string
	ThumbnailDir string
}

// Finalize resolves paths, prepares directories and logs the effective
// configuration. An unusable database or thumbnail cache directory is a
// hard error; a missing data or linked directory only warns.
func (c *Config) Finalize() error {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  FILEDL_PORT:              %s", c.Port)
	logging.Info("  FILEDL_DATA_DIR:          %s", c.DataDir)
	logging.Info("  FILEDL_LINKED_DIR:        %s", c.LinkedDir)
	logging.Info("  FILEDL_DATABASE_DIR:      %s", c.DatabaseDir)
	logging.Info("  FILEDL_CACHE_DIR:         %s", c.CacheDir)
	logging.Info("  FILEDL_CACHE_MAX_MB:      %s", formatBytes(c.CacheMaxBytes))
	logging.Info("  FILEDL_MAX_PIXELS:        %d", c.MaxPixels)
	logging.Info("  FILEDL_WORKERS:           %d", c.Workers)
	logging.Info("  FILEDL_STRONG_HASHES:     %v", c.StrongHashes)
	logging.Info("  FILEDL_VIPS:              %v", c.VipsEnabled)
	logging.Info("  FILEDL_LOG_HEALTH_CHECKS: %v", c.LogHealthChecks)
	logging.Info("  FILEDL_METRICS:           %v", c.MetricsEnabled)
	logging.Info("  LOG_LEVEL:                %s", logging.GetLevel())

	if c.CacheMaxBytes <= 0 {
		return fmt.Errorf("cache budget must be positive, got %d", c.CacheMaxBytes)
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	var err error
	c.DataDir, err = filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	logging.Info("  Data directory (absolute):     %s", c.DataDir)

	c.LinkedDir, err = filepath.Abs(c.LinkedDir)
	if err != nil {
		return fmt.Errorf("failed to resolve linked directory path: %w", err)
	}
	logging.Info("  Linked directory (absolute):   %s", c.LinkedDir)

	c.DatabaseDir, err = filepath.Abs(c.DatabaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", c.DatabaseDir)

	c.CacheDir, err = filepath.Abs(c.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	logging.Info("  Cache directory (absolute):    %s", c.CacheDir)

	c.DatabasePath = filepath.Join(c.DatabaseDir, "filedl.db")
	c.ThumbnailDir = filepath.Join(c.CacheDir, "thumbnails")

	// Data and linked directories are where served files live; a missing
	// one just means empty listings until it appears.
	if err := ensureDirectory(c.DataDir, "data"); err != nil {
		logging.Warn("  Data directory issue: %v", err)
	}
	if err := ensureDirectory(c.LinkedDir, "linked"); err != nil {
		logging.Warn("  Linked directory issue: %v", err)
	}

	if err := ensureDirectory(c.DatabaseDir, "database"); err != nil {
		return fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(c.DatabaseDir); err != nil {
		return fmt.Errorf("database directory is not writable (required for object registry): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if err := ensureDirectory(c.ThumbnailDir, "thumbnails"); err != nil {
		return fmt.Errorf("thumbnail cache directory error: %w", err)
	}
	logging.Debug("  Testing thumbnail cache write access...")
	if err := testWriteAccess(c.ThumbnailDir); err != nil {
		return fmt.Errorf("thumbnail cache directory is not writable: %w", err)
	}
	logging.Info("  [OK] Thumbnail cache directory is writable")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Registry:     ENABLED (required)")
	logging.Info("    Thumbnails:   ENABLED (required)")
	logging.Info("    libvips:      %s", enabledString(c.VipsEnabled))
	logging.Info("    Metrics:      %s", enabledString(c.MetricsEnabled))

	return nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogStoreInit logs object registry initialization
func LogStoreInit(duration time.Duration, objects int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("REGISTRY INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Registry initialized in %v (%d objects)", duration, objects)
}

// LogThumbnailerInit logs thumbnail subsystem initialization
func LogThumbnailerInit(cached int, usedBytes, maxBytes int64, vips bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("THUMBNAILER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Cache: %d entries, %s of %s", cached, formatBytes(usedBytes), formatBytes(maxBytes))
	if vips {
		logging.Info("  [OK] libvips fast path available")
	} else {
		logging.Info("  libvips disabled, using pure-Go image pipeline")
	}
}

// LogWatcherStarted logs a started directory watcher
func LogWatcherStarted(name, dir string) {
	logging.Info("  [OK] Watching %s directory: %s", name, dir)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		// Group routes by prefix for cleaner output
		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			groupRoutes := groups[group]
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groupRoutes {
				methodPadded := fmt.Sprintf("%-6s", route.Method)
				logging.Debug("    %s %s", methodPadded, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set FILEDL_LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	// Special handling for API routes
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    ____ _  __         __ __
   / __/(_)/ /___  ___/ // /
  / /_ / // // -_)/ _  // /
 /_/  /_//_/ \__/ \_,_//_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
