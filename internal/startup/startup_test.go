package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion == "" {
		t.Error("Expected GoVersion to be set")
	}
	if info.OS == "" {
		t.Error("Expected OS to be set")
	}
	if info.Arch == "" {
		t.Error("Expected Arch to be set")
	}

	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Port:          "8080",
		DataDir:       t.TempDir(),
		LinkedDir:     t.TempDir(),
		DatabaseDir:   t.TempDir(),
		CacheDir:      t.TempDir(),
		CacheMaxBytes: 64 << 20,
		MaxPixels:     20_000_000,
		Workers:       4,
	}
}

func TestFinalize(t *testing.T) {
	cfg := testConfig(t)

	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	if cfg.DatabasePath != filepath.Join(cfg.DatabaseDir, "filedl.db") {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath)
	}
	if cfg.ThumbnailDir != filepath.Join(cfg.CacheDir, "thumbnails") {
		t.Errorf("ThumbnailDir = %s", cfg.ThumbnailDir)
	}
	if _, err := os.Stat(cfg.ThumbnailDir); err != nil {
		t.Errorf("thumbnail directory was not created: %v", err)
	}
	if !filepath.IsAbs(cfg.DataDir) {
		t.Errorf("DataDir not absolute: %s", cfg.DataDir)
	}
}

func TestFinalizeCreatesMissingDirs(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataDir = filepath.Join(t.TempDir(), "does", "not", "exist")

	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Errorf("data directory was not created: %v", err)
	}
}

func TestFinalizeRejectsZeroBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheMaxBytes = 0

	if err := cfg.Finalize(); err == nil {
		t.Fatal("Finalize() accepted a zero cache budget")
	}
}

func TestFinalizeRejectsFileAsDatabaseDir(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "notadir")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.DatabaseDir = path

	err := cfg.Finalize()
	if err == nil {
		t.Fatal("Finalize() accepted a file as the database directory")
	}
	if !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("error = %v", err)
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	handler := func(w http.ResponseWriter, r *http.Request) {}
	r.HandleFunc("/health", handler).Methods("GET")
	r.HandleFunc("/api/objects", handler).Methods("GET")
	r.HandleFunc("/api/file/{path:.*}", handler).Methods("GET")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("got %d routes, want 3", len(routes))
	}

	found := map[string]bool{}
	for _, route := range routes {
		found[route.Path] = true
		if route.Method != "GET" {
			t.Errorf("route %s method = %s", route.Path, route.Method)
		}
	}
	if !found["/health"] || !found["/api/objects"] || !found["/api/file/{path:.*}"] {
		t.Errorf("routes = %+v", routes)
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "health"},
		{"/api/objects", "api/objects"},
		{"/api/thumb/{path:.*}", "api/thumb"},
		{"/admin/thumbnail-cache-stats", "admin"},
		{"/", ""},
	}

	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{10 << 20, "10.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
