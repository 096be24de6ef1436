package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate moves the test into an empty working directory with a fake HOME so
// no real config or .env file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != DefaultServerURL {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, DefaultServerURL)
	}
	if cfg.Capture.Timeout.Duration() != 5*time.Second {
		t.Errorf("Capture.Timeout = %v, want 5s", cfg.Capture.Timeout.Duration())
	}
	if !cfg.Capture.ScrubSecrets {
		t.Error("Capture.ScrubSecrets = false, want true")
	}
	if !cfg.Capture.GitleaksRules {
		t.Error("Capture.GitleaksRules = false, want true")
	}
	if cfg.Server.Timeout != 0 {
		t.Errorf("Server.Timeout = %v, want 0 (no timeout)", cfg.Server.Timeout.Duration())
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled = true, want false (disabled by default)")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("FAILTRACK_SERVER_URL", "http://tracker.internal:8080")
	t.Setenv("FAILTRACK_CAPTURE_TIMEOUT", "2s")
	t.Setenv("FAILTRACK_CAPTURE_SCRUB_SECRETS", "false")
	t.Setenv("FAILTRACK_CAPTURE_GITLEAKS_RULES", "false")
	t.Setenv("FAILTRACK_CAPTURE_ENDPOINTS", "http://a:1/api/failures, http://b:2/mcp/failures")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "http://tracker.internal:8080" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Capture.Timeout.Duration() != 2*time.Second {
		t.Errorf("Capture.Timeout = %v, want 2s", cfg.Capture.Timeout.Duration())
	}
	if cfg.Capture.ScrubSecrets {
		t.Error("Capture.ScrubSecrets = true, want false")
	}
	if cfg.Capture.GitleaksRules {
		t.Error("Capture.GitleaksRules = true, want false")
	}
	want := []string{"http://a:1/api/failures", "http://b:2/mcp/failures"}
	got := cfg.CaptureEndpoints()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("CaptureEndpoints() = %v, want %v", got, want)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	content := `server:
  url: http://yaml-host:3000
  timeout: 30s
  api_token: s3cr3t
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(Options{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "http://yaml-host:3000" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Server.Timeout.Duration() != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want 30s", cfg.Server.Timeout.Duration())
	}
	if cfg.Server.APIToken.Value() != "s3cr3t" {
		t.Errorf("Server.APIToken not loaded")
	}
	if cfg.Server.APIToken.String() != "[REDACTED]" {
		t.Errorf("APIToken.String() = %q, want redacted", cfg.Server.APIToken.String())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	// Unset keys keep their defaults.
	if cfg.Capture.Timeout.Duration() != DefaultCaptureTimeout {
		t.Errorf("Capture.Timeout = %v, want default", cfg.Capture.Timeout.Duration())
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  url: http://from-file:1\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("FAILTRACK_SERVER_URL", "http://from-env:2")

	cfg, err := Load(Options{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "http://from-env:2" {
		t.Errorf("Server.URL = %q, want env value", cfg.Server.URL)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := isolate(t)
	envPath := filepath.Join(dir, "custom.env")
	if err := os.WriteFile(envPath, []byte("FAILTRACK_SERVER_URL=http://dotenv:9\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	// godotenv sets the variable in the process; make sure it is cleared afterwards.
	t.Setenv("FAILTRACK_SERVER_URL", "")
	os.Unsetenv("FAILTRACK_SERVER_URL")

	cfg, err := Load(Options{EnvFile: envPath})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "http://dotenv:9" {
		t.Errorf("Server.URL = %q, want dotenv value", cfg.Server.URL)
	}
}

func TestLoad_RejectsWritableFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  url: http://x:1\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}

	if _, err := Load(Options{Path: path}); err == nil {
		t.Fatal("Load() error = nil, want permission error")
	}
}

func TestConfig_CaptureEndpointsDerived(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = "http://localhost:3000/"

	got := cfg.CaptureEndpoints()
	want := []string{"http://localhost:3000/api/failures", "http://localhost:3000/mcp/failures"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("CaptureEndpoints() = %v, want %v", got, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty server url", func(c *Config) { c.Server.URL = "" }, true},
		{"non-http server url", func(c *Config) { c.Server.URL = "ftp://x" }, true},
		{"zero capture timeout", func(c *Config) { c.Capture.Timeout = 0 }, true},
		{"bad endpoint", func(c *Config) { c.Capture.Endpoints = []string{"localhost"} }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"telemetry without service name", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.ServiceName = ""
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1500ms")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration() = %v", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("UnmarshalText(-1s) error = nil, want error")
	}
}
