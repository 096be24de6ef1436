// Package config provides configuration loading for failtrack.
//
// Configuration is assembled from defaults, an optional YAML file, an optional
// .env file and FAILTRACK_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the complete failtrack configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Capture   CaptureConfig   `koanf:"capture"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig locates the failure-tracking service used by the protocol client.
type ServerConfig struct {
	URL string `koanf:"url"`
	// Timeout bounds each protocol call. Zero means no timeout.
	Timeout  Duration `koanf:"timeout"`
	APIToken Secret   `koanf:"api_token"`
}

// CaptureConfig controls the capture-and-delivery path.
type CaptureConfig struct {
	// Endpoints are tried in order; empty means derived from Server.URL.
	Endpoints    []string `koanf:"endpoints"`
	Timeout      Duration `koanf:"timeout"`
	ScrubSecrets bool     `koanf:"scrub_secrets"`
	// GitleaksRules adds gitleaks' default rule set to the built-in scrubber rules.
	GitleaksRules bool `koanf:"gitleaks_rules"`
	// ModuleRoot is used to resolve package import paths to directories.
	ModuleRoot string `koanf:"module_root"`
}

// LoggingConfig is the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the subset of telemetry settings exposed to users.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

const (
	// DefaultServerURL is where the failure-tracking service listens by default.
	DefaultServerURL = "http://localhost:3000"
	// DefaultCaptureTimeout bounds each delivery attempt.
	DefaultCaptureTimeout = 5 * time.Second
)

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL: DefaultServerURL,
		},
		Capture: CaptureConfig{
			Timeout:       Duration(DefaultCaptureTimeout),
			ScrubSecrets:  true,
			GitleaksRules: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			Protocol:    "http/protobuf",
			Insecure:    true,
			ServiceName: "failtrack",
			SampleRate:  1.0,
		},
	}
}

// CaptureEndpoints returns the ordered delivery endpoints: the HTTP API path
// first and the protocol-specific path second, unless configured explicitly.
func (c *Config) CaptureEndpoints() []string {
	if len(c.Capture.Endpoints) > 0 {
		return append([]string(nil), c.Capture.Endpoints...)
	}
	base := strings.TrimRight(c.Server.URL, "/")
	return []string{
		base + "/api/failures",
		base + "/mcp/failures",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validateHTTPURL(c.Server.URL); err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if c.Server.Timeout < 0 {
		return errors.New("server.timeout must not be negative")
	}
	if c.Capture.Timeout.Duration() <= 0 {
		return errors.New("capture.timeout must be positive")
	}
	for i, ep := range c.Capture.Endpoints {
		if err := validateHTTPURL(ep); err != nil {
			return fmt.Errorf("capture.endpoints[%d]: %w", i, err)
		}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("telemetry.service_name required when telemetry is enabled")
		}
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry.endpoint required when telemetry is enabled")
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
