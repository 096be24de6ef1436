package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment variable read by failtrack.
	EnvPrefix = "FAILTRACK_"
)

// Options selects the sources Load reads.
type Options struct {
	// Path is an explicit YAML config file. Empty means search the default locations.
	Path string
	// EnvFile is a dotenv file merged into the environment. Empty means ".env";
	// a missing file is not an error.
	EnvFile string
}

// Load loads configuration from defaults, a YAML file, a dotenv file and
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FAILTRACK_SERVER_URL, FAILTRACK_CAPTURE_TIMEOUT, ...)
//  2. Dotenv file (values never override variables already set)
//  3. YAML config file
//  4. Defaults
//
// Without an explicit path the first existing file among ./.failtrack.yaml,
// ~/.config/failtrack/config.yaml and /etc/failtrack/config.yaml is used.
//
// Environment variables map to keys by stripping the prefix and splitting on
// the first underscore:
//
//	FAILTRACK_SERVER_URL           -> server.url
//	FAILTRACK_CAPTURE_SCRUB_SECRETS -> capture.scrub_secrets
//	FAILTRACK_CAPTURE_ENDPOINTS    -> capture.endpoints (comma separated)
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	configPath := opts.Path
	if configPath == "" {
		configPath = discoverConfigFile()
	}
	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKeyValue maps FAILTRACK_SECTION_FIELD_NAME to section.field_name and
// splits list values.
func envKeyValue(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower, value
	}
	path := parts[0] + "." + parts[1]
	if path == "capture.endpoints" {
		var eps []string
		for _, ep := range strings.Split(value, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				eps = append(eps, ep)
			}
		}
		return path, eps
	}
	return path, value
}

// discoverConfigFile returns the first existing default config file, or "".
func discoverConfigFile() string {
	candidates := []string{".failtrack.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "failtrack", "config.yaml"))
	}
	candidates = append(candidates, filepath.Join("/etc", "failtrack", "config.yaml"))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// readConfigFile returns the file content, or nil if the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	// Open once and validate via the descriptor to avoid a TOCTOU race.
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties rejects oversized and group/world writable files.
// The file may hold an API token.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", info.Name())
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
