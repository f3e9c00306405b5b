package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment overrides kept compatible with existing deployments.
const (
	EnvServerPort = "SERVER_PORT"
	EnvClientHost = "CLIENT_HOST"
	EnvClientPort = "CLIENT_PORT"
	EnvConfigPath = "JOURNALFWD_CONFIG"
)

// Load reads configuration from path, or uses defaults when path is empty.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// ${VAR} references are expanded before decoding, and SERVER_PORT,
// CLIENT_HOST and CLIENT_PORT override the decoded values.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if err := decode(absPath, data, cfg); err != nil {
			return nil, err
		}
		cfg.Source = absPath
		cfg.Fingerprint = Fingerprint(data)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover returns the first config file found in the standard locations,
// or "" when there is none.
// Priority order: $JOURNALFWD_CONFIG, ~/.config/journalfwd/config.yaml,
// /etc/journalfwd/config.yaml, ./config.yaml.
func Discover() string {
	var candidates []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		candidates = append(candidates, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "journalfwd", "config.yaml"))
	}
	candidates = append(candidates, "/etc/journalfwd/config.yaml", "./config.yaml")

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func decode(path string, data []byte, cfg *Config) error {
	data = []byte(interpolateEnv(string(data)))

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("failed to parse TOML %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("failed to parse TOML %s: unknown key %q", path, undecoded[0].String())
		}
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}
	return nil
}

func interpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func applyEnv(cfg *Config) error {
	if port := os.Getenv(EnvServerPort); port != "" {
		if _, err := parsePort(port); err != nil {
			return fmt.Errorf("%s: %w", EnvServerPort, err)
		}
		cfg.Server.Listen = ":" + port
	}
	if host := os.Getenv(EnvClientHost); host != "" {
		cfg.Collector.Host = host
		cfg.Collector.URL = ""
	}
	if port := os.Getenv(EnvClientPort); port != "" {
		n, err := parsePort(port)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvClientPort, err)
		}
		cfg.Collector.Port = n
		cfg.Collector.URL = ""
	}
	return nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return n, nil
}

// parseSize parses sizes like "64MB", "1MiB" or "1048576".
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("size %q must be positive", s)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	return int64(n), nil
}
