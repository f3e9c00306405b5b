package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config represents the complete journalfwd configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service" toml:"service"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Collector CollectorConfig `yaml:"collector" toml:"collector"`
	Dispatch  DispatchConfig  `yaml:"dispatch" toml:"dispatch"`
	Parser    ParserConfig    `yaml:"parser" toml:"parser"`
	Events    EventsConfig    `yaml:"events" toml:"events"`

	// Source is the file the config was loaded from; empty when running on
	// defaults and environment only.
	Source string `yaml:"-" toml:"-"`
	// Fingerprint is "blake3:<hex>" of the source file contents.
	Fingerprint string `yaml:"-" toml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name" toml:"name"`
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`
}

// ServerConfig defines the upload listener.
type ServerConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
	// MaxBodySize caps one upload stream (e.g. "512MB"). Empty means unlimited,
	// since journal uploads are long-lived streams.
	MaxBodySize       string        `yaml:"max_body_size" toml:"max_body_size"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" toml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
}

// CollectorConfig defines where entries are posted. URL, when set, takes
// precedence over the individual parts.
type CollectorConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Scheme  string        `yaml:"scheme" toml:"scheme"`
	Host    string        `yaml:"host" toml:"host"`
	Port    int           `yaml:"port" toml:"port"`
	Path    string        `yaml:"path" toml:"path"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// DispatchConfig defines the forwarding worker pool.
type DispatchConfig struct {
	Workers      int           `yaml:"workers" toml:"workers"`
	QueueSize    int           `yaml:"queue_size" toml:"queue_size"`
	Overflow     string        `yaml:"overflow" toml:"overflow"` // block, drop or reject
	DrainTimeout time.Duration `yaml:"drain_timeout" toml:"drain_timeout"`
}

// ParserConfig bounds per-stream parser allocations.
type ParserConfig struct {
	MaxLineSize  string `yaml:"max_line_size" toml:"max_line_size"`
	MaxFieldSize string `yaml:"max_field_size" toml:"max_field_size"`
}

// EventsConfig sizes the in-memory event replay buffer.
type EventsConfig struct {
	Buffer int `yaml:"buffer" toml:"buffer"`
}

// Defaults returns a Config matching the historical adapter: listen on 9999,
// post to http://localhost:9998 with two workers.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "journalfwd",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:            ":9999",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Collector: CollectorConfig{
			Scheme:  "http",
			Host:    "localhost",
			Port:    9998,
			Path:    "/",
			Timeout: 10 * time.Second,
		},
		Dispatch: DispatchConfig{
			Workers:      2,
			QueueSize:    1024,
			Overflow:     "drop",
			DrainTimeout: 10 * time.Second,
		},
		Parser: ParserConfig{
			MaxLineSize:  "1MiB",
			MaxFieldSize: "64MiB",
		},
		Events: EventsConfig{
			Buffer: 256,
		},
	}
}

// Endpoint returns the collector URL.
func (c CollectorConfig) Endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: c.Scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   c.Path,
	}
	return u.String()
}

// MaxBodyBytes returns the parsed body cap, 0 meaning unlimited.
func (s ServerConfig) MaxBodyBytes() (int64, error) {
	if s.MaxBodySize == "" {
		return 0, nil
	}
	return parseSize(s.MaxBodySize)
}

// Limits returns the parsed parser bounds.
func (p ParserConfig) Limits() (maxLine, maxField int64, err error) {
	if p.MaxLineSize != "" {
		if maxLine, err = parseSize(p.MaxLineSize); err != nil {
			return 0, 0, fmt.Errorf("max_line_size: %w", err)
		}
	}
	if p.MaxFieldSize != "" {
		if maxField, err = parseSize(p.MaxFieldSize); err != nil {
			return 0, 0, fmt.Errorf("max_field_size: %w", err)
		}
	}
	return maxLine, maxField, nil
}
