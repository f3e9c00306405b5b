package config

import (
	"errors"
	"fmt"
	"net/url"
)

func validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if _, err := cfg.Server.MaxBodyBytes(); err != nil {
		errs = append(errs, fmt.Errorf("server.max_body_size: %w", err))
	}

	if cfg.Collector.URL == "" {
		if cfg.Collector.Host == "" {
			errs = append(errs, errors.New("collector.host is required"))
		}
		if cfg.Collector.Port <= 0 || cfg.Collector.Port > 65535 {
			errs = append(errs, fmt.Errorf("collector.port %d out of range", cfg.Collector.Port))
		}
		if cfg.Collector.Scheme != "http" && cfg.Collector.Scheme != "https" {
			errs = append(errs, fmt.Errorf("collector.scheme %q must be http or https", cfg.Collector.Scheme))
		}
	}
	if u, err := url.Parse(cfg.Collector.Endpoint()); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("collector endpoint %q is not a valid URL", cfg.Collector.Endpoint()))
	}
	if cfg.Collector.Timeout < 0 {
		errs = append(errs, errors.New("collector.timeout must not be negative"))
	}

	if cfg.Dispatch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.workers must be positive, got %d", cfg.Dispatch.Workers))
	}
	if cfg.Dispatch.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.queue_size must be positive, got %d", cfg.Dispatch.QueueSize))
	}
	switch cfg.Dispatch.Overflow {
	case "block", "drop", "reject":
	default:
		errs = append(errs, fmt.Errorf("dispatch.overflow %q must be block, drop or reject", cfg.Dispatch.Overflow))
	}

	if _, _, err := cfg.Parser.Limits(); err != nil {
		errs = append(errs, fmt.Errorf("parser.%w", err))
	}
	if cfg.Events.Buffer < 0 {
		errs = append(errs, errors.New("events.buffer must not be negative"))
	}

	return errors.Join(errs...)
}
