package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/journalfwd/internal/config"
	"github.com/mattjoyce/journalfwd/internal/events"
	"github.com/mattjoyce/journalfwd/internal/forward"
	"github.com/mattjoyce/journalfwd/internal/ingest"
	"github.com/mattjoyce/journalfwd/internal/log"
	"github.com/mattjoyce/journalfwd/internal/metrics"
	"github.com/mattjoyce/journalfwd/internal/tui"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const version = "0.2.0"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve", "start":
		os.Exit(runServe(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "monitor":
		os.Exit(runMonitor(args))
	case "version":
		fmt.Printf("journalfwd version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `journalfwd - systemd journal upload to JSON collector adapter

Usage:
  journalfwd <command> [flags]

Commands:
  serve               Accept journal uploads and forward entries (alias: start)
  config check        Validate configuration and print its fingerprint
  config get <path>   Print a configuration value (e.g. collector.port)
  monitor             Live terminal view of a running instance
  version             Show version information
  help                Show this help message

Environment:
  SERVER_PORT         Upload listen port (overrides server.listen)
  CLIENT_HOST         Collector host (overrides collector.host)
  CLIENT_PORT         Collector port (overrides collector.port)
  JOURNALFWD_CONFIG   Config file used when --config is not given
`)
}

// parseFlags parses args, mapping -h/--help to exit code 0.
func parseFlags(fs *pflag.FlagSet, args []string) (code int, ok bool) {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1, false
	}
	return 0, true
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.Discover()
	}
	return config.Load(path)
}

func runServe(args []string) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file (.yaml or .toml)")
	listen := fs.String("listen", "", "Override server.listen")
	logLevel := fs.String("log-level", "", "Override service.log_level")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Service.LogLevel = *logLevel
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("journalfwd starting",
		"version", version,
		"config", cfg.Source,
		"fingerprint", cfg.Fingerprint,
		"listen", cfg.Server.Listen,
	)

	// Sizes and the overflow policy were checked by config.Load.
	maxBody, _ := cfg.Server.MaxBodyBytes()
	maxLine, maxField, _ := cfg.Parser.Limits()
	overflow, _ := forward.ParseOverflow(cfg.Dispatch.Overflow)

	m := metrics.New()
	hub := events.NewHub(cfg.Events.Buffer)
	collector := forward.NewHTTPClient(cfg.Collector.Endpoint(), cfg.Collector.Timeout)
	logger.Info("forwarding to collector", "url", collector.URL(), "timeout", cfg.Collector.Timeout)
	pool := forward.NewPool(forward.PoolConfig{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
		Overflow:  overflow,
	}, collector, m, hub)

	server := ingest.New(ingest.Config{
		Listen:            cfg.Server.Listen,
		MaxBodySize:       maxBody,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxLineSize:       int(maxLine),
		MaxFieldSize:      maxField,
	}, pool, hub, m, log.WithComponent("ingest"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runLifecycle(ctx, server, pool, cfg.Dispatch.DrainTimeout); err != nil {
		logger.Error("journalfwd stopped with error", "error", err)
		return 1
	}
	logger.Info("journalfwd stopped")
	return 0
}

type starter interface {
	Start(ctx context.Context) error
}

type drainer interface {
	Close(ctx context.Context) error
}

// runLifecycle runs the intake server until ctx ends, then drains the pool.
// The pool is closed only once the server has shut down, so uploads still
// finishing during shutdown can queue their last entries.
func runLifecycle(ctx context.Context, server starter, pool drainer, drainTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return errors.Join(runErr, pool.Close(drainCtx))
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: journalfwd config <check|get> [flags]")
		return 1
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "get":
		return runConfigGet(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := pflag.NewFlagSet("config check", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file (.yaml or .toml)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	source := cfg.Source
	if source == "" {
		source = "(defaults)"
	}
	fingerprint := cfg.Fingerprint
	if fingerprint == "" {
		fingerprint = "-"
	}

	fmt.Printf("Config:      %s\n", source)
	fmt.Printf("Fingerprint: %s\n", fingerprint)
	fmt.Printf("Listen:      %s\n", cfg.Server.Listen)
	fmt.Printf("Collector:   %s\n", cfg.Collector.Endpoint())
	fmt.Printf("Dispatch:    workers=%d queue_size=%d overflow=%s\n",
		cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, cfg.Dispatch.Overflow)
	fmt.Println("Configuration valid")
	return 0
}

func runConfigGet(args []string) int {
	fs := pflag.NewFlagSet("config get", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file (.yaml or .toml)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: journalfwd config get <path> [--config file]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out, err := yaml.Marshal(val)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

func runMonitor(args []string) int {
	fs := pflag.NewFlagSet("monitor", pflag.ContinueOnError)
	url := fs.String("url", "http://localhost:9999", "Base URL of a running journalfwd")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	p := tea.NewProgram(tui.NewMonitor(*url))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Monitor failed: %v\n", err)
		return 1
	}
	return 0
}
