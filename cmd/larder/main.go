// Larder is a meal-planning assistant that runs as a Home Assistant
// add-on. It serves a dashboard API over flat JSON documents, drives an
// Anthropic model through a small tool loop, and optionally announces
// sensor states over MQTT.
//
// Usage:
//
//	larder serve             Start the dashboard API server
//	larder init              Create the data directory and seed preferences
//	larder scan              Run one expiry scan and print the band counts
//	larder ask <message>     Run a single assistant request (for testing)
//	larder version           Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hearthward/larder/internal/agent"
	"github.com/hearthward/larder/internal/buildinfo"
	"github.com/hearthward/larder/internal/config"
	"github.com/hearthward/larder/internal/docstore"
	"github.com/hearthward/larder/internal/events"
	"github.com/hearthward/larder/internal/expiry"
	"github.com/hearthward/larder/internal/fetch"
	"github.com/hearthward/larder/internal/jobs"
	"github.com/hearthward/larder/internal/llm"
	"github.com/hearthward/larder/internal/mqtt"
	"github.com/hearthward/larder/internal/seed"
	"github.com/hearthward/larder/internal/tools"
	"github.com/hearthward/larder/internal/usage"
	"github.com/hearthward/larder/internal/web"
)

// rescanEvery is how often the background expiry scan refreshes the
// status document while the server runs.
const rescanEvery = 6 * time.Hour

// shutdownGrace bounds how long in-flight HTTP requests and the MQTT
// farewell get during shutdown.
const shutdownGrace = 5 * time.Second

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command-line flags. Flags may appear before
// or after the command name.
type options struct {
	configPath string
	dataDir    string
	port       int
	logLevel   string
	force      bool
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var opts options
	var rest []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		needsValue := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			return args[i], nil
		}
		var err error
		switch arg {
		case "--config", "-config":
			opts.configPath, err = needsValue()
		case "--data-dir", "-data-dir":
			opts.dataDir, err = needsValue()
		case "--port", "-port":
			var v string
			if v, err = needsValue(); err == nil {
				opts.port, err = strconv.Atoi(v)
				if err != nil {
					err = fmt.Errorf("invalid port %q", v)
				}
			}
		case "--log-level", "-log-level":
			opts.logLevel, err = needsValue()
		case "--force", "-force":
			opts.force = true
		case "--help", "-help", "-h", "help":
			printUsage(stdout)
			return nil
		default:
			rest = append(rest, arg)
		}
		if err != nil {
			return err
		}
	}

	if len(rest) == 0 {
		printUsage(stderr)
		return errors.New("no command given")
	}

	switch cmd := rest[0]; cmd {
	case "serve":
		return runServe(ctx, stdout, stderr, opts)
	case "init":
		return runInit(stdout, opts)
	case "scan":
		return runScan(stdout, opts)
	case "ask":
		return runAsk(ctx, stdout, opts, strings.Join(rest[1:], " "))
	case "version":
		return runVersion(stdout)
	default:
		return fmt.Errorf("unknown command: %s (try 'larder help')", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Larder — meal planning assistant

Usage:
  larder [flags] <command>

Commands:
  serve             Start the dashboard API server
  init              Create the data directory and seed default preferences
  scan              Run one expiry scan and print the band counts
  ask <message>     Run a single assistant request and print the reply
  version           Print version and build information

Flags:
  --config PATH     Config file (default: search larder.yaml, /config/larder.yaml)
  --data-dir DIR    Data directory (overrides config and DATA_DIR)
  --port N          Listen port for serve (default 5005)
  --log-level LVL   trace, debug, info, warn, or error
  --force           For init: overwrite existing preferences
`)
}

// loadConfig resolves the effective configuration. A missing config
// file is fine unless --config named one explicitly; flags beat the
// DATA_DIR environment variable, which beats the file.
func loadConfig(opts options) (*config.Config, string, error) {
	path, err := config.FindConfig(opts.configPath)
	if err != nil && opts.configPath != "" {
		return nil, "", err
	}

	cfg := config.Default()
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.port != 0 {
		cfg.Listen.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, path, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	logger, err := config.NewLogger(w, level)
	if err != nil {
		// NewLogger already fell back to info; just mention it.
		logger.Warn("invalid log level, using info", "level", level)
	}
	return logger
}

func runServe(ctx context.Context, stdout, stderr io.Writer, opts options) error {
	cfg, cfgPath, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting larder",
		"version", buildinfo.Version,
		"config", cfgPath,
		"data_dir", cfg.DataDir,
	)

	store, err := docstore.New(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}
	if seeded, err := seed.WritePreferences(store, false); err != nil {
		return fmt.Errorf("seed preferences: %w", err)
	} else if seeded {
		logger.Info("seeded default preferences")
	}

	bus := events.New()
	registry := jobs.New(logger)
	keystore := llm.NewKeystore(cfg.DataDir, cfg.Anthropic.APIKey)
	factory := llm.NewFactory(keystore, logger)

	usagePath := cfg.UsageDB
	if usagePath == "" {
		usagePath = filepath.Join(cfg.DataDir, "usage.db")
	}
	usageStore, err := usage.NewStore(usagePath)
	if err != nil {
		return fmt.Errorf("open usage ledger: %w", err)
	}
	defer usageStore.Close()

	orch := agent.New(store, tools.NewExecutor(store, logger), factory, registry, logger)
	orch.Model = cfg.Anthropic.Model
	orch.MaxTokens = cfg.Anthropic.MaxTokens
	orch.Usage = usageStore
	orch.Bus = bus

	server := web.New(cfg, store, registry, orch, keystore, factory, web.Options{
		Fetcher: fetch.New(),
		Usage:   usageStore,
		Bus:     bus,
		Logger:  logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scan once at startup so the dashboard and sensors have fresh
	// bands before the first 6h tick.
	refreshExpiry(store, bus, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})
	g.Go(func() error {
		registry.RunSweeper(gctx)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(rescanEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				refreshExpiry(store, bus, logger)
			}
		}
	})

	if cfg.MQTT.Enabled() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load instance id: %w", err)
		}
		pub := mqtt.New(cfg.MQTT, instanceID, &sensorStats{
			store:    store,
			registry: registry,
			usage:    usageStore,
			logger:   logger,
		}, bus, logger)
		g.Go(func() error {
			if err := pub.Start(gctx); err != nil {
				// The announcer is best-effort; the dashboard works
				// without it.
				logger.Error("mqtt announcer failed", "error", err)
			}
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := pub.Stop(stopCtx); err != nil {
				logger.Warn("mqtt disconnect failed", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// refreshExpiry rescans the inventory, rewrites status.expiryAlerts,
// and announces the result on the bus.
func refreshExpiry(store *docstore.Store, bus *events.Bus, logger *slog.Logger) {
	now := time.Now()
	alerts, err := expiry.RefreshStatus(store, now)
	if err != nil {
		logger.Error("expiry scan failed", "error", err)
		return
	}
	logger.Info("expiry scan",
		"red", len(alerts.Red),
		"amber", len(alerts.Amber),
		"green", len(alerts.Green),
	)
	bus.Publish(events.Event{
		Timestamp: now,
		Source:    events.SourceExpiry,
		Kind:      events.KindExpiryScan,
		Data: map[string]any{
			"red":   len(alerts.Red),
			"amber": len(alerts.Amber),
			"green": len(alerts.Green),
		},
	})
}

// sensorStats snapshots the live components for the MQTT sensors. The
// expiry bands come from a fresh scan rather than the status document,
// so the sensors stay honest even if nothing has rewritten status.json
// since midnight rolled the day counts over.
type sensorStats struct {
	store    *docstore.Store
	registry *jobs.Registry
	usage    *usage.Store
	logger   *slog.Logger
}

func (s *sensorStats) Snapshot() mqtt.Stats {
	now := time.Now()
	inv := s.store.ReadList(docstore.Inventory, nil)
	alerts := expiry.Scan(inv, now)

	tokens, err := s.usage.TokensToday(now)
	if err != nil {
		s.logger.Warn("usage snapshot failed", "error", err)
	}

	var lastScan string
	status := s.store.Read(docstore.Status, nil)
	if ea, ok := status["expiryAlerts"].(map[string]any); ok {
		lastScan, _ = ea["lastChecked"].(string)
	}

	return mqtt.Stats{
		InventoryItems: len(inv),
		ExpiringRed:    len(alerts.Red),
		ExpiringAmber:  len(alerts.Amber),
		ExpiringGreen:  len(alerts.Green),
		PendingJobs:    s.registry.Pending(),
		TokensToday:    tokens,
		LastScan:       lastScan,
	}
}

func runInit(stdout io.Writer, opts options) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(io.Discard, cfg.LogLevel)
	store, err := docstore.New(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	seeded, err := seed.WritePreferences(store, opts.force)
	if err != nil {
		return fmt.Errorf("seed preferences: %w", err)
	}
	if seeded {
		fmt.Fprintf(stdout, "Initialized %s with default preferences\n", cfg.DataDir)
	} else {
		fmt.Fprintf(stdout, "%s already has preferences; use --force to overwrite\n", cfg.DataDir)
	}
	return nil
}

func runScan(stdout io.Writer, opts options) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(io.Discard, cfg.LogLevel)
	store, err := docstore.New(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}

	alerts, err := expiry.RefreshStatus(store, time.Now())
	if err != nil {
		return fmt.Errorf("expiry scan: %w", err)
	}

	fmt.Fprintf(stdout, "Expiry scan: %d red, %d amber, %d green\n",
		len(alerts.Red), len(alerts.Amber), len(alerts.Green))
	for _, e := range alerts.Red {
		fmt.Fprintf(stdout, "  RED    %s (%s) — %d day(s)\n", e.Item, e.Amount, e.DaysUntil)
	}
	for _, e := range alerts.Amber {
		fmt.Fprintf(stdout, "  AMBER  %s (%s) — %d day(s)\n", e.Item, e.Amount, e.DaysUntil)
	}
	return nil
}

// runAsk submits a single assistant job and runs it synchronously.
func runAsk(ctx context.Context, stdout io.Writer, opts options, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("ask requires a message")
	}

	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(io.Discard, cfg.LogLevel)
	store, err := docstore.New(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}

	registry := jobs.New(logger)
	keystore := llm.NewKeystore(cfg.DataDir, cfg.Anthropic.APIKey)
	factory := llm.NewFactory(keystore, logger)

	orch := agent.New(store, tools.NewExecutor(store, logger), factory, registry, logger)
	orch.Model = cfg.Anthropic.Model
	orch.MaxTokens = cfg.Anthropic.MaxTokens

	jobID := registry.Submit(message, func(string) {})
	orch.Run(ctx, jobID, "ask", message)

	job, err := registry.Get(jobID)
	if err != nil {
		return err
	}
	for _, rec := range job.ToolLog {
		fmt.Fprintf(stdout, "[tool] %s: %s\n", rec.Tool, rec.Message)
	}
	if job.Error != "" {
		return errors.New(job.Error)
	}
	fmt.Fprintln(stdout, job.Response)
	return nil
}

func runVersion(stdout io.Writer) error {
	fmt.Fprintln(stdout, buildinfo.String())
	for _, k := range []string{"go_version", "os", "arch"} {
		fmt.Fprintf(stdout, "  %s: %s\n", k, buildinfo.Info()[k])
	}
	return nil
}
