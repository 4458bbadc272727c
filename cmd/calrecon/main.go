package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"calrecon/internal/config"
	appLog "calrecon/internal/log"
	"calrecon/internal/runner"
	"calrecon/internal/web"
)

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	dryRun     bool
	serve      bool
	now        string
}

func main() {
	flags := parseFlags()

	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Error("failed to load env file", err, "path", flags.envFile)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	clock, err := newClock(flags.now, conf.Location())
	if err != nil {
		appLog.Error("invalid -now", err, "value", flags.now)
		os.Exit(2)
	}

	appLog.Info("calrecon starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"source_count", len(conf.Sources),
		"once", flags.once,
		"dry_run", flags.dryRun,
		"serve", flags.serve,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	r := runner.New(conf, nil)

	if flags.once {
		report, err := r.Run(ctx, clock(), flags.dryRun)
		if err != nil {
			appLog.Error("reconcile pass failed", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			appLog.Error("failed to write report", err)
			os.Exit(1)
		}
		if len(report.Errors) > 0 {
			os.Exit(1)
		}
		return
	}

	c, err := startScheduler(conf.RefreshCron, func() {
		if _, err := r.Run(ctx, clock(), flags.dryRun); err != nil {
			appLog.Error("scheduled pass failed", err)
		}
	})
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(2)
	}

	if flags.serve {
		go func() {
			if err := web.StartServer(ctx, conf, r); err != nil {
				appLog.Error("HTTP server stopped", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()

	// Let an in-flight pass finish writing before exiting.
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		appLog.Warn("timed out waiting for scheduled pass")
	}
	appLog.Info("calrecon exiting")
}

// startScheduler validates spec, runs one pass right away so a fresh start
// does not wait for the first tick, then runs pass on every tick.
func startScheduler(spec string, pass func()) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, pass); err != nil {
		return nil, err
	}
	pass()
	c.Start()
	appLog.Info("scheduler started", "refresh", spec)
	return c, nil
}

// newClock returns time.Now in loc, or a fixed instant when override is set.
func newClock(override string, loc *time.Location) (func() time.Time, error) {
	if override == "" {
		return func() time.Time { return time.Now().In(loc) }, nil
	}
	t, err := time.Parse(time.RFC3339, override)
	if err != nil {
		return nil, err
	}
	t = t.In(loc)
	return func() time.Time { return t }, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./calrecon.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional env file with credentials")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one reconcile pass, print the report and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Plan only; do not write reconciled calendars")
	flag.BoolVar(&cfg.serve, "serve", false, "Serve the HTTP API alongside the scheduler")
	flag.StringVar(&cfg.now, "now", "", "Pin the current time (RFC3339) for reproducible runs")

	flag.Parse()

	return cfg
}
