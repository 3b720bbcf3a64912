package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/weightpack"
	"github.com/hupe1980/weightpack/internal/config"
	"github.com/hupe1980/weightpack/internal/kernel"
	"github.com/hupe1980/weightpack/prommetrics"
	"github.com/hupe1980/weightpack/resource"
	"github.com/hupe1980/weightpack/storage"
	"github.com/hupe1980/weightpack/workerpool"
)

type globalFlags struct {
	configPath string
	storePath  string
	filename   string
	workers    int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "weightpack",
		Short:         "Compress, inspect and verify weight cache files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&g.storePath, "store", "", "local store directory (overrides storage.path)")
	pf.StringVarP(&g.filename, "file", "f", "", "cache file name (overrides cache.filename)")
	pf.IntVar(&g.workers, "workers", -1, "worker pool size, 0 for GOMAXPROCS (overrides pool.workers)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newCompressCmd(&g),
		newInspectCmd(&g),
		newVerifyCmd(&g),
	)
	return root
}

// loadConfig resolves the configuration: file, then environment, then flags.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}

	if g.storePath != "" {
		cfg.Storage.Backend = "local"
		cfg.Storage.Path = g.storePath
	}
	if g.filename != "" {
		cfg.Cache.Filename = g.filename
	}
	if g.workers >= 0 {
		cfg.Pool.Workers = g.workers
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds everything a subcommand needs.
type app struct {
	cfg     *config.Config
	logger  *weightpack.Logger
	pool    *workerpool.Pool
	rc      *resource.Controller
	store   storage.Store
	metrics weightpack.MetricsObserver
	server  *http.Server
}

func newApp(ctx context.Context, g *globalFlags) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: weightpack.NoopMetricsObserver{},
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.Resources.MemoryLimitMB << 20,
			MaxConcurrentIO:    cfg.Resources.MaxConcurrentIO,
			IOLimitBytesPerSec: cfg.Resources.IOLimitMBPerSec << 20,
		}),
	}

	if a.store, err = openStore(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	if cfg.Metrics.Listen != "" {
		if err := a.serveMetrics(cfg.Metrics.Listen); err != nil {
			return nil, err
		}
	}

	a.pool = workerpool.New(cfg.Pool.Workers)
	logger.Debug("runtime ready",
		"workers", a.pool.Size(),
		"kernel", kernel.ActiveISA().String(),
		"kernel_override", kernel.IsOverridden(),
	)
	return a, nil
}

func newLogger(cfg config.LogConfig) (*weightpack.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if cfg.Format == "json" {
		return weightpack.NewJSONLogger(level), nil
	}
	return weightpack.NewTextLogger(level), nil
}

func (a *app) serveMetrics(addr string) error {
	reg := prometheus.NewRegistry()
	obs, err := prommetrics.New(reg)
	if err != nil {
		return err
	}
	a.metrics = obs

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

func (a *app) options() []weightpack.Option {
	opts := []weightpack.Option{
		weightpack.WithLogger(a.logger),
		weightpack.WithMetrics(a.metrics),
		weightpack.WithResourceController(a.rc),
	}
	if a.cfg.Cache.Checksums {
		opts = append(opts, weightpack.WithChecksums())
	}
	if a.cfg.Compress.Stats {
		opts = append(opts, weightpack.WithStats())
	}
	return opts
}

func (a *app) Close() {
	a.pool.Close()
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
}
