package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/wippyai/engine-bridge/bridge"
	"github.com/wippyai/engine-bridge/config"
	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/loader"
	"github.com/wippyai/engine-bridge/metrics"
)

// app is the state shared by all subcommands, set up in PersistentPreRunE.
type app struct {
	cfgFile     string
	envFile     string
	logLevel    string
	metricsAddr string

	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Collector
	server  *http.Server
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hwbridge",
		Short: "Engine bridge CLI: load, inspect, and drive game engine modules",
		Long: `hwbridge loads a game engine module, checks its protocol version,
and drives an engine session: config frames, barriers, ticks, previews,
and the engine's asynchronous events.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ~/.hwbridge/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	cmd.AddCommand(
		newInspectCmd(a),
		newRunCmd(a),
		newConsoleCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	err := a.rootCmd().ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	path := a.cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := cfg.Level()
	log, err := newLogger(level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.setLogger(log)

	a.metrics = metrics.NewCollector("")
	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.MetricsAddr); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// setLogger installs log in every package that logs.
func (a *app) setLogger(log *zap.Logger) {
	a.log = log
	engine.SetLogger(log.Named("engine"))
	loader.SetLogger(log.Named("loader"))
	bridge.SetLogger(log.Named("bridge"))
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// enginePath returns the engine argument, falling back to the configured
// engine.
func (a *app) enginePath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if a.cfg.Engine != "" {
		return a.cfg.Engine, nil
	}
	return "", fmt.Errorf("no engine module given: pass a path or set engine in the config")
}

func (a *app) opener() *engine.Opener {
	return engine.NewOpener(&engine.Config{
		MemoryLimitPages: a.cfg.MemoryLimitPages,
		EnableWASI:       a.cfg.WASI,
		Observer:         a.metrics.HandleObserver(),
	})
}

func (a *app) loaderOptions() []loader.Option {
	opts := []loader.Option{loader.WithLogger(a.log.Named("loader"))}
	if a.cfg.ExpectedVersion != 0 {
		opts = append(opts, loader.WithExpectedVersion(a.cfg.ExpectedVersion))
	}
	return opts
}

func (a *app) bridgeOptions() []bridge.Option {
	opts := []bridge.Option{
		bridge.WithLogger(a.log.Named("bridge")),
		bridge.WithMetrics(a.metrics),
		bridge.WithPreviewTimeout(a.cfg.PreviewTimeout),
		bridge.WithQueueHint(a.cfg.QueueHint),
		bridge.WithLoaderOptions(a.loaderOptions()...),
	}
	if rl := a.cfg.RateLimit; rl.FramesPerSecond > 0 {
		opts = append(opts, bridge.WithRateLimit(rate.Limit(rl.FramesPerSecond), rl.Burst))
	}
	return opts
}

// openBridge loads the engine and starts a session.
func (a *app) openBridge(ctx context.Context, path string) (*bridge.Bridge, error) {
	b, err := bridge.Open(ctx, a.opener(), path, a.bridgeOptions()...)
	if err != nil {
		return nil, err
	}
	if err := b.Start(ctx); err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	return b, nil
}
