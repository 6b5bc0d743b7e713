package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	appconfig "github.com/mrbanana/devproxy/internal/config"
	"github.com/mrbanana/devproxy/internal/health"
	"github.com/mrbanana/devproxy/internal/proxy"
	"github.com/mrbanana/devproxy/internal/server"
	appws "github.com/mrbanana/devproxy/internal/websocket"
)

const (
	defaultAddr     = ":8080"
	defaultBackend  = "http://localhost:8000"
	defaultFrontend = "http://localhost:5173"
)

// Version is injected at build time using ldflags.
var Version = "(unknown)"

// config holds all proxy configuration resolved from flags and environment.
type config struct {
	ShowVersion    bool
	ListenAddr     string
	Backend        string
	Frontend       string
	StaticDir      string
	ConfigFile     string
	LogFormat      string
	LogLevel       string
	HealthInterval time.Duration
}

func main() {
	// Quick check for version flag before full config loading
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			fmt.Printf("devproxy version %s\n", Version)
			return
		}
	}

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses flags and environment variables with precedence: Flag > Env > Default.
func loadConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("devproxy", flag.ContinueOnError)

	cfg := config{}
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")
	fs.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", defaultAddr), "listen address")
	fs.StringVar(&cfg.Backend, "backend", getEnv("BACKEND", defaultBackend), "backend API base URL")
	fs.StringVar(&cfg.Frontend, "frontend", getEnv("FRONTEND", defaultFrontend), "front-end dev server base URL")
	fs.StringVar(&cfg.StaticDir, "static-dir", getEnv("STATIC_DIR", ""), "serve a built front-end bundle from this directory instead of proxying")
	fs.StringVar(&cfg.ConfigFile, "config", getEnv("CONFIG_FILE", ""), "path to YAML config file for routes and overrides")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "log format (json or text)")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	healthIntervalStr := getEnv("HEALTH_INTERVAL", "10s")
	fs.StringVar(&healthIntervalStr, "health-interval", healthIntervalStr, "backend probe interval (0 disables probing)")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	interval, err := time.ParseDuration(healthIntervalStr)
	if err != nil {
		return config{}, fmt.Errorf("invalid health interval %q: %w", healthIntervalStr, err)
	}
	if interval != 0 && interval < time.Second {
		return config{}, fmt.Errorf("health interval must be 0 or at least 1s, got %q", healthIntervalStr)
	}
	cfg.HealthInterval = interval

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return config{}, fmt.Errorf("unsupported log format %q: must be \"json\" or \"text\"", cfg.LogFormat)
	}

	for _, target := range []struct{ name, value string }{
		{"backend", cfg.Backend},
		{"frontend", cfg.Frontend},
	} {
		u, err := url.Parse(target.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return config{}, fmt.Errorf("invalid %s URL %q", target.name, target.value)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func setupLogger(format, level string) *slog.Logger {
	return setupLoggerWithWriter(format, level, os.Stdout)
}

func setupLoggerWithWriter(format, level string, writer io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler)
}

// effectiveRoutes resolves the route table: the config file's routes when it
// declares any, otherwise the default API + WebSocket pair on the backend.
func effectiveRoutes(appCfg *appconfig.Config, backend string) []appconfig.Route {
	if appCfg != nil && len(appCfg.Routes) > 0 {
		return appCfg.Routes
	}
	return appconfig.DefaultRoutes(backend)
}

// probeTargets derives one probe URL per distinct route target.
func probeTargets(routes []appconfig.Route, healthPath string) []string {
	if healthPath == "" {
		healthPath = "/"
	}
	seen := make(map[string]struct{}, len(routes))
	targets := make([]string, 0, len(routes))
	for _, rt := range routes {
		base := strings.TrimSuffix(rt.Target, "/")
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		targets = append(targets, base+healthPath)
	}
	return targets
}

// run starts the proxy and handles graceful shutdown.
func run(ctx context.Context, cfg config) error {
	logger := setupLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("Starting devproxy", "version", Version)

	// Load optional YAML config for routes and frontend overrides
	var lastAppCfg *appconfig.Config
	if cfg.ConfigFile != "" {
		appCfg, configErrs := appconfig.Load(cfg.ConfigFile)
		for _, e := range configErrs {
			if appCfg == nil {
				slog.Error("Config parse failed, continuing with defaults", "error", e)
			} else {
				slog.Warn("Config validation warning", "error", e)
			}
		}
		if appCfg != nil {
			slog.Info("Config loaded", "routes", len(appCfg.Routes))
			if appCfg.Listen != "" && cfg.ListenAddr == defaultAddr {
				cfg.ListenAddr = appCfg.Listen
			}
		}
		lastAppCfg = appCfg
	}

	filter := proxy.NewFilter(logger)
	registry := appws.NewRegistry(logger)

	build := func(rt appconfig.Route) (http.Handler, error) {
		if rt.WebSocket {
			return proxy.NewWSProxy(rt.Target, filter, registry, logger)
		}
		return proxy.NewReverseProxy(rt.Target, logger)
	}

	fallback, err := frontendHandler(cfg, lastAppCfg, logger)
	if err != nil {
		return err
	}

	router := server.NewRouter(fallback, build)
	routes := effectiveRoutes(lastAppCfg, cfg.Backend)
	for _, e := range router.SetRoutes(routes) {
		slog.Warn("route skipped", "error", e)
	}
	slog.Info("Routes active", "count", router.Len())

	watcherCtx, watcherCancel := context.WithCancel(ctx)
	defer watcherCancel()

	// Start config file watcher for hot-reload of the route table
	if cfg.ConfigFile != "" {
		configWatcher := appconfig.NewWatcher(cfg.ConfigFile, func(newCfg *appconfig.Config, errs []error) {
			for _, e := range errs {
				if newCfg == nil {
					slog.Error("Config reload parse failed", "error", e)
				} else {
					slog.Warn("Config reload validation warning", "error", e)
				}
			}
			if newCfg == nil {
				// Keep the last-known-good route table when reload parsing fails.
				return
			}
			newRoutes := effectiveRoutes(newCfg, cfg.Backend)
			for _, e := range router.SetRoutes(newRoutes) {
				slog.Warn("route skipped", "error", e)
			}
			slog.Info("Routes reloaded", "count", router.Len())
			lastAppCfg = newCfg
		}, logger)
		go func() {
			if err := configWatcher.Run(watcherCtx); err != nil && watcherCtx.Err() == nil {
				slog.Warn("config watcher stopped with error", "error", err)
			}
		}()
	}

	// Start the backend reachability poller
	if cfg.HealthInterval > 0 {
		healthPath := ""
		interval := cfg.HealthInterval
		if lastAppCfg != nil {
			healthPath = lastAppCfg.Health.Path
			if lastAppCfg.Health.Interval != "" {
				if d, err := time.ParseDuration(lastAppCfg.Health.Interval); err == nil {
					interval = d
				}
			}
		}
		probeClient := &http.Client{Timeout: 5 * time.Second}
		poller := health.NewPoller(probeTargets(routes, healthPath), probeClient, interval, logger)
		go poller.Run(ctx)
	}

	handler := server.AccessLog(logger, server.ForwardHeaders(router))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	// Channel to catch server errors
	serverError := make(chan error, 1)

	go func() {
		slog.Info("Listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverError <- err
		}
	}()

	// Wait for interruption or server error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down gracefully...")
		watcherCancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.CloseAll(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		slog.Info("Connections drained")
		slog.Info("Server stopped")
	case err := <-serverError:
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// frontendHandler picks the fallback for traffic no route claims: the
// front-end dev server in proxy mode, a built bundle in static mode.
func frontendHandler(cfg config, appCfg *appconfig.Config, logger *slog.Logger) (http.Handler, error) {
	mode := appconfig.FrontendProxy
	target := cfg.Frontend
	dir := cfg.StaticDir

	if appCfg != nil {
		if appCfg.Frontend.Mode != "" {
			mode = appCfg.Frontend.Mode
		}
		if appCfg.Frontend.Target != "" {
			target = appCfg.Frontend.Target
		}
		if appCfg.Frontend.Dir != "" {
			dir = appCfg.Frontend.Dir
		}
	}
	if cfg.StaticDir != "" {
		mode = appconfig.FrontendStatic
	}

	if mode == appconfig.FrontendStatic {
		spa, err := server.NewSPAHandler(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create static handler: %w", err)
		}
		slog.Info("Serving front-end bundle", "dir", dir)
		return spa, nil
	}

	h, err := proxy.NewReverseProxy(target, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create front-end proxy: %w", err)
	}
	slog.Info("Proxying front-end", "target", target)
	return h, nil
}
