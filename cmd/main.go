package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tcplb/config"
	"tcplb/internal/backend"
	"tcplb/internal/healthcheck"
	"tcplb/internal/loadbalancer"
	"tcplb/internal/metrics"
	"tcplb/internal/proxy"
	"tcplb/internal/strategy"
	"tcplb/internal/tcpserver"
	"tcplb/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backends := initializeBackends(cfg, log)

	strat := createStrategy(log, cfg.Strategy.Algorithm)
	lb := loadbalancer.NewLoadBalancer(strat)

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	monitor := healthcheck.New(backends, healthcheck.Config{
		Interval: cfg.HealthCheckInterval(),
		Timeout:  cfg.HealthCheckTimeout(),
	}, log)
	monitor.Start(ctx)

	forwarder := proxy.NewForwarder(log, lb, backends, collector, cfg.DialTimeout())

	srv, err := tcpserver.New(cfg.Server.Address, cfg.Forwarding.MaxSessions, log, forwarder.Handle)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.Address, collector, cfg.Strategy.Algorithm, log)
	}

	log.Info("Starting load balancer",
		slog.String("address", cfg.Server.Address),
		slog.String("algorithm", cfg.Strategy.Algorithm),
		slog.Int("backends", len(backends)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start(ctx)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error running load balancer", slog.Any("err", err))
			exitCode = 1
		}
	}

	monitor.Stop()
	cancel()
	collector.Wait()

	reportStats(log, cfg.Strategy.Algorithm, backends, collector)
	os.Exit(exitCode)
}

// initializeBackends builds the runtime backend registry from the static
// configuration, preserving configuration order.
func initializeBackends(cfg *config.Config, log *slog.Logger) []*backend.Backend {
	backends := make([]*backend.Backend, 0, len(cfg.Backends))

	for _, bc := range cfg.Backends {
		b := backend.New(bc.Host, bc.Port, bc.Name)
		backends = append(backends, b)
		log.Info("Added backend", slog.String("backend", b.String()))
	}

	return backends
}

func createStrategy(log *slog.Logger, algorithm string) strategy.Strategy {
	switch algorithm {
	case config.AlgorithmRoundRobin:
		return strategy.NewRoundRobinStrategy()
	case config.AlgorithmLeastConnections:
		return strategy.NewLeastConnStrategy()
	default:
		log.Warn("Unknown algorithm, defaulting to round-robin", slog.String("requested", algorithm))
		return strategy.NewRoundRobinStrategy()
	}
}

// startMetricsServer exposes the collector snapshot as JSON on a side
// listener for debugging.
func startMetricsServer(ctx context.Context, addr string, collector *metrics.Collector, algorithm string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", collector.Handler(algorithm))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("Metrics listener ready", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics listener failed", slog.Any("err", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// reportStats logs the final per-backend statistics: algorithm, health,
// lifetime requests, active connections and relayed byte totals.
func reportStats(log *slog.Logger, algorithm string, backends []*backend.Backend, collector *metrics.Collector) {
	snap := collector.Snapshot(algorithm)

	healthyCount := 0
	for _, b := range backends {
		if b.IsHealthy() {
			healthyCount++
		}
	}

	log.Info("Load balancer statistics",
		slog.String("algorithm", algorithm),
		slog.Int("total_backends", len(backends)),
		slog.Int("healthy_backends", healthyCount),
		slog.Int64("total_sessions", snap.TotalSessions),
		slog.Int64("no_backend_drops", snap.NoBackendDrops),
		slog.Duration("uptime", snap.Uptime))

	for _, b := range backends {
		bm := snap.Backends[b.Name()]
		log.Info("Backend statistics",
			slog.String("backend", b.String()),
			slog.Bool("healthy", b.IsHealthy()),
			slog.Int64("requests", b.TotalRequests()),
			slog.Int("active_connections", b.ActiveConnections()),
			slog.Int64("bytes_to_backend", bm.BytesToBackend),
			slog.Int64("bytes_to_client", bm.BytesToClient),
			slog.Int64("dial_failures", bm.DialFailures))
	}
}
