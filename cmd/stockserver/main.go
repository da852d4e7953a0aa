package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/stockserver/internal/admission"
	"github.com/efreitasn/stockserver/internal/config"
	"github.com/efreitasn/stockserver/internal/feed"
	"github.com/efreitasn/stockserver/internal/handler"
	"github.com/efreitasn/stockserver/internal/monitor"
	"github.com/efreitasn/stockserver/internal/server"
	"github.com/efreitasn/stockserver/internal/service"
	"github.com/efreitasn/stockserver/internal/stats"
	"github.com/efreitasn/stockserver/internal/store"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [port] [maxWorkers]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load(*configPath, flag.Args())
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level. Stdout is reserved for the
	// port banner.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ledger and transaction counters.
	ledger := store.NewLedgerStore()
	memStats := stats.NewMemoryRecorder()
	recorders := stats.Multi{memStats}

	// Redis writes happen off the worker path so a slow or unreachable
	// Redis never holds an admission slot.
	var redisStats *stats.Async
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		redisStats = stats.NewAsync(stats.NewRedisRecorder(rdb, stats.WithPrefix(cfg.RedisPrefix)), 0, logger)
		recorders = append(recorders, redisStats)
		logger.Info("recording stats to redis", slog.String("addr", cfg.RedisAddr))
	}

	hub := feed.NewHub(cfg.FeedBuffer, logger)
	defer hub.Close()

	tradeSvc := service.NewTradeService(ledger, recorders, hub, logger)
	ctrl := admission.NewController(cfg.MaxWorkers)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		logger.Error("failed to listen", slog.Int("port", cfg.Port), slog.String("error", err.Error()))
		os.Exit(1)
	}
	srv := server.New(ln, ctrl, tradeSvc, logger, server.Options{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		AcceptRate:   cfg.AcceptRate,
		AcceptBurst:  cfg.AcceptBurst,
	})
	port := srv.Addr().(*net.TCPAddr).Port
	fmt.Printf("Listening for commands on port %d\n", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter := monitor.NewReporter(cfg.ReportInterval, ctrl, ledger, logger)
	reporter.Start(ctx)

	// Ops HTTP surface is optional.
	var opsSrv *http.Server
	if cfg.OpsAddr != "" {
		opsSrv = &http.Server{
			Addr:    cfg.OpsAddr,
			Handler: handler.NewRouter(ledger, ctrl, memStats, hub, logger),
		}
		go func() {
			logger.Info("ops server starting", slog.String("addr", cfg.OpsAddr))
			if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server error", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}()
	}

	served := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.Int("port", port),
			slog.Int("max_workers", cfg.MaxWorkers),
		)
		served <- srv.Serve(ctx)
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-served:
		if err != nil && !errors.Is(err, server.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown: stop accepting, wake parked buys, drain workers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if opsSrv != nil {
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown error", slog.String("error", err.Error()))
		}
	}
	if redisStats != nil {
		if err := redisStats.Close(shutdownCtx); err != nil {
			logger.Warn("redis stats not flushed", slog.String("error", err.Error()))
		}
		if n := redisStats.Dropped(); n > 0 {
			logger.Warn("redis stats events dropped", slog.Int64("count", n))
		}
	}
	cancel()

	logger.Info("server stopped", slog.Int("peak_workers", ctrl.Peak()))
}
