package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/slot-booking/internal/app"
	"github.com/jwalitptl/slot-booking/internal/config"
	"github.com/jwalitptl/slot-booking/internal/repository"
	adminService "github.com/jwalitptl/slot-booking/internal/service/admin"
	"github.com/jwalitptl/slot-booking/internal/worker"
	"github.com/jwalitptl/slot-booking/pkg/logger"
	"github.com/jwalitptl/slot-booking/pkg/metrics"
)

func setupHealthCheck(port int, store repository.SlotRepository, reg *prometheus.Registry, logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	configFile := flag.String("config", "", "path to config.yml")
	flag.Parse()

	// The worker never issues tokens, so it skips full validation.
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New("slots_worker", reg)

	store, err := app.OpenStore(ctx, cfg.Database, m)
	if err != nil {
		logger.Fatal(err, "Failed to open slot store", "driver", cfg.Database.Driver)
	}
	defer store.Close()

	interval := cfg.Purge.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	adminSvc := adminService.NewService(store, logger, adminService.WithMetrics(m))
	purger := worker.NewPurgeWorker(adminSvc, interval, logger)

	healthSrv := setupHealthCheck(cfg.Purge.HealthPort, store, reg, logger)

	purger.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "health server forced to shutdown")
	}
	logger.Info("worker exited")
}
