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
	_ "time/tzdata"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/slot-booking/internal/app"
	"github.com/jwalitptl/slot-booking/internal/config"
	authHandler "github.com/jwalitptl/slot-booking/internal/handler/auth"
	"github.com/jwalitptl/slot-booking/internal/handler/health"
	"github.com/jwalitptl/slot-booking/internal/handler/prometheus"
	"github.com/jwalitptl/slot-booking/internal/handler/slot"
	"github.com/jwalitptl/slot-booking/internal/middleware"
	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/router"
	adminService "github.com/jwalitptl/slot-booking/internal/service/admin"
	authService "github.com/jwalitptl/slot-booking/internal/service/auth"
	bookingService "github.com/jwalitptl/slot-booking/internal/service/booking"
	"github.com/jwalitptl/slot-booking/internal/worker"
	"github.com/jwalitptl/slot-booking/pkg/auth"
	"github.com/jwalitptl/slot-booking/pkg/metrics"
)

func main() {
	configFile := flag.String("config", "", "path to config.yml")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics share the registry served on /metrics
	promH := prometheus.New("slots")
	m := metrics.New("slots", promH.Registry())

	// Initialize store
	store, err := app.OpenStore(ctx, cfg.Database, m)
	if err != nil {
		logger.Fatal(err, "failed to open slot store", "driver", cfg.Database.Driver)
	}
	defer store.Close()

	// Initialize notifier
	notifier, closeNotifier, err := app.Notifier(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal(err, "failed to set up notifications")
	}

	// Initialize services
	jwtSvc, err := auth.NewJWTService(auth.Config{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.TTL,
	}, nil)
	if err != nil {
		logger.Fatal(err, "failed to set up tokens")
	}
	authSvc := authService.NewService(authService.Config{
		AdminEmail:        cfg.Admin.Email,
		AdminPasswordHash: cfg.Admin.PasswordHash,
	}, jwtSvc, auth.NewBcryptHasher(auth.DefaultBcryptCost), logger)

	bookingSvc, err := bookingService.NewService(store, notifier, logger, bookingService.Config{
		ClaimStatus:     model.SlotStatus(cfg.Booking.ClaimStatus),
		ReferencePrefix: cfg.Booking.ReferencePrefix,
	}, bookingService.WithMetrics(m))
	if err != nil {
		logger.Fatal(err, "failed to set up booking")
	}
	adminSvc := adminService.NewService(store, logger,
		adminService.WithMetrics(m),
		adminService.WithLocation(cfg.Location()),
	)

	// Setup router
	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		authHandler.NewHandler(authSvc),
		slot.NewHandler(store, adminSvc, bookingSvc, notifier),
		health.NewHandler(store),
		promH,
		router.RouterConfig{
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			ClaimsPerMinute: cfg.RateLimit.ClaimsPerMinute,
			ClaimBurst:      cfg.RateLimit.Burst,
			RequestTimeout:  cfg.Server.WriteTimeout,
			HSTS:            cfg.Env == "production",
			ReleaseMode:     cfg.Env == "production",
		},
	)
	r.Setup()

	if cfg.Purge.Enabled {
		go worker.NewPurgeWorker(adminSvc, cfg.Purge.Interval, logger).Start(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
	}

	// Let in-flight handoffs finish before the broker closes
	closeNotifier()
	logger.Info("server exited properly")
}
