// Package app wires configuration into the stores, services and notifiers
// shared by the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/slot-booking/internal/config"
	"github.com/jwalitptl/slot-booking/internal/email"
	"github.com/jwalitptl/slot-booking/internal/repository"
	"github.com/jwalitptl/slot-booking/internal/repository/jsonfile"
	"github.com/jwalitptl/slot-booking/internal/repository/sqlstore"
	"github.com/jwalitptl/slot-booking/internal/service/notification"
	"github.com/jwalitptl/slot-booking/pkg/logger"
	"github.com/jwalitptl/slot-booking/pkg/messaging"
	"github.com/jwalitptl/slot-booking/pkg/messaging/redis"
	"github.com/jwalitptl/slot-booking/pkg/metrics"
)

// NewLogger builds the application logger and installs it as the global
// zerolog logger used by the HTTP middleware.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.JSON,
	})
	log.Logger = l.ZL
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Level))
	return l
}

// OpenStore opens the slot store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, m *metrics.Metrics) (repository.SlotRepository, error) {
	switch cfg.Driver {
	case "jsonfile":
		store, err := jsonfile.Open(cfg.JSONPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open json store: %w", err)
		}
		return store, nil
	case "postgres", "sqlite3":
		db, err := sqlstore.NewDB(ctx, cfg.ToStoreConfig())
		if err != nil {
			return nil, err
		}
		var opts []sqlstore.Option
		if m != nil {
			opts = append(opts, sqlstore.WithMetrics(m))
		}
		return sqlstore.NewSlotRepository(db, opts...), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Notifier builds the handoff notifier with whichever channels are
// configured. The returned cleanup closes the broker, if any.
func Notifier(ctx context.Context, cfg *config.Config, m *metrics.Metrics, l *logger.Logger) (*notification.Service, func(), error) {
	loc := cfg.Location()
	var (
		channels []notification.Channel
		broker   messaging.Broker
	)

	if cfg.Redis.URL != "" {
		b, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), l.ZL)
		if err != nil {
			return nil, nil, err
		}
		broker = b
		channels = append(channels, notification.NewEventChannel(broker, cfg.Redis.Channel))
		l.Info("publishing claims to redis", "channel", cfg.Redis.Channel)
	}

	smtp := cfg.SMTP.ToEmailConfig()
	if smtp.Enabled() && cfg.SMTP.NotifyTo != "" {
		channels = append(channels, notification.NewEmailChannel(email.NewSMTPService(smtp), cfg.SMTP.NotifyTo, loc))
		l.Info("emailing claims", "to", cfg.SMTP.NotifyTo)
	}

	opts := []notification.Option{}
	if m != nil {
		opts = append(opts, notification.WithMetrics(m))
	}
	svc := notification.NewService(notification.NewWhatsApp(cfg.Booking.WhatsAppPhone, loc), l, channels, opts...)

	cleanup := func() {
		svc.Wait()
		if broker != nil {
			if err := broker.Close(); err != nil {
				l.Error(err, "failed to close broker")
			}
		}
	}
	return svc, cleanup, nil
}
