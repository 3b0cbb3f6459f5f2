package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/slot-booking/internal/service/notification"
	"github.com/jwalitptl/slot-booking/pkg/messaging"
	"github.com/jwalitptl/slot-booking/pkg/messaging/redis"
)

// NewEventsCommand tails slot.claimed events from Redis.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print slot.claimed events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return errors.New("redis.url is not configured")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log.ZL)
			if err != nil {
				return err
			}
			defer broker.Close()

			return tailEvents(ctx, broker, cfg.Redis.Channel, limit, cmd.OutOrStdout(), rootOpts)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "stop after this many events (0 means run until interrupted)")
	return cmd
}

type claimedMessage struct {
	Type    string                    `json:"type"`
	Payload notification.SlotClaimed `json:"payload"`
}

func tailEvents(ctx context.Context, broker messaging.Broker, channel string, limit int, w io.Writer, opts *RootOptions) error {
	if channel == "" {
		channel = notification.EventSlotClaimed
	}
	messages, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	seen := 0
	for raw := range messages {
		if opts.Format == "json" {
			if _, err := fmt.Fprintln(w, string(raw)); err != nil {
				return err
			}
		} else {
			var msg claimedMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				fmt.Fprintf(w, "unreadable event: %s\n", raw)
				continue
			}
			p := msg.Payload
			fmt.Fprintf(w, "%s  %s  slot=%s  %s  %s\n",
				p.StartTime.Format("2006-01-02 15:04Z07:00"), p.ReferenceID, p.SlotID, p.Status, p.PatientName)
		}

		seen++
		if limit > 0 && seen >= limit {
			return nil
		}
	}
	return nil
}
