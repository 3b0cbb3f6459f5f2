package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/slot-booking/internal/app"
	"github.com/jwalitptl/slot-booking/internal/config"
	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/repository/migrations"
	"github.com/jwalitptl/slot-booking/internal/repository/sqlstore"
	adminService "github.com/jwalitptl/slot-booking/internal/service/admin"
	"github.com/jwalitptl/slot-booking/pkg/logger"
)

// NewMigrateCommand applies pending SQL migrations.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if cfg.Database.Driver == "jsonfile" {
				fmt.Fprintln(cmd.OutOrStdout(), "jsonfile store has no migrations")
				return nil
			}

			ctx := cmd.Context()
			storeCfg := cfg.Database.ToStoreConfig()
			storeCfg.Migrate = false
			db, err := sqlstore.NewDB(ctx, storeCfg)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := migrations.Up(ctx, db.DB, storeCfg.Driver)
			if err != nil {
				return err
			}
			version, err := migrations.Version(ctx, db.DB, storeCfg.Driver)
			if err != nil {
				return err
			}

			result := struct {
				Applied int   `json:"applied"`
				Version int64 `json:"version"`
			}{applied, version}
			return emit(cmd.OutOrStdout(), rootOpts, result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "applied %d migration(s), schema at version %d\n", applied, version)
				return err
			})
		},
	}
}

// NewListCommand prints slots from the configured store.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string
	var upcoming bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := model.SlotFilter{Status: model.SlotStatus(status)}
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			if upcoming {
				filter.From = time.Now().UTC()
			}

			cfg, _, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg.Database, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			slots, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			loc := cfg.Location()
			return emit(cmd.OutOrStdout(), rootOpts, slots, func(w io.Writer) error {
				for _, s := range slots {
					ref := "-"
					if s.ReferenceID != nil {
						ref = *s.ReferenceID
					}
					if _, err := fmt.Fprintf(w, "%s  %s  %-7s  %s\n", s.ID, s.StartTime.In(loc).Format("2006-01-02 15:04"), s.Status, ref); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only slots with this status (open|pending|booked)")
	cmd.Flags().BoolVar(&upcoming, "upcoming", false, "only slots starting from now")
	return cmd
}

// NewPurgeCommand deletes every slot that has already ended.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete slots whose end time has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			return runPurge(cmd.Context(), cmd.OutOrStdout(), rootOpts, cfg.Database, log)
		},
	}
}

func runPurge(ctx context.Context, w io.Writer, opts *RootOptions, dbCfg config.DatabaseConfig, log *logger.Logger) error {
	store, err := app.OpenStore(ctx, dbCfg, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := adminService.NewService(store, log).PurgePast(ctx)
	if err != nil {
		return err
	}
	result := struct {
		Removed int64 `json:"removed"`
	}{removed}
	return emit(w, opts, result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "removed %d past slot(s)\n", removed)
		return err
	})
}
