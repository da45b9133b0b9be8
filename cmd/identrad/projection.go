package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/logging"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/sqlite"
)

func newProjectionCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projection",
		Short: "Inspect and rebuild projections",
	}
	cmd.AddCommand(
		newProjectionListCommand(configPath),
		newProjectionRebuildCommand(configPath),
		newProjectionFailedCommand(configPath),
	)
	return cmd
}

func newProjectionListCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the state of every projection",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, cleanup, err := offlineScheduler(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, h := range projection.DefaultHandlers() {
				state, err := scheduler.State(cmd.Context(), h.Name())
				if errs.IsNotFound(err) {
					fmt.Fprintf(cmd.OutOrStdout(), "%-30s never started\n", h.Name())
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s %-12s position=%s errors=%d\n",
					state.Name, state.Status, state.Position.Global.String(), state.ErrorCount)
			}
			return nil
		},
	}
}

func newProjectionRebuildCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <name>",
		Short: "Truncate a projection and replay it from position zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, cleanup, err := offlineScheduler(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := scheduler.Rebuild(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "projection %s rebuilt\n", args[0])
			return nil
		},
	}
}

func newProjectionFailedCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "failed <name>",
		Short: "List the failed events of a projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, cleanup, err := offlineScheduler(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			failures, err := scheduler.FailedEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, f := range failures {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s retries=%d: %s\n",
					f.Position.Global.String(), f.EventType, f.AggregateID, f.RetryCount, f.Error)
			}
			return nil
		},
	}
}

// offlineScheduler builds a scheduler with all handlers registered but no
// workers started, for one-shot administrative operations.
func offlineScheduler(configPath string) (*projection.Scheduler, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log)

	es, err := sqlite.NewEventStore(sqlite.WithDSN(cfg.Database.Path))
	if err != nil {
		return nil, nil, err
	}

	db := es.DB()
	scheduler := projection.NewScheduler(projection.Config{
		DB:          db,
		EventStore:  es,
		States:      sqlite.NewProjectionStateStore(db),
		FailedStore: sqlite.NewFailedEventStore(db),
		Logger:      logger,
	})
	for _, h := range projection.DefaultHandlers() {
		if err := scheduler.Register(h); err != nil {
			es.Close()
			return nil, nil, err
		}
	}
	return scheduler, func() { es.Close() }, nil
}
