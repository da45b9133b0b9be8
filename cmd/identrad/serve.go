package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identra/identra/pkg/logging"
	"github.com/identra/identra/pkg/logstore"
	"github.com/identra/identra/pkg/natsbus"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/runner"
	"github.com/identra/identra/pkg/sqlite"
	"github.com/identra/identra/pkg/telemetry"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the event store, projections and event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config) error {
	logger := logging.New(cfg.Log)

	provider, err := telemetry.NewProvider("identrad")
	if err != nil {
		return err
	}
	defer provider.Shutdown(context.Background())
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return err
	}

	var embedded *natsbus.EmbeddedServer
	var bus *natsbus.Bus
	if cfg.NATS.Enabled {
		busConfig := natsbus.DefaultConfig()
		busConfig.Logger = logger
		if cfg.NATS.Embedded {
			embedded, err = natsbus.StartEmbeddedServer(cfg.NATS.StoreDir)
			if err != nil {
				return fmt.Errorf("failed to start embedded NATS: %w", err)
			}
			defer embedded.Shutdown()
			busConfig.URL = embedded.URL()
		} else if cfg.NATS.URL != "" {
			busConfig.URL = cfg.NATS.URL
		}
		bus, err = natsbus.New(busConfig)
		if err != nil {
			return err
		}
		defer bus.Close()
	}

	storeOpts := []sqlite.EventStoreOption{
		sqlite.WithDSN(cfg.Database.Path),
		sqlite.WithMaxOpenConns(cfg.Database.MaxOpenConns),
		sqlite.WithMaxIdleConns(cfg.Database.MaxIdleConns),
	}
	if bus != nil {
		storeOpts = append(storeOpts, sqlite.WithPublisher(bus.Publisher()))
	}
	es, err := sqlite.NewEventStore(storeOpts...)
	if err != nil {
		return err
	}
	defer es.Close()

	db := es.DB()
	scheduler := projection.NewScheduler(projection.Config{
		DB:               db,
		EventStore:       es,
		States:           sqlite.NewProjectionStateStore(db),
		FailedStore:      sqlite.NewFailedEventStore(db),
		Logger:           logger,
		Metrics:          metrics,
		BatchSize:        cfg.Projections.BatchSize,
		PollInterval:     cfg.Projections.PollInterval,
		MaxErrors:        cfg.Projections.MaxErrors,
		TransientRetries: cfg.Projections.TransientRetries,
		EnableLocking:    cfg.Projections.EnableLocking,
		LockDir:          cfg.Projections.LockDir,
	})
	for _, h := range projection.DefaultHandlers() {
		if err := scheduler.Register(h); err != nil {
			return err
		}
	}

	logs := logstore.NewService(db, logstore.EmitterConfig{
		MaxBulkSize:  cfg.Logstore.MaxBulkSize,
		MaxFrequency: cfg.Logstore.MaxFrequency,
	}, logger)

	services := []runner.Service{
		runner.ServiceFunc{
			ServiceName: "projections",
			OnStart:     scheduler.StartAll,
			OnStop: func(ctx context.Context) error {
				scheduler.StopAll()
				return nil
			},
		},
		runner.ServiceFunc{
			ServiceName: "logstore",
			OnStop: func(ctx context.Context) error {
				logs.Close()
				return nil
			},
		},
	}

	return runner.New(services, runner.WithLogger(logger)).Run(ctx)
}
