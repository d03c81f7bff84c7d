package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/artistscloud/a9ents-sub000/pkg/cmd"
	"github.com/artistscloud/a9ents-sub000/pkg/engine"
	"github.com/artistscloud/a9ents-sub000/pkg/log"
	"github.com/artistscloud/a9ents-sub000/pkg/otelhelper"
	"github.com/artistscloud/a9ents-sub000/pkg/triggers/manager"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "a9ents-api",
		Usage:                 "Create, manage and run workflow graphs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for graph and run storage",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing a9ents API")

			reg := cmd.NewRegistry(logger)

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			runs, err := cmd.NewRunStore(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger, "a9ents-api")
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			engineOpts := []engine.Option{engine.WithPublisher(eventBus)}

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				tracer, err := otelhelper.NewTracer(ctx, "a9ents-api")
				if err != nil {
					return err
				}

				engineOpts = append(engineOpts, engine.WithTracer(tracer))
			}

			eng := engine.New(logger, reg, runs, engineOpts...)

			triggerManager := manager.NewManager(logger, store, eng)
			if err := triggerManager.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start trigger manager", "error", err)
			}

			defer func() {
				if err := triggerManager.Stop(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to stop trigger manager", "error", err)
				}
			}()

			api := NewAPI(logger, store, reg, eng, runs)

			return api.Start(command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
