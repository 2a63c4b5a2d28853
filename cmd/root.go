// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/api"
	"github.com/JakeFAU/entity-harvester/internal/app"
	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/config"
	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
	"github.com/JakeFAU/entity-harvester/internal/logging"
	"github.com/JakeFAU/entity-harvester/internal/report"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the set of services commands use. *app.App satisfies it; tests
// inject a mock.
type App interface {
	Close(ctx context.Context) error
	Logger() *zap.Logger
	Config() config.Config
	Registry() *harvest.Registry
	Harvest(ctx context.Context, entityName string, ids []string) (report.Batch, error)
	Load(ctx context.Context, entityName string, category entity.Category, latestOnly bool) ([]artifact.Artifact, error)
	Ingest(ctx context.Context, entityName, path string) (app.Ingested, error)
	Server() *api.Server
}

// Factory builds the App from loaded configuration.
type Factory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)

func defaultFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command with its subcommands. The returned
// func releases the app and the global logger; cobra skips post-run hooks
// when a command fails, so callers run it after Execute as well.
func newRootCmd(factory Factory) (*cobra.Command, func()) {
	var (
		cfgFile     string
		restore     func()
		logger      *zap.Logger
		appInstance App
		once        sync.Once
	)
	shutdown := func() {
		once.Do(func() {
			if appInstance != nil {
				if err := appInstance.Close(context.Background()); err != nil {
					appInstance.Logger().Warn("shutdown incomplete", zap.Error(err))
				}
			}
			if err := logging.Sync(logger); err != nil {
				fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", err)
			}
			if restore != nil {
				restore()
			}
		})
	}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests public facts about a business entity into versioned artifacts.",
		Long: `harvester collects news, registry, industry and social data about a
named company from public sources, paces every request per destination,
and stores the results as timestamped artifacts per entity and category.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, restore, err = logging.Install(cfg.Logging.Development)
			if err != nil {
				return err
			}
			appInstance, err = factory(cmd.Context(), cfg, logger)
			if err != nil {
				appInstance = nil
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			shutdown()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); HARVESTER_* env vars override it")

	cmd.AddCommand(
		newHarvestCmd(),
		newLoadCmd(),
		newHarvestersCmd(),
		newIngestCmd(),
		newServeCmd(),
	)
	return cmd, shutdown
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, shutdown := newRootCmd(defaultFactory)
	err := root.ExecuteContext(ctx)
	shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
