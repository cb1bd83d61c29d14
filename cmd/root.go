// Package cmd defines the grant-discovery command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/app"
	"github.com/JakeFAU/grant-discovery/internal/config"
	"github.com/JakeFAU/grant-discovery/internal/logging"
)

// runtime carries what the root command loads for its subcommands.
type runtime struct {
	configPath string
	dev        bool

	cfg    config.Config
	logger *zap.Logger
	app    *app.App
}

// newApp is the application factory, replaceable in tests.
var newApp = app.New

func (r *runtime) load() error {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if r.dev {
		cfg.Logging.Development = true
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Source:      cfg.Source.Name,
	})
	if err != nil {
		return err
	}
	r.cfg = cfg
	r.logger = logger
	return nil
}

// open validates the configuration for the command and builds the clients.
func (r *runtime) open(ctx context.Context, ingest bool) (*app.App, error) {
	if err := r.cfg.ValidateFor(ingest); err != nil {
		return nil, err
	}
	a, err := newApp(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize application services: %w", err)
	}
	r.app = a
	return a, nil
}

func (r *runtime) close() {
	if r.app != nil {
		_ = r.app.Close()
		r.app = nil
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
}

func newRootCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant-discovery",
		Short: "Discovers and ingests funding opportunities from the Eureka Network.",
		Long: `grant-discovery crawls the Eureka Network programmes-and-calls listing,
extracts each opportunity into a structured record and keeps a grant store,
vector index and run artifacts in sync with what is currently published.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return rt.load()
		},
	}

	cmd.PersistentFlags().StringVar(&rt.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVar(&rt.dev, "dev", false, "use development logging")

	cmd.AddCommand(
		newDiscoverCmd(rt),
		newScrapeCmd(rt),
		newIngestCmd(rt),
		newExportCmd(rt),
		newScheduleCmd(rt),
		newServeCmd(rt),
	)
	return cmd
}

// Execute runs the root command until it finishes or a signal arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rt := &runtime{}
	err := newRootCmd(rt).ExecuteContext(ctx)
	rt.close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
