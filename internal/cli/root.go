// Package cli provides the command-line interface for kbase.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/raphaelgruber/kbase-go/internal/config"
	"github.com/raphaelgruber/kbase-go/internal/db"
	"github.com/raphaelgruber/kbase-go/internal/embedding"
	"github.com/raphaelgruber/kbase-go/internal/service"
	"github.com/raphaelgruber/kbase-go/internal/vectorstore"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global config and clients, wired in PersistentPreRunE.
	cfg      config.Config
	dbClient *db.Client
	registry *vectorstore.Registry

	jobService       *service.JobService
	ingestService    *service.IngestService
	knowledgeService *service.KnowledgeService

	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kbase",
	Short: "Knowledge base ingestion and query service",
	Long: `Kbase manages vector knowledge bases: it ingests files into chunked,
embedded collections with durable job tracking, and serves chunk queries
against the stored content.

Ingestions run as persisted jobs that can be watched, cancelled mid-flight,
and are rolled back on failure.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip wiring for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		logCleanup = cleanup

		ctx := context.Background()
		var err error
		dbClient, err = db.NewClient(ctx, db.Config{DSN: cfg.JobsDSN}, logger)
		if err != nil {
			return fmt.Errorf("connect to job store: %w", err)
		}

		registry = vectorstore.NewRegistry(logger)
		opener := &service.DirectoryOpener{Root: cfg.KBRoot, Registry: registry}
		resolver := embedding.ResolverFromConfig(cfg)

		jobService = service.NewJobService(dbClient, logger)
		ingestService = service.NewIngestService(cfg.KBRoot, opener, resolver, jobService, service.IngestConfig{
			BatchSize:         cfg.IngestBatchSize,
			MaxAttempts:       cfg.MaxWriteAttempts,
			BackoffMultiplier: cfg.BackoffMultiplier,
			InterFileDelay:    cfg.InterFileDelay,
			JobTimeout:        cfg.JobTimeout,
		}, logger)
		knowledgeService = service.NewKnowledgeService(cfg.KBRoot, jobService, opener, logger)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if registry != nil {
			registry.Close()
		}
		if dbClient != nil {
			if err := dbClient.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close job store: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
