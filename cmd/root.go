package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crossval/crossval/internal/config"
	"github.com/crossval/crossval/internal/link"
	"github.com/crossval/crossval/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "crossval",
	Short: "Crossval — cross-database replication validator",
	Long: `Crossval verifies that replicated tables match their source, row by
row, across a database link (Oracle) or foreign schema (PostgreSQL).

Validation runs in key-ordered chunks with a durable checkpoint after each
chunk, so an interrupted run resumes from where it stopped.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.crossval/crossval.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// runtime bundles what every subcommand needs: parsed config, a logger, and
// the connection manager. Callers must Close it.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *link.Manager
}

func (r *runtime) Close() {
	if err := r.manager.Close(); err != nil {
		r.logger.Warn("closing connections", "error", err)
	}
}

func (r *runtime) connect(ctx context.Context) (*link.Conn, error) {
	conn, err := r.manager.Get(ctx, r.cfg.Target, r.cfg.Link)
	if err != nil {
		return nil, fmt.Errorf("connecting to target: %w", err)
	}
	return conn, nil
}

func setup() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, manager: link.NewManager()}, nil
}
