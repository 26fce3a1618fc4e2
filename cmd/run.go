package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crossval/crossval/internal/catalog"
	"github.com/crossval/crossval/internal/config"
	"github.com/crossval/crossval/internal/orchestrator"
	"github.com/crossval/crossval/internal/report"
	"github.com/crossval/crossval/internal/store"
	"github.com/crossval/crossval/internal/validation"
	"github.com/crossval/crossval/internal/window"
)

var (
	runResume       bool
	runTables       []string
	runIgnoreWindow bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Validate configured tables against their source",
	Long: `Run validates every configured table, or the subset named with
--tables. With --resume, interrupted tables continue from their last
checkpoint and already-completed tables are skipped.

The exit code is non-zero when any table fails to validate. Discrepancies
alone (mismatched, missing, or extra rows) exit zero; they are findings,
not errors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		conn, err := rt.connect(ctx)
		if err != nil {
			return err
		}

		tables, err := selectTables(rt.cfg, runTables)
		if err != nil {
			return err
		}

		var win *window.Window
		if !runIgnoreWindow {
			win, err = window.FromConfig(rt.cfg.RunWindow)
			if err != nil {
				return fmt.Errorf("parsing run window: %w", err)
			}
		}

		repo := store.New(conn, conn.Dialect(), rt.cfg.Store)
		if err := repo.EnsureTables(ctx); err != nil {
			return err
		}

		validator := &validation.Validator{
			Querier:  conn,
			Dialect:  conn.Dialect(),
			Catalog:  catalog.NewReader(conn, conn.Dialect()),
			Recorder: repo,
			Logger:   rt.logger,
			Details:  rt.cfg.Details,
		}
		orch := &orchestrator.Orchestrator{
			Runner:      validator,
			Recorder:    repo,
			Window:      win,
			Logger:      rt.logger,
			Concurrency: rt.cfg.Concurrency,
		}

		summary, err := orch.Run(ctx, tables, runResume)
		if err != nil {
			return err
		}

		fmt.Println(report.Render(summary))

		if rt.cfg.Email.Enabled {
			mailer := report.NewMailer(rt.cfg.Email)
			if err := mailer.Send(report.Subject(summary), report.PlainText(summary)); err != nil {
				rt.logger.Warn("report email not delivered", "error", err)
			}
		}

		// Returned rather than exiting here so the deferred Close runs.
		return failureError(summary)
	},
}

// failureError converts failed tables into a non-zero exit for the process.
func failureError(s *orchestrator.Summary) error {
	if !s.AnyFailed() {
		return nil
	}
	var failed int
	for _, r := range s.Results {
		if r.Status == validation.StatusFailed {
			failed++
		}
	}
	return fmt.Errorf("%d of %d tables failed validation", failed, len(s.Results))
}

// selectTables narrows the configured mappings to the names given on the
// command line. Unknown names are an error, not a silent no-op.
func selectTables(cfg *config.Config, names []string) ([]config.TableMapping, error) {
	if len(names) == 0 {
		return cfg.Tables, nil
	}

	known := make(map[string]config.TableMapping, len(cfg.Tables))
	for _, m := range cfg.Tables {
		known[strings.ToUpper(m.SourceTable)] = m
	}

	var selected []config.TableMapping
	var unknown []string
	for _, name := range names {
		m, ok := known[strings.ToUpper(name)]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if !slices.ContainsFunc(selected, func(s config.TableMapping) bool { return s.SourceTable == m.SourceTable }) {
			selected = append(selected, m)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("tables not in configuration: %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}

func init() {
	runCmd.Flags().BoolVar(&runResume, "resume", false, "continue interrupted tables from their last checkpoint")
	runCmd.Flags().StringSliceVar(&runTables, "tables", nil, "validate only these source tables")
	runCmd.Flags().BoolVar(&runIgnoreWindow, "ignore-window", false, "run even outside the configured run window")
	rootCmd.AddCommand(runCmd)
}
