package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crossval/crossval/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-table progress and recent results",
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
		repo := store.New(conn, conn.Dialect(), rt.cfg.Store)

		fmt.Println("Table progress:")
		for _, m := range rt.cfg.Tables {
			p, err := repo.LatestProgress(ctx, m.SourceTable)
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Printf("  %-30s never validated\n", m.SourceTable)
				continue
			}
			pct := 0.0
			if p.TotalRows > 0 {
				pct = float64(p.ProcessedRows) / float64(p.TotalRows) * 100
			}
			fmt.Printf("  %-30s %-12s %d/%d rows (%.1f%%), updated %s\n",
				m.SourceTable, p.Status, p.ProcessedRows, p.TotalRows, pct,
				p.UpdatedAt.Format("2006-01-02 15:04:05"))
			if p.ErrorMessage != "" {
				fmt.Printf("  %-30s last error: %s\n", "", p.ErrorMessage)
			}
		}

		results, err := repo.RecentResults(ctx, statusLimit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}

		fmt.Println("\nRecent results:")
		for _, r := range results {
			fmt.Printf("  %-30s %-8s total=%d matched=%d mismatched=%d missing=%d extra=%d in %s (%s)\n",
				r.TableName, r.Status, r.TotalRows, r.MatchedRows, r.MismatchedRows,
				r.MissingInTarget, r.ExtraInTarget, r.Duration.Round(time.Second),
				r.StartedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of recent results to show")
	rootCmd.AddCommand(statusCmd)
}
