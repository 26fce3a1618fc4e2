package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crossval/crossval/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the bookkeeping tables on the target",
	Long: `Init creates the progress, results, and details tables in the target
database if they do not exist. Running it again is harmless.`,
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
		if err := repo.EnsureTables(ctx); err != nil {
			return err
		}

		fmt.Printf("Bookkeeping tables ready: %s, %s, %s\n",
			rt.cfg.Store.ProgressTable, rt.cfg.Store.ResultsTable, rt.cfg.Store.DetailsTable)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
