package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check target connectivity and the path back to the source",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		cfg := rt.cfg

		start := time.Now()
		conn, err := rt.connect(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("target   OK  %s %s:%d/%s (%s)\n",
			cfg.Target.Type, cfg.Target.Host, cfg.Target.Port, cfg.Target.Database,
			time.Since(start).Round(time.Millisecond))

		start = time.Now()
		probe, probeArgs := conn.Dialect().LinkProbeQuery()
		if _, err := conn.QueryValue(ctx, probe, probeArgs...); err != nil {
			return fmt.Errorf("source link not usable: %w", err)
		}
		fmt.Printf("link     OK  (%s)\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
