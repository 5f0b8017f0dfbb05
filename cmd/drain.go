package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Process pending tasks until none remain",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := newEngine(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Dispatcher.DrainPending(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("drain complete", zap.Int("tasks", n))
		return printJSON(cmd.OutOrStdout(), map[string]int{"processed": n})
	},
}

func init() {
	rootCmd.AddCommand(drainCmd)
}
