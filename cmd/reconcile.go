package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CreativeStudio-server/config"

	"github.com/spf13/cobra"
)

var reconcileTimeout time.Duration

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <jobID>",
	Short: "对指定 job 执行一次 reconcile 并打印结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config.AppConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), reconcileTimeout)
		defer cancel()
		out, err := a.reconciler.Reconcile(ctx, args[0])
		if out != nil {
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
		}
		return err
	},
}

func init() {
	reconcileCmd.Flags().DurationVar(&reconcileTimeout, "timeout", 5*time.Minute, "整个 reconcile 的超时时间")
	rootCmd.AddCommand(reconcileCmd)
}
