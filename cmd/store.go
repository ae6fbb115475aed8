package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the evaluation history store",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the evaluation history schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("store ready", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeInitCmd)
	rootCmd.AddCommand(storeCmd)
}
