package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/swc-cli/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "swc-cli",
	Short: "Soil and water conservation decision support",
	Long: "Decides whether a location is arable, recommends ICAR mechanical soil-conservation measures and scores erosion risk.\n\n" +
		"Configuration comes from ./config.yaml (or --config), SWC_* environment variables and the flags below, in rising precedence.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadWith(config.LoadOptions{File: cfgFile, Flags: cmd.Flags()})
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("file", cfgFile),
			zap.String("store", cfg.Store.Driver),
			zap.String("landcover_dir", cfg.LandCover.Dir),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: json or console")
	pf.String("landcover-dir", "", "directory holding land-cover tiles")
	pf.String("database-url", "", "history store DSN")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
