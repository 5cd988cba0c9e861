// indcalc computes indicators over stored or file-based bar series from the
// command line.
//
// Usage:
//
//	indcalc list
//	indcalc compute --indicator MACD --input bars.csv --tail 20
//	indcalc import --input bars.parquet --symbol BTCUSDT
//	indcalc export --symbol BTCUSDT --output bars.csv
//	indcalc replay --symbol BTCUSDT --indicator CR --speed 0
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"charting-engine/config"
	"charting-engine/internal/indengine"
	"charting-engine/internal/indicator"
	"charting-engine/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "indcalc",
	Short: "technical indicator calculator",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		logger.New("indcalc", logger.Options{
			Level:  logger.ParseLevel(level),
			Text:   true,
			Stdout: os.Stderr,
		})
	},
}

func init() {
	cfg := config.Load()
	rootCmd.PersistentFlags().String("db", cfg.SQLitePath, "path to the SQLite bar store")
	rootCmd.PersistentFlags().String("log-level", "warn", "debug|info|warn|error")
	rootCmd.PersistentFlags().String("defaults", cfg.IndicatorParams, "default param overrides, e.g. EMA:6/12/20,MACD:12/26/9")
	rootCmd.PersistentFlags().String("policy", cfg.RegistryPolicy, "registry duplicate policy: overwrite|reject")
}

// newRegistry builds the built-in registry with the --defaults overrides.
func newRegistry(cmd *cobra.Command) (*indicator.Registry, error) {
	policyStr, _ := cmd.Flags().GetString("policy")
	policy, err := indicator.ParsePolicy(policyStr)
	if err != nil {
		return nil, err
	}
	reg := indicator.NewDefaultRegistry(policy)

	raw, _ := cmd.Flags().GetString("defaults")
	specs, err := indengine.ParseIndicatorSpecs(raw)
	if err != nil {
		return nil, err
	}
	if err := indengine.ApplyIndicatorSpecs(reg, specs); err != nil {
		return nil, err
	}
	return reg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
