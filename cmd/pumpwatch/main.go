// pumpwatch scans perpetual-futures markets for pre-pump accumulation
// patterns and alerts before the move, never during it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/pumpwatch/internal/errs"
)

const (
	appName = "pumpwatch"
	version = "v1.0.0"
)

// Exit codes per error class.
const (
	exitOK         = 0
	exitConfig     = 1
	exitAdapter    = 2
	exitCorruption = 3
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Pre-pump scanner for perpetual futures",
		Version: version,
		Long: `pumpwatch watches open interest, funding, leverage and order-book
structure across Binance, Bybit and OKX perpetuals, scores each symbol on
nine accumulation signals and alerts while the setup is still forming.`,
		PersistentPreRun: func(*cobra.Command, []string) {
			if lvl, err := zerolog.ParseLevel(flagLogLevel); err == nil {
				zerolog.SetGlobalLevel(lvl)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "zerolog level (trace..error)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build info",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(newRunCmd(), newSetupCmd(), versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindConfig:
		return exitConfig
	case errs.KindStoreCorruption:
		return exitCorruption
	case errs.KindTransientFetch, errs.KindPermanentFetch:
		return exitAdapter
	default:
		return exitConfig
	}
}
