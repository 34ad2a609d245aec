// Package commands implements the launchpad command line
package commands

import (
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/trufnetwork/launchpad-go/core/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logLevel string
	envFiles []string
	logger   = zap.NewNop()
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "launchpad",
		Short: "Token launchpad simulator",
		Long: `Simulate a token launchpad: a staking weight ledger, a presale factory and
the sales it deploys, driven by a YAML scenario on a simulated clock.

QUICK START:

  # Run a scenario and print steps, sales and balances
  launchpad simulate scenario.yaml

  # Keep the emitted events and read them back
  launchpad simulate scenario.yaml --journal ./events
  launchpad events --journal ./events --name Purchase

  # List the built-in sale templates and their registry hashes
  launchpad templates`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the command runs")

	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newTemplatesCmd())
	rootCmd.AddCommand(newEventsCmd())
	return rootCmd
}

func setup(cmd *cobra.Command, _ []string) error {
	// Missing dotenv files are fine; the environment alone may carry every setting
	_ = godotenv.Load(envFiles...)

	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid --log-level %q", logLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	logger = l
	logging.SetLogger(l)
	return nil
}
