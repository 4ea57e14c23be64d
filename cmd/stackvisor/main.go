// Command stackvisor coordinates the Analytics@LLM stack: it launches the
// backend API, waits for it to report healthy, launches the dashboard UI,
// and keeps both supervised.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stackvisor/internal/config"
)

var version = "0.3.0"

var (
	envFile   string
	stackFile string
)

var rootCmd = &cobra.Command{
	Use:           "stackvisor",
	Short:         "Process coordinator for the analytics stack",
	Long:          "stackvisor sequences the analytics stack's API and dashboard UI:\nteardown of leftovers, API launch, health polling, UI launch, and\nsupervised shutdown. Behavior is driven by the environment (.env).",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stackvisor version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("stackvisor " + version)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to the .env file (missing file is ignored)")
	rootCmd.PersistentFlags().StringVar(&stackFile, "stack", "stackvisor.yaml", "Path to the YAML stack file overriding built-in process definitions")

	rootCmd.AddCommand(upCmd, downCmd, statusCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stackvisor:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger every subcommand shares.
func setup() (*config.Config, *config.StackConfig, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := newLogger(cfg.DevMode)
	if err != nil {
		return nil, nil, nil, err
	}

	stack, err := config.LoadStackConfig(stackFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("could not load stack file, using built-in definitions",
				zap.String("path", stackFile), zap.Error(err))
		}
		stack = cfg.DefaultStack()
	}

	return cfg, stack, logger, nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
