package main

import (
	"fmt"
	"os"

	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/spf13/cobra"

	// Built-in algorithms register themselves.
	_ "github.com/signalsfoundry/amoebot-simulator/internal/algorithms"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries state shared by subcommands.
type app struct {
	log logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: logging.Noop()}

	rootCmd := &cobra.Command{
		Use:   "amoebotsim",
		Short: "Amoebot simulator with reconfigurable circuits and joint movements",
		Long: `amoebotsim runs amoebot algorithms in synchronous rounds on the
triangular grid, with beeps over reconfigurable circuits, joint movement
resolution and a replayable round history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			a.log = newLogger(level, format)
		},
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text or json); defaults to LOG_FORMAT")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newInspectCmd(),
		newAlgorithmsCmd(),
	)
	return rootCmd
}

func newLogger(level, format string) logging.Logger {
	if level == "" && format == "" {
		return logging.NewFromEnv()
	}
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	return logging.New(logging.Config{Level: level, Format: format, AddSource: true})
}
