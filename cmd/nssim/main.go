// Command nssim runs the two-lane Nagel-Schreckenberg traffic model: single
// runs, parameter sweeps and tick-by-tick traces.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cxd309/nstraffic/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nssim",
		Short: "Two-lane cellular-automaton traffic simulator",
		Long: `nssim simulates traffic on a circular two-lane road with the
Nagel-Schreckenberg model, including lane changes, speed limits and a car
that can break down.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides the config file)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newSweepCmd(),
		newTraceCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// commandLogger builds the logger for a command. The --log-level flag wins
// over the level from the configuration file.
func commandLogger(cmd *cobra.Command, configured string) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = configured
	}
	return logging.NewLogger(level, cmd.ErrOrStderr())
}

// readInput reads the named file, or stdin when no file is given.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("error reading input: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	return data, nil
}
