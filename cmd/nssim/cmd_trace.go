package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/engine"
	"github.com/cxd309/nstraffic/internal/logging"
	"github.com/cxd309/nstraffic/internal/render"
)

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace [config]",
		Short: "Print both lanes after every tick",
		Long: `Run a simulation and print the road after every tick, the left lane
above the right lane. Each cell shows the speed of its car in hex, '_' when
empty.

With --jsonl every tick is also written as a JSON line to the given file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := config.Parse(data)
			if err != nil {
				return err
			}
			ticks, _ := cmd.Flags().GetInt("ticks")
			if !cmd.Flags().Changed("ticks") && cfg.Simulation.Ticks < ticks {
				ticks = cfg.Simulation.Ticks
			}
			logger := commandLogger(cmd, cfg.Logging.Level)

			p := cfg.Simulation
			sim, err := engine.NewSimulation(p, engine.NewSource(p.Seed, 0))
			if err != nil {
				return err
			}

			var tracer *logging.TickTracer
			if path, _ := cmd.Flags().GetString("jsonl"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating %s: %w", path, err)
				}
				defer f.Close()
				tracer = logging.NewTickTracer("trace", f)
			}
			sim.SetLogger(logger, tracer)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, render.Lanes(sim.Lanes()))
			for range ticks {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				if err := sim.Step(); err != nil {
					return err
				}
				fmt.Fprintln(out, render.Lanes(sim.Lanes()))
			}
			if err := tracer.Err(); err != nil {
				return fmt.Errorf("writing trace: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Int("ticks", 20, "Number of ticks to print")
	cmd.Flags().String("jsonl", "", "Also write every tick as JSON lines to this file")
	return cmd
}
