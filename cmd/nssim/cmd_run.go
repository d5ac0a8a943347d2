package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/engine"
	"github.com/cxd309/nstraffic/internal/report"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [config]",
		Short: "Run one simulation",
		Long: `Run one simulation from a YAML or JSON configuration file, or from
stdin when no file is given.

With --raw the input is a SimulationInput JSON document and the complete
SimulationLog JSON is written to stdout, the same contract as the WebAssembly
build.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			raw, _ := cmd.Flags().GetBool("raw")
			if raw {
				out, err := engine.RunJSON(string(data))
				if err != nil {
					return fmt.Errorf("simulation error: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}

			cfg, err := config.Parse(data)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if cmd.Flags().Changed("ticks") {
				cfg.Simulation.Ticks, _ = cmd.Flags().GetInt("ticks")
			}
			logger := commandLogger(cmd, cfg.Logging.Level)

			id := "stdin"
			if len(args) > 0 {
				id = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			simLog, err := engine.Execute(cmd.Context(), engine.SimulationInput{
				SimulationID: id,
				Params:       cfg.Simulation,
			}, logger)
			if err != nil {
				return fmt.Errorf("simulation error: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(simLog)
			}
			printResult(cmd, simLog)
			return nil
		},
	}
	cmd.Flags().Bool("raw", false, "Read a SimulationInput JSON document and print the SimulationLog")
	cmd.Flags().Uint64("seed", 0, "Override the random seed")
	cmd.Flags().Int("ticks", 0, "Override the number of ticks")
	return cmd
}

func printResult(cmd *cobra.Command, simLog engine.SimulationLog) {
	p := simLog.Params
	r := simLog.Result
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Simulation %s (%s)\n", simLog.SimulationID, report.ModelName(p))
	fmt.Fprintf(out, "  road:        %d cells x 2 lanes, %d ticks, seed %d\n", p.RoadSize, r.Ticks, p.Seed)
	fmt.Fprintf(out, "  cars:        %d slow, %d fast, broken car: %v\n", r.NumSlowCars, r.NumFastCars, p.HasBrokenCar)
	fmt.Fprintf(out, "  distance:    %d total (%d slow, %d fast)\n", r.TotalDistance, r.SlowDistance, r.FastDistance)
	fmt.Fprintf(out, "  mean speed:  slow %.3f, fast %.3f cells/tick\n",
		report.MeanSpeed(r.SlowDistance, r.NumSlowCars, r.Ticks),
		report.MeanSpeed(r.FastDistance, r.NumFastCars, r.Ticks))
	fmt.Fprintf(out, "  passing end: %d\n", r.CarsPassingEnd)
}
