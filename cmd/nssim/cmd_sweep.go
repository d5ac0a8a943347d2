package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/report"
	"github.com/cxd309/nstraffic/internal/sweep"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep [sweep.yaml]",
		Short: "Run every combination of a parameter grid",
		Long: `Run a parameter sweep. Without a file the reference study is used:
densities 0.05-0.4, fast car ratios 0-1, three slow and fast max speeds,
with and without a broken car, five repetitions each.

Results go to a CSV file (--csv), a SQLite database (--db), or both.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sw := config.DefaultSweep()
			if len(args) > 0 {
				var err error
				if sw, err = config.LoadSweepFromFile(args[0]); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("workers") {
				sw.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("repetitions") {
				sw.Repetitions, _ = cmd.Flags().GetInt("repetitions")
			}
			if cmd.Flags().Changed("ticks") {
				sw.Base.Ticks, _ = cmd.Flags().GetInt("ticks")
			}
			logger := commandLogger(cmd, "info")
			ctx := cmd.Context()

			runner := sweep.NewRunner(logger)

			var (
				store   *report.Store
				sweepID int64
			)
			if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
				var err error
				if store, err = report.Open(dbPath); err != nil {
					return err
				}
				defer store.Close()
				if sweepID, err = store.CreateSweep(ctx, sw); err != nil {
					return err
				}
				runner.OnRecord = func(rec sweep.RunRecord) error {
					return store.SaveRun(ctx, sweepID, rec)
				}
			}

			records, err := runner.Run(ctx, sw)
			if err != nil {
				return err
			}

			if csvPath, _ := cmd.Flags().GetString("csv"); csvPath != "" {
				if err := writeCSV(csvPath, records); err != nil {
					return err
				}
				logger.Info("results written", "path", csvPath, "runs", len(records))
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if store != nil {
				sums, err := store.Summaries(ctx, sweepID)
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
						"sweep_id":  sweepID,
						"summaries": sums,
					})
				}
				printSummaries(cmd, sweepID, sums)
				return nil
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(records)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sweep %s: %d runs\n", sw.Name, len(records))
			return nil
		},
	}
	cmd.Flags().String("csv", "", "Write one row per run to this CSV file")
	cmd.Flags().String("db", "", "Store the sweep in this SQLite database")
	cmd.Flags().Int("workers", 0, "Runs executing at once (0 = unbounded)")
	cmd.Flags().Int("repetitions", 0, "Override the repetitions per combination")
	cmd.Flags().Int("ticks", 0, "Override the number of ticks per run")
	return cmd
}

func writeCSV(path string, records []sweep.RunRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := report.NewCSVWriter(f)
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func printSummaries(cmd *cobra.Command, sweepID int64, sums []report.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sweep %d\n", sweepID)
	fmt.Fprintf(out, "%5s %8s %6s %5s %12s %12s\n", "combo", "density", "ratio", "runs", "distance", "passing_end")
	for _, s := range sums {
		fmt.Fprintf(out, "%5d %8.3f %6.2f %5d %12.1f %12.1f\n",
			s.CombinationIndex, s.Density, s.FastRatio, s.Runs, s.MeanDistance, s.MeanCrossings)
	}
}
