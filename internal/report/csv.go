// Package report writes sweep results as CSV and persists them to SQLite.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/engine"
	"github.com/cxd309/nstraffic/internal/kinematics"
	"github.com/cxd309/nstraffic/internal/sweep"
)

// Header is the column set of a results file.
var Header = []string{
	"model", "road_block", "max_speed_slow", "max_speed_fast", "fast_car_ratio", "density",
	"total_all_cars_distance", "total_slow_cars_distance", "total_fast_cars_distance",
	"worst_case_distance_slow_cars", "worst_case_distance_fast_cars",
	"best_case_distance_slow_car", "best_case_distance_fast_car",
	"num_slow_cars", "num_fast_cars", "global_speed_rule", "speed_slow", "speed_fast",
	"repetition", "slack", "distance_look_ahead", "cars_passing_end",
}

// ModelName labels a run by its motion model and lane-change rule.
func ModelName(p config.Params) string {
	if p.Symmetric {
		return kinematics.NagelSchreckenbergModelName + "-symmetric"
	}
	return kinematics.NagelSchreckenbergModelName + "-asymmetric"
}

// MeanSpeed is the average speed of one car over the run, in cells per tick.
func MeanSpeed(distance, cars, ticks int) float64 {
	if cars == 0 || ticks == 0 {
		return 0
	}
	return float64(distance) / float64(cars*ticks)
}

// CSVWriter writes one row per run.
type CSVWriter struct {
	w      *csv.Writer
	header bool
}

// NewCSVWriter returns a writer that emits the header before the first row.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write appends one run.
func (c *CSVWriter) Write(rec sweep.RunRecord) error {
	if !c.header {
		if err := c.w.Write(Header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		c.header = true
	}
	if err := c.w.Write(Row(rec)); err != nil {
		return fmt.Errorf("writing run %d/%d: %w", rec.Combination.Index, rec.Repetition, err)
	}
	return nil
}

// Flush writes any buffered rows.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// Row formats a run in Header order.
func Row(rec sweep.RunRecord) []string {
	p := rec.Combination.Params
	r := rec.Result
	return []string{
		ModelName(p),
		strconv.FormatBool(p.HasBrokenCar),
		strconv.Itoa(p.MaxSpeedSlow),
		strconv.Itoa(p.MaxSpeedFast),
		formatFloat(rec.Combination.FastRatio),
		formatFloat(rec.Combination.Density),
		strconv.Itoa(r.TotalDistance),
		strconv.Itoa(r.SlowDistance),
		strconv.Itoa(r.FastDistance),
		strconv.Itoa(r.WorstSlowDistance),
		strconv.Itoa(r.WorstFastDistance),
		strconv.Itoa(r.BestSlowDistance),
		strconv.Itoa(r.BestFastDistance),
		strconv.Itoa(r.NumSlowCars),
		strconv.Itoa(r.NumFastCars),
		strconv.FormatBool(p.GlobalSpeedRule),
		formatFloat(slowSpeed(r)),
		formatFloat(fastSpeed(r)),
		strconv.Itoa(rec.Repetition),
		strconv.Itoa(p.Slack),
		strconv.Itoa(p.LookAhead),
		strconv.Itoa(r.CarsPassingEnd),
	}
}

func slowSpeed(r engine.Result) float64 { return MeanSpeed(r.SlowDistance, r.NumSlowCars, r.Ticks) }
func fastSpeed(r engine.Result) float64 { return MeanSpeed(r.FastDistance, r.NumFastCars, r.Ticks) }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
