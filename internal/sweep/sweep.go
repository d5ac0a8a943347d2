// Package sweep expands a parameter grid into runnable combinations and runs
// every repetition of every combination on a bounded pool of goroutines.
package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/engine"
	"github.com/cxd309/nstraffic/internal/logging"
)

// brokenCarBreakDownProb is used for every combination with a broken car.
const brokenCarBreakDownProb = 0.3

// Combination is one point of the grid.
type Combination struct {
	Index     int           `json:"index"`
	Density   float64       `json:"density"`
	FastRatio float64       `json:"fast_car_ratio"`
	Params    config.Params `json:"params"`
}

// RunRecord is the result of one repetition of one combination.
type RunRecord struct {
	Combination Combination   `json:"combination"`
	Repetition  int           `json:"repetition"`
	Seed        uint64        `json:"seed"`
	Result      engine.Result `json:"result"`
}

// Expand returns the grid in a stable order. Speed pairs with a slow max speed
// above the fast one are skipped. A broken car is counted as one extra slow car.
func Expand(s *config.Sweep) []Combination {
	lookAheads := s.LookAheads
	if len(lookAheads) == 0 {
		lookAheads = []int{s.Base.LookAhead}
	}
	slacks := s.Slacks
	if len(slacks) == 0 {
		slacks = []int{s.Base.Slack}
	}
	globals := s.GlobalRules
	if len(globals) == 0 {
		globals = []bool{s.Base.GlobalSpeedRule}
	}
	broken := s.BrokenCars
	if len(broken) == 0 {
		broken = []bool{s.Base.HasBrokenCar}
	}

	var out []Combination
	for _, lookAhead := range lookAheads {
		for _, slack := range slacks {
			for _, density := range s.Densities {
				for _, ratio := range s.FastRatios {
					for _, speeds := range s.MaxSpeeds {
						if speeds.Slow > speeds.Fast {
							continue
						}
						for _, global := range globals {
							for _, hasBroken := range broken {
								p := s.Base
								p.LookAhead = lookAhead
								p.Slack = slack
								total := int(float64(p.RoadSize) * density)
								p.NumFastCars = int(ratio * float64(total))
								p.NumSlowCars = total - p.NumFastCars
								p.MaxSpeedSlow = speeds.Slow
								p.MaxSpeedFast = speeds.Fast
								p.GlobalSpeedRule = global
								if global {
									p.GlobalMaxSpeed = int(s.GlobalSpeedFactor * float64(speeds.Slow))
								}
								p.HasBrokenCar = hasBroken
								p.BreakDownProb = 0
								if hasBroken {
									p.NumSlowCars++
									p.BreakDownProb = brokenCarBreakDownProb
								}
								out = append(out, Combination{
									Index:     len(out),
									Density:   density,
									FastRatio: ratio,
									Params:    p,
								})
							}
						}
					}
				}
			}
		}
	}
	return out
}

// Seed derives the seed of one repetition from the base seed.
func Seed(base uint64, index, repetition int) uint64 {
	return base ^ (uint64(index)<<32 | uint64(repetition))
}

// Runner executes a sweep.
type Runner struct {
	logger *slog.Logger
	run    func(ctx context.Context, c Combination, rep int, baseSeed uint64) (RunRecord, error)
	// OnRecord, when set, is called for every finished run. Calls are
	// serialised. The first error it returns cancels the remaining runs.
	OnRecord func(RunRecord) error
}

// NewRunner returns a Runner that logs progress to logger.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{logger: logger, run: runOne}
}

// Run executes every repetition of every combination and returns the records
// ordered by combination and repetition. Combinations whose parameters do not
// validate fail the whole sweep before any run starts.
func (r *Runner) Run(ctx context.Context, s *config.Sweep) ([]RunRecord, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep: %w", err)
	}
	combos := Expand(s)
	for _, c := range combos {
		if err := c.Params.Validate(); err != nil {
			return nil, fmt.Errorf("combination %d (density %g, ratio %g): %w", c.Index, c.Density, c.FastRatio, err)
		}
	}

	records := make([]RunRecord, len(combos)*s.Repetitions)
	results := make(chan RunRecord)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, gctx := errgroup.WithContext(ctx)
	workers := s.Workers
	if workers > 0 {
		g.SetLimit(workers)
	}

	r.logger.Info("sweep started", "name", s.Name, "combinations", len(combos), "repetitions", s.Repetitions, "workers", workers)

	collect := make(chan error, 1)
	go func() {
		var firstErr error
		done := 0
		for rec := range results {
			records[rec.Combination.Index*s.Repetitions+rec.Repetition] = rec
			done++
			if r.OnRecord != nil && firstErr == nil {
				if firstErr = r.OnRecord(rec); firstErr != nil {
					cancel(firstErr)
				}
			}
			if done%s.Repetitions == 0 {
				r.logger.Debug("sweep progress", "runs", done, "of", len(records))
			}
		}
		collect <- firstErr
	}()

schedule:
	for _, c := range combos {
		for rep := range s.Repetitions {
			if gctx.Err() != nil {
				break schedule
			}
			g.Go(func() error {
				rec, err := r.run(gctx, c, rep, s.Base.Seed)
				if err != nil {
					return err
				}
				select {
				case results <- rec:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
	}

	err := g.Wait()
	close(results)
	if cbErr := <-collect; cbErr != nil {
		err = fmt.Errorf("recording run: %w", cbErr)
	} else if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("sweep finished", "name", s.Name, "runs", len(records))
	return records, nil
}

func runOne(ctx context.Context, c Combination, rep int, baseSeed uint64) (RunRecord, error) {
	seed := Seed(baseSeed, c.Index, rep)
	sim, err := engine.NewSimulation(c.Params, engine.NewSource(seed, uint64(c.Index)))
	if err != nil {
		return RunRecord{}, fmt.Errorf("combination %d repetition %d: %w", c.Index, rep, err)
	}
	res, err := sim.RunContext(ctx, c.Params.Ticks)
	if err != nil {
		return RunRecord{}, fmt.Errorf("combination %d repetition %d: %w", c.Index, rep, err)
	}
	return RunRecord{Combination: c, Repetition: rep, Seed: seed, Result: res}, nil
}
