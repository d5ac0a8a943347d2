// Package engine implements the two-lane cellular-automaton simulation loop.
//
// A Simulation owns one RoadState. It generates the car population once, then
// advances the road in discrete ticks, counting the distance every car covers
// and the number of times a car passes the end of the ring.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/logging"
	"github.com/cxd309/nstraffic/internal/road"
	"github.com/cxd309/nstraffic/internal/vehicle"
)

// NewSource returns the default pseudo-random stream for a seed.
func NewSource(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// NewSimulation validates params and populates a fresh road using rng.
func NewSimulation(params config.Params, rng Source) (*Simulation, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	state, err := NewRoadState(params.RoadSize, params.SystemMaxSpeed(), params.MotionModel(), params.LaneRule(), rng)
	if err != nil {
		return nil, fmt.Errorf("building road: %w", err)
	}
	s := &Simulation{
		params: params,
		state:  state,
		rng:    rng,
		logger: logging.Discard(),
	}
	if err := s.generateCars(); err != nil {
		return nil, fmt.Errorf("generating cars: %w", err)
	}
	return s, nil
}

// SetLogger sets the operational logger and the optional tick tracer.
func (s *Simulation) SetLogger(logger *slog.Logger, tracer *logging.TickTracer) {
	if logger != nil {
		s.logger = logger
	}
	s.tracer = tracer
}

// generateCars scatters the cars over both lanes. Each lane gets its own random
// permutation of cells; lane and type are drawn at random until a quota runs
// out. With HasBrokenCar the first slow car becomes the broken car.
func (s *Simulation) generateCars() error {
	p := s.params
	size := p.RoadSize
	leftQuota, rightQuota := p.LaneQuota()
	freeLeft := s.rng.Perm(size)
	freeRight := s.rng.Perm(size)

	var nLeft, nRight, nSlow, nFast int
	brokenPending := p.HasBrokenCar
	limit := p.StartSpeedLimit()

	for id := 0; id < p.TotalCars(); id++ {
		var lane road.Lane
		switch {
		case nRight >= rightQuota:
			lane = road.Left
		case nLeft >= leftQuota:
			lane = road.Right
		case s.rng.IntN(2) == 0:
			lane = road.Right
		default:
			lane = road.Left
		}

		var pos int
		if lane == road.Right {
			pos = freeRight[nRight]
			nRight++
		} else {
			pos = freeLeft[nLeft]
			nLeft++
		}

		slow := false
		switch {
		case nSlow == p.NumSlowCars:
		case nFast == p.NumFastCars:
			slow = true
		default:
			slow = s.rng.IntN(2) == 0
		}

		spec := vehicle.Spec{ID: id, Variant: vehicle.VariantFast, MaxSpeed: p.MaxSpeedFast}
		if slow {
			nSlow++
			spec.Variant = vehicle.VariantSlow
			spec.MaxSpeed = p.MaxSpeedSlow
			if brokenPending {
				brokenPending = false
				spec.Variant = vehicle.VariantBroken
				spec.BreakDownProb = p.BreakDownProb
				spec.RepairProb = p.RepairProb
			}
		} else {
			nFast++
		}

		speed := max(min(spec.MaxSpeed, limit)-s.rng.IntN(2), 0)
		car, err := vehicle.New(spec, lane, pos, speed)
		if err != nil {
			return err
		}
		if err := s.state.AddCar(car); err != nil {
			return err
		}
	}

	s.logger.Debug("cars generated",
		"left", s.state.cur.Count(road.Left), "right", s.state.cur.Count(road.Right),
		"slow", nSlow, "fast", nFast, "broken", p.HasBrokenCar)
	return nil
}

// Step advances the simulation by one tick.
func (s *Simulation) Step() error {
	if err := s.state.Step(); err != nil {
		return fmt.Errorf("at tick %d: %w", s.tick, err)
	}
	s.tick++
	if s.tracer != nil {
		left, right := s.state.Lanes()
		s.tracer.Trace(logging.TickRecord{Tick: s.tick, Crossings: s.state.Crossings(), Left: left, Right: right})
	}
	return nil
}

// Run performs ticks steps and returns the aggregate statistics.
func (s *Simulation) Run(ticks int) (Result, error) {
	return s.RunContext(context.Background(), ticks)
}

// RunContext is Run with cancellation checked between ticks.
func (s *Simulation) RunContext(ctx context.Context, ticks int) (Result, error) {
	for range ticks {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := s.Step(); err != nil {
			return Result{}, err
		}
	}
	res := s.Result()
	s.logger.Debug("run complete",
		"ticks", res.Ticks, "distance", res.TotalDistance, "passing_end", res.CarsPassingEnd)
	return res, nil
}

// Result summarises the run so far.
func (s *Simulation) Result() Result {
	res := Result{Ticks: s.tick, CarsPassingEnd: s.state.Crossings()}
	cars := s.state.cars
	res.MaxReachedSpeeds = make([]int, len(cars))

	var seenSlow, seenFast bool
	for _, c := range cars {
		if c.ID >= 0 && c.ID < len(cars) {
			res.MaxReachedSpeeds[c.ID] = c.MaxReachedSpeed
		}
		d := c.TraveledDistance
		switch c.Variant {
		case vehicle.VariantSlow:
			res.NumSlowCars++
			res.SlowDistance += d
			if !seenSlow || d < res.WorstSlowDistance {
				res.WorstSlowDistance = d
			}
			if !seenSlow || d > res.BestSlowDistance {
				res.BestSlowDistance = d
			}
			seenSlow = true
		case vehicle.VariantFast:
			res.NumFastCars++
			res.FastDistance += d
			if !seenFast || d < res.WorstFastDistance {
				res.WorstFastDistance = d
			}
			if !seenFast || d > res.BestFastDistance {
				res.BestFastDistance = d
			}
			seenFast = true
		}
	}
	res.TotalDistance = res.SlowDistance + res.FastDistance
	return res
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int { return s.tick }

// Params returns the run parameters.
func (s *Simulation) Params() config.Params { return s.params }

// Snapshot returns a read-only view of every car.
func (s *Simulation) Snapshot() []vehicle.CarLog { return s.state.Cars() }

// Lanes returns copies of the current lane cells.
func (s *Simulation) Lanes() (left, right []int) { return s.state.Lanes() }

// Execute runs a SimulationInput to completion and returns its log.
func Execute(ctx context.Context, input SimulationInput, logger *slog.Logger) (SimulationLog, error) {
	p := input.Params
	sim, err := NewSimulation(p, NewSource(p.Seed, 0))
	if err != nil {
		return SimulationLog{}, err
	}
	sim.SetLogger(logger, nil)

	out := SimulationLog{SimulationID: input.SimulationID, Params: p}
	for range p.Ticks {
		if err := ctx.Err(); err != nil {
			return SimulationLog{}, err
		}
		if err := sim.Step(); err != nil {
			return SimulationLog{}, err
		}
		if input.RecordLanes {
			left, right := sim.Lanes()
			out.Output = append(out.Output, SimulationLogRow{Tick: sim.Tick(), Left: left, Right: right})
		}
	}
	out.Result = sim.Result()
	out.Cars = sim.Snapshot()
	return out, nil
}

// RunJSON is the entry point shared by the CLI and WASM targets. It accepts a
// JSON-encoded SimulationInput, runs the simulation, and returns a
// JSON-encoded SimulationLog.
func RunJSON(jsonInput string) (string, error) {
	input := SimulationInput{Params: config.DefaultParams()}
	if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
		return "", fmt.Errorf("invalid input JSON: %w", err)
	}

	simLog, err := Execute(context.Background(), input, nil)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}
