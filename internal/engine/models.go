package engine

import (
	"log/slog"

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/logging"
	"github.com/cxd309/nstraffic/internal/vehicle"
)

// SimulationInput is the JSON-serialisable input to the engine.
type SimulationInput struct {
	SimulationID string        `json:"simulation_id"`
	Params       config.Params `json:"params"`
	// RecordLanes adds the lane cells after every tick to the log.
	RecordLanes bool `json:"record_lanes,omitempty"`
}

// SimulationLogRow is the state of both lanes after a single tick.
type SimulationLogRow struct {
	Tick  int   `json:"tick"`
	Left  []int `json:"left"`
	Right []int `json:"right"`
}

// SimulationLog is the complete output of a simulation run.
type SimulationLog struct {
	SimulationID string             `json:"simulation_id"`
	Params       config.Params      `json:"params"`
	Result       Result             `json:"result"`
	Cars         []vehicle.CarLog   `json:"cars"`
	Output       []SimulationLogRow `json:"output,omitempty"`
}

// Result aggregates the statistics of a run. Broken-variant cars are left
// out of every distance figure and car count.
type Result struct {
	Ticks          int `json:"ticks"`
	TotalDistance  int `json:"total_distance"`
	CarsPassingEnd int `json:"cars_passing_end"`

	NumSlowCars int `json:"num_slow_cars"`
	NumFastCars int `json:"num_fast_cars"`

	SlowDistance int `json:"slow_distance"`
	FastDistance int `json:"fast_distance"`
	// Worst and best single-car distance per type; zero when the type is absent.
	WorstSlowDistance int `json:"worst_slow_distance"`
	WorstFastDistance int `json:"worst_fast_distance"`
	BestSlowDistance  int `json:"best_slow_distance"`
	BestFastDistance  int `json:"best_fast_distance"`

	// MaxReachedSpeeds is indexed by car ID.
	MaxReachedSpeeds []int `json:"max_reached_speeds"`
}

// Source is the per-run pseudo-random stream. *math/rand/v2.Rand satisfies it.
type Source interface {
	Float64() float64
	IntN(n int) int
	Perm(n int) []int
}

// Simulation is one run: a RoadState plus its parameters and counters.
type Simulation struct {
	params config.Params
	state  *RoadState
	rng    Source
	tick   int
	logger *slog.Logger
	tracer *logging.TickTracer
}
