package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpeedPair is one combination of slow and fast car max speeds.
type SpeedPair struct {
	Slow int `json:"slow" yaml:"slow"`
	Fast int `json:"fast" yaml:"fast"`
}

// Sweep describes a grid of parameter combinations, each run several times.
// Base supplies every parameter the grid does not vary.
type Sweep struct {
	Name string `json:"name" yaml:"name"`
	Base Params `json:"base" yaml:"base"`

	// Densities are total cars over both lanes per cell of one lane, so 2 fills the road.
	Densities   []float64   `json:"densities" yaml:"densities"`
	FastRatios  []float64   `json:"fast_ratios" yaml:"fast_ratios"`
	MaxSpeeds   []SpeedPair `json:"max_speeds" yaml:"max_speeds"`
	LookAheads  []int       `json:"distance_look_ahead" yaml:"distance_look_ahead"`
	Slacks      []int       `json:"slacks" yaml:"slacks"`
	GlobalRules []bool      `json:"global_speed_rules" yaml:"global_speed_rules"`
	BrokenCars  []bool      `json:"broken_cars" yaml:"broken_cars"`

	// GlobalSpeedFactor scales the slow max speed into the global cap.
	GlobalSpeedFactor float64 `json:"global_speed_factor" yaml:"global_speed_factor"`

	Repetitions int `json:"repetitions" yaml:"repetitions"`
	// Workers bounds the number of runs executing at once.
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultSweep returns the statistical study of the reference model.
func DefaultSweep() *Sweep {
	return &Sweep{
		Name:              "reference",
		Base:              DefaultParams(),
		Densities:         []float64{0.05, 0.1, 0.15, 0.3, 0.4},
		FastRatios:        []float64{0, 0.25, 0.5, 0.75, 1},
		MaxSpeeds:         []SpeedPair{{3, 4}, {3, 8}, {3, 11}, {6, 8}, {6, 11}, {9, 11}},
		LookAheads:        []int{7},
		Slacks:            []int{3},
		GlobalRules:       []bool{false},
		BrokenCars:        []bool{true, false},
		GlobalSpeedFactor: 0.75,
		Repetitions:       5,
		Workers:           4,
	}
}

// Validate checks that the sweep expands to at least one runnable combination.
func (s *Sweep) Validate() error {
	if s.Repetitions <= 0 {
		return fmt.Errorf("repetitions must be positive, got %d", s.Repetitions)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", s.Workers)
	}
	if len(s.Densities) == 0 || len(s.FastRatios) == 0 || len(s.MaxSpeeds) == 0 {
		return fmt.Errorf("densities, fast_ratios and max_speeds must not be empty")
	}
	for _, d := range s.Densities {
		if d < 0 || d > 2 {
			return fmt.Errorf("density %g not in [0, 2]", d)
		}
	}
	for _, r := range s.FastRatios {
		if r < 0 || r > 1 {
			return fmt.Errorf("fast ratio %g not in [0, 1]", r)
		}
	}
	if s.GlobalSpeedFactor < 0 {
		return fmt.Errorf("global_speed_factor must be non-negative, got %g", s.GlobalSpeedFactor)
	}
	if s.Base.RoadSize <= 0 {
		return fmt.Errorf("base road_size must be positive, got %d", s.Base.RoadSize)
	}
	return nil
}

// LoadSweepFromFile loads a sweep definition on top of DefaultSweep. Lists in
// the file replace the default lists.
func LoadSweepFromFile(path string) (*Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sweep file: %w", err)
	}
	s := DefaultSweep()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing sweep file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
