// Package config provides the immutable run parameters of the traffic
// simulation and their loading from YAML (or JSON) files and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cxd309/nstraffic/internal/kinematics"
	"github.com/cxd309/nstraffic/internal/vehicle"
)

// ErrCapacity reports more cars on a lane than the lane has cells.
var ErrCapacity = errors.New("car count exceeds road capacity")

// Params is the complete, read-only configuration of one simulation run.
type Params struct {
	// RoadSize is the number of cells per lane.
	RoadSize    int `json:"road_size" yaml:"road_size"`
	NumFastCars int `json:"num_fast_cars" yaml:"num_fast_cars"`
	// NumSlowCars includes the broken car when HasBrokenCar is set.
	NumSlowCars int `json:"num_slow_cars" yaml:"num_slow_cars"`

	MaxSpeedFast int `json:"max_speed_fast" yaml:"max_speed_fast"` // cells/tick
	MaxSpeedSlow int `json:"max_speed_slow" yaml:"max_speed_slow"` // cells/tick

	MaxAcceleration int     `json:"max_acceleration" yaml:"max_acceleration"`
	Fluctuation     float64 `json:"probability_fluctuation" yaml:"probability_fluctuation"`

	LookAhead int  `json:"distance_look_ahead" yaml:"distance_look_ahead"`
	Slack     int  `json:"slack" yaml:"slack"`
	Symmetric bool `json:"symmetric_rule" yaml:"symmetric_rule"`

	GlobalSpeedRule bool `json:"global_speed_rule" yaml:"global_speed_rule"`
	GlobalMaxSpeed  int  `json:"global_max_speed" yaml:"global_max_speed"`

	HasBrokenCar  bool    `json:"has_broken_car" yaml:"has_broken_car"`
	BreakDownProb float64 `json:"breaking_down_probability" yaml:"breaking_down_probability"`
	RepairProb    float64 `json:"getting_repaired_probability" yaml:"getting_repaired_probability"`

	// InitialSpeedLimit caps the speed cars are created with. Zero means the
	// fast car max speed.
	InitialSpeedLimit int `json:"initial_speed_limit,omitempty" yaml:"initial_speed_limit,omitempty"`

	Ticks int    `json:"ticks" yaml:"ticks"`
	Seed  uint64 `json:"seed" yaml:"seed"`
}

// DefaultParams returns the parameter set of the reference two-lane model:
// 7.5 km of 7.5 m cells, one simulated hour of one-second ticks.
func DefaultParams() Params {
	return Params{
		RoadSize:        1000,
		MaxSpeedFast:    5,
		MaxSpeedSlow:    3,
		MaxAcceleration: 1,
		Fluctuation:     0.25,
		LookAhead:       7,
		Slack:           3,
		Symmetric:       true,
		BreakDownProb:   0.3,
		RepairProb:      0,
		Ticks:           3600,
		Seed:            1,
	}
}

// TotalCars returns the number of cars on the road.
func (p Params) TotalCars() int { return p.NumFastCars + p.NumSlowCars }

// LaneQuota returns how many cars start on the left and right lane. The right
// lane takes the extra car of an odd total.
func (p Params) LaneQuota() (left, right int) {
	left = p.TotalCars() / 2
	return left, p.TotalCars() - left
}

// SystemMaxSpeed is the speed reported for a lane with no car on it.
func (p Params) SystemMaxSpeed() int { return max(p.MaxSpeedFast, p.MaxSpeedSlow) }

// StartSpeedLimit is the upper bound on initial car speeds.
func (p Params) StartSpeedLimit() int {
	limit := p.InitialSpeedLimit
	if limit <= 0 {
		limit = p.MaxSpeedFast
	}
	if p.GlobalSpeedRule {
		limit = min(limit, p.GlobalMaxSpeed)
	}
	return limit
}

// MotionModel returns the car-following model these parameters describe.
func (p Params) MotionModel() kinematics.NagelSchreckenberg {
	return kinematics.NagelSchreckenberg{
		MaxAcceleration: p.MaxAcceleration,
		Fluctuation:     p.Fluctuation,
		GlobalSpeedRule: p.GlobalSpeedRule,
		GlobalMaxSpeed:  p.GlobalMaxSpeed,
	}
}

// LaneRule returns the lane-change rule these parameters describe.
func (p Params) LaneRule() vehicle.LaneRule {
	return vehicle.LaneRule{LookAhead: p.LookAhead, Slack: p.Slack, Symmetric: p.Symmetric}
}

// Validate checks that the parameters describe a runnable simulation.
func (p Params) Validate() error {
	if p.RoadSize <= 0 {
		return fmt.Errorf("road_size must be positive, got %d", p.RoadSize)
	}
	if p.NumFastCars < 0 || p.NumSlowCars < 0 {
		return fmt.Errorf("car counts must be non-negative, got fast=%d slow=%d", p.NumFastCars, p.NumSlowCars)
	}
	if _, right := p.LaneQuota(); right > p.RoadSize {
		return fmt.Errorf("%w: %d cars on a lane of %d cells", ErrCapacity, right, p.RoadSize)
	}
	if p.MaxSpeedFast < 0 || p.MaxSpeedSlow < 0 {
		return fmt.Errorf("max speeds must be non-negative, got fast=%d slow=%d", p.MaxSpeedFast, p.MaxSpeedSlow)
	}
	if p.MaxAcceleration < 0 {
		return fmt.Errorf("max_acceleration must be non-negative, got %d", p.MaxAcceleration)
	}
	if p.LookAhead < 0 || p.Slack < 0 {
		return fmt.Errorf("distance_look_ahead and slack must be non-negative, got %d and %d", p.LookAhead, p.Slack)
	}
	probs := []struct {
		name string
		v    float64
	}{
		{"probability_fluctuation", p.Fluctuation},
		{"breaking_down_probability", p.BreakDownProb},
		{"getting_repaired_probability", p.RepairProb},
	}
	for _, pr := range probs {
		if pr.v < 0 || pr.v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %g", pr.name, pr.v)
		}
	}
	if p.GlobalSpeedRule && p.GlobalMaxSpeed < 0 {
		return fmt.Errorf("global_max_speed must be non-negative, got %d", p.GlobalMaxSpeed)
	}
	if p.HasBrokenCar && p.NumSlowCars < 1 {
		return fmt.Errorf("has_broken_car needs at least one slow car to replace")
	}
	if p.Ticks < 0 {
		return fmt.Errorf("ticks must be non-negative, got %d", p.Ticks)
	}
	return nil
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	// Level is "info" (default), "debug" or "trace".
	Level string `json:"level" yaml:"level"`
}

// Config is the content of a run configuration file.
type Config struct {
	Simulation Params        `json:"simulation" yaml:"simulation"`
	Logging    LoggingConfig `json:"logging" yaml:"logging"`
}

// Default returns a Config with the reference parameters.
func Default() *Config {
	return &Config{
		Simulation: DefaultParams(),
		Logging:    LoggingConfig{Level: "info"},
	}
}

// Parse decodes a configuration document on top of the defaults. JSON input
// is accepted since it is valid YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads and validates a configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies NSSIM_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NSSIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Simulation.Seed = n
		}
	}
	if v := os.Getenv("NSSIM_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Ticks = n
		}
	}
	if v := os.Getenv("NSSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
