// Package vehicle defines the car types of the two-lane simulation and the
// per-tick rule engine each car runs: lane change, car following and the
// breakdown state machine of the broken-car variant.
package vehicle

import (
	"fmt"

	"github.com/cxd309/nstraffic/internal/kinematics"
	"github.com/cxd309/nstraffic/internal/road"
)

// Variant selects the behavior of a car.
type Variant string

const (
	VariantFast   Variant = "fast"
	VariantSlow   Variant = "slow"
	VariantBroken Variant = "broken"
)

// State describes the breakdown state of a car. Only broken-variant cars ever
// leave StateNormal.
type State string

const (
	StateNormal State = "normal"
	StateBroken State = "broken"
)

// Rand is the source of uniform draws in [0,1) threaded through the rule engine.
type Rand interface {
	Float64() float64
}

// Spec holds the static parameters of a car.
type Spec struct {
	ID       int     `json:"id"`
	Variant  Variant `json:"variant"`
	MaxSpeed int     `json:"max_speed"` // cells/tick
	// Transition probabilities per tick; only the broken variant uses them.
	BreakDownProb float64 `json:"break_down_prob,omitempty"`
	RepairProb    float64 `json:"repair_prob,omitempty"`
}

// Car is a Spec enriched with live simulation state.
type Car struct {
	Spec
	Lane             road.Lane `json:"lane"`
	Position         int       `json:"position"`
	Speed            int       `json:"speed"`
	State            State     `json:"state"`
	TraveledDistance int       `json:"traveled_distance"`
	MaxReachedSpeed  int       `json:"max_reached_speed"`
}

// New creates a car from its static spec at an initial lane, position and speed.
func New(spec Spec, lane road.Lane, position, speed int) (*Car, error) {
	switch spec.Variant {
	case VariantFast, VariantSlow, VariantBroken:
	default:
		return nil, fmt.Errorf("car %d: unknown variant %q", spec.ID, spec.Variant)
	}
	if lane != road.Right && lane != road.Left {
		return nil, fmt.Errorf("car %d: %w: %d", spec.ID, road.ErrInvalidLane, int(lane))
	}
	if spec.MaxSpeed < 0 {
		return nil, fmt.Errorf("car %d: negative max speed %d", spec.ID, spec.MaxSpeed)
	}
	if speed < 0 || speed > spec.MaxSpeed {
		return nil, fmt.Errorf("car %d: initial speed %d not in [0, %d]", spec.ID, speed, spec.MaxSpeed)
	}
	if position < 0 {
		return nil, fmt.Errorf("car %d: %w: %d", spec.ID, road.ErrOutOfRange, position)
	}
	for _, p := range []float64{spec.BreakDownProb, spec.RepairProb} {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("car %d: probability %g not in [0, 1]", spec.ID, p)
		}
	}
	return &Car{
		Spec:            spec,
		Lane:            lane,
		Position:        position,
		Speed:           speed,
		State:           StateNormal,
		MaxReachedSpeed: speed,
	}, nil
}

// IsBroken reports whether the car is currently broken down.
func (c *Car) IsBroken() bool { return c.State == StateBroken }

// FollowSpeed runs the car-following half of the tick against the free gap
// ahead on the car's current lane and returns the new speed. A broken-down
// car coasts instead, still never faster than the gap. Broken-variant cars
// then draw for a state transition.
func (c *Car) FollowSpeed(m kinematics.MotionModel, front road.SpeedDistance, rng Rand) int {
	if c.IsBroken() {
		c.Speed = max(min(m.Coast(c.Speed), front.Gap), 0)
	} else {
		c.Speed = m.Next(c.Speed, c.MaxSpeed, front.Gap, rng.Float64())
	}
	if c.Variant == VariantBroken {
		c.assessBreakdown(rng.Float64())
	}
	if c.Speed > c.MaxReachedSpeed {
		c.MaxReachedSpeed = c.Speed
	}
	return c.Speed
}

// assessBreakdown moves the state machine after this tick's speed is set.
func (c *Car) assessBreakdown(draw float64) {
	switch c.State {
	case StateBroken:
		if c.RepairProb > 0 && draw > 1-c.RepairProb {
			c.State = StateNormal
		}
	default:
		if draw < c.BreakDownProb {
			c.State = StateBroken
		}
	}
}

// AdaptSpeed runs the whole per-tick rule for one car against a single
// snapshot: lane change, then car following on the selected lane. otherFront
// and otherBehind are measured on the other lane including the cell beside
// the car. It returns the new speed; the position is left to Advance.
//
// RoadState calls the two halves separately so that following reads the
// lane-resolved grid. AdaptSpeed is the single-snapshot form; when no car
// changes lane in a tick both give the same speeds.
func (c *Car) AdaptSpeed(m kinematics.MotionModel, rule LaneRule, ownFront, otherFront, otherBehind road.SpeedDistance, rng Rand) int {
	front := ownFront
	if c.ChangeLane(rule, ownFront, otherFront, otherBehind) {
		front = sideFront(otherFront)
	}
	return c.FollowSpeed(m, front, rng)
}

// Advance moves the car by its speed around a ring of size cells. It reports
// whether the car passed the end of the ring.
func (c *Car) Advance(size int) bool {
	next := c.Position + c.Speed
	c.TraveledDistance += c.Speed
	c.Position = next % size
	return next >= size
}

// CarLog is a point-in-time snapshot of a car for renderers and reports.
type CarLog struct {
	ID               int       `json:"id"`
	Variant          Variant   `json:"variant"`
	Lane             road.Lane `json:"lane"`
	Position         int       `json:"position"`
	Speed            int       `json:"speed"`
	State            State     `json:"state"`
	TraveledDistance int       `json:"traveled_distance"`
	MaxReachedSpeed  int       `json:"max_reached_speed"`
	Color            string    `json:"color"`
}

// GetLog returns a point-in-time snapshot of the car.
func (c *Car) GetLog() CarLog {
	return CarLog{
		ID:               c.ID,
		Variant:          c.Variant,
		Lane:             c.Lane,
		Position:         c.Position,
		Speed:            c.Speed,
		State:            c.State,
		TraveledDistance: c.TraveledDistance,
		MaxReachedSpeed:  c.MaxReachedSpeed,
		Color:            c.Color(),
	}
}

// Color returns the display color of the car as a hex RGB string.
func (c *Car) Color() string {
	switch c.Variant {
	case VariantFast:
		return "#ff4000"
	case VariantSlow:
		return "#0040ff"
	default:
		if c.IsBroken() {
			return "#808080"
		}
		return "#00ff00"
	}
}
