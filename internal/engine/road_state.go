package engine

import (
	"errors"
	"fmt"

	"github.com/cxd309/nstraffic/internal/kinematics"
	"github.com/cxd309/nstraffic/internal/road"
	"github.com/cxd309/nstraffic/internal/vehicle"
)

// ErrInvariant reports an internal-consistency fault inside a tick. It is
// never recoverable; the run must be discarded.
var ErrInvariant = errors.New("simulation invariant violated")

// RoadState owns the lane grids and the car registry of one run.
//
// Each tick has two passes, each reading only an immutable snapshot:
//
//  1. Lane pass - every car looks at the current grids and decides whether to
//     change lane. The lane-resolved grid is written to the spare buffer and
//     then becomes the snapshot for pass 2.
//
//  2. Motion pass - every car reads the gap ahead on its chosen lane, adapts
//     its speed and moves; the result is written to the spare buffer, which
//     becomes the current grid.
type RoadState struct {
	cur       *road.Grid
	next      *road.Grid
	cars      []*vehicle.Car
	motion    kinematics.MotionModel
	lanes     vehicle.LaneRule
	rng       vehicle.Rand
	crossings int
}

// NewRoadState returns an empty road of size cells per lane.
func NewRoadState(size, systemMaxSpeed int, motion kinematics.MotionModel, lanes vehicle.LaneRule, rng vehicle.Rand) (*RoadState, error) {
	cur, err := road.NewGrid(size, systemMaxSpeed)
	if err != nil {
		return nil, err
	}
	next, err := road.NewGrid(size, systemMaxSpeed)
	if err != nil {
		return nil, err
	}
	return &RoadState{cur: cur, next: next, motion: motion, lanes: lanes, rng: rng}, nil
}

// AddCar registers a car and places it on the current grid.
func (rs *RoadState) AddCar(c *vehicle.Car) error {
	if err := rs.cur.Place(c.Lane, c.Position, c.Speed); err != nil {
		return fmt.Errorf("placing car %d: %w", c.ID, err)
	}
	rs.cars = append(rs.cars, c)
	return nil
}

// Step advances every car by one synchronous tick.
func (rs *RoadState) Step() error {
	// Pass 1: lane changes against the current grids.
	rs.next.Clear()
	for _, c := range rs.cars {
		ownFront := rs.cur.FindAhead(c.Lane, c.Position)
		other := c.Lane.Other()
		otherFront := rs.cur.FindAhead(other, c.Position-1)
		otherBehind := rs.cur.FindBehind(other, c.Position+1)

		c.ChangeLane(rs.lanes, ownFront, otherFront, otherBehind)

		if err := rs.next.Place(c.Lane, c.Position, c.Speed); err != nil {
			return fmt.Errorf("%w: car %d lane change: %w", ErrInvariant, c.ID, err)
		}
	}
	rs.cur, rs.next = rs.next, rs.cur

	// Pass 2: speed adaptation and motion against the lane-resolved grids.
	rs.next.Clear()
	size := rs.cur.Size()
	for _, c := range rs.cars {
		front := rs.cur.FindAhead(c.Lane, c.Position)
		if front.Gap < 0 {
			return fmt.Errorf("%w: car %d negative gap %d", ErrInvariant, c.ID, front.Gap)
		}

		v := c.FollowSpeed(rs.motion, front, rs.rng)
		if v < 0 || v > front.Gap {
			return fmt.Errorf("%w: car %d speed %d exceeds gap %d", ErrInvariant, c.ID, v, front.Gap)
		}
		if limit := rs.motion.Ceiling(c.MaxSpeed); v > limit {
			return fmt.Errorf("%w: car %d speed %d exceeds limit %d", ErrInvariant, c.ID, v, limit)
		}

		if c.Advance(size) {
			rs.crossings++
		}

		if err := rs.next.Place(c.Lane, c.Position, c.Speed); err != nil {
			return fmt.Errorf("%w: car %d move: %w", ErrInvariant, c.ID, err)
		}
	}
	rs.cur, rs.next = rs.next, rs.cur
	return nil
}

// Crossings returns how many times a car has passed the end of the ring.
func (rs *RoadState) Crossings() int { return rs.crossings }

// Size returns the number of cells per lane.
func (rs *RoadState) Size() int { return rs.cur.Size() }

// Lanes returns copies of the current left and right lane cells.
func (rs *RoadState) Lanes() (left, right []int) {
	return rs.cur.Lane(road.Left), rs.cur.Lane(road.Right)
}

// Cars returns a snapshot of every car in registry order.
func (rs *RoadState) Cars() []vehicle.CarLog {
	logs := make([]vehicle.CarLog, len(rs.cars))
	for i, c := range rs.cars {
		logs[i] = c.GetLog()
	}
	return logs
}
