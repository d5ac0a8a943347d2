// Package road provides the ring-shaped two-lane cell grid of the traffic
// simulation and the neighbor queries that scan it.
package road

import (
	"errors"
	"fmt"
	"math"
)

// Lane identifies one of the two lanes of the road.
type Lane int

const (
	Right Lane = 1
	Left  Lane = 2
)

// Empty marks a cell that holds no car. Occupied cells hold the car's speed.
const Empty = -1

// NoLimit is the gap reported when a lane holds no other car. Consumers only
// compare against it; it never takes part in addition.
const NoLimit = math.MaxInt32

var (
	// ErrOutOfRange reports a position outside [0, size).
	ErrOutOfRange = errors.New("position out of range")
	// ErrCollision reports a write into a cell that is already occupied.
	ErrCollision = errors.New("cell already occupied")
	// ErrInvalidLane reports a lane value other than Right or Left.
	ErrInvalidLane = errors.New("invalid lane")
)

// Other returns the opposite lane.
func (l Lane) Other() Lane {
	if l == Left {
		return Right
	}
	return Left
}

func (l Lane) String() string {
	switch l {
	case Right:
		return "right"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("lane(%d)", int(l))
	}
}

// MarshalText encodes the lane as "right" or "left".
func (l Lane) MarshalText() ([]byte, error) {
	if l != Right && l != Left {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLane, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes "right" or "left".
func (l *Lane) UnmarshalText(b []byte) error {
	switch string(b) {
	case "right":
		*l = Right
	case "left":
		*l = Left
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLane, string(b))
	}
	return nil
}

// SpeedDistance is the result of a neighbor query: the neighbor's speed and
// the number of empty cells strictly between the query point and it.
type SpeedDistance struct {
	Speed int `json:"speed"`
	Gap   int `json:"gap"`
}

// Unbounded reports whether no neighbor was found.
func (sd SpeedDistance) Unbounded() bool { return sd.Gap == NoLimit }

// Grid holds one cell array per lane. Cell values are car speeds or Empty.
type Grid struct {
	size     int
	maxSpeed int // reported as the neighbor speed on an empty lane
	right    []int
	left     []int
}

// NewGrid returns an empty grid of size cells per lane. systemMaxSpeed is the
// speed reported by neighbor queries that find no car.
func NewGrid(size, systemMaxSpeed int) (*Grid, error) {
	if size <= 0 {
		return nil, fmt.Errorf("road size must be positive, got %d", size)
	}
	if systemMaxSpeed < 0 {
		return nil, fmt.Errorf("system max speed must be non-negative, got %d", systemMaxSpeed)
	}
	g := &Grid{
		size:     size,
		maxSpeed: systemMaxSpeed,
		right:    make([]int, size),
		left:     make([]int, size),
	}
	g.Clear()
	return g, nil
}

// Size returns the number of cells per lane.
func (g *Grid) Size() int { return g.size }

// Clear empties every cell of both lanes.
func (g *Grid) Clear() {
	for i := range g.right {
		g.right[i] = Empty
		g.left[i] = Empty
	}
}

// Place writes speed into the cell at (lane, pos). The cell must be empty.
func (g *Grid) Place(lane Lane, pos, speed int) error {
	cells, err := g.cells(lane)
	if err != nil {
		return err
	}
	if pos < 0 || pos >= g.size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, pos, g.size)
	}
	if speed < 0 {
		return fmt.Errorf("negative speed %d at %s/%d", speed, lane, pos)
	}
	if cells[pos] != Empty {
		return fmt.Errorf("%w: %s/%d", ErrCollision, lane, pos)
	}
	cells[pos] = speed
	return nil
}

// At returns the cell value at (lane, pos), or Empty for an invalid address.
func (g *Grid) At(lane Lane, pos int) int {
	cells, err := g.cells(lane)
	if err != nil || pos < 0 || pos >= g.size {
		return Empty
	}
	return cells[pos]
}

// Lane returns a copy of the cells of one lane.
func (g *Grid) Lane(lane Lane) []int {
	cells, err := g.cells(lane)
	if err != nil {
		return nil
	}
	out := make([]int, len(cells))
	copy(out, cells)
	return out
}

// Count returns the number of occupied cells on a lane.
func (g *Grid) Count(lane Lane) int {
	cells, err := g.cells(lane)
	if err != nil {
		return 0
	}
	n := 0
	for _, v := range cells {
		if v != Empty {
			n++
		}
	}
	return n
}

func (g *Grid) cells(lane Lane) ([]int, error) {
	switch lane {
	case Right:
		return g.right, nil
	case Left:
		return g.left, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidLane, int(lane))
	}
}
