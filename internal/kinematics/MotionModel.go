// Package kinematics defines the MotionModel interface for the per-tick speed
// update of a car on the cell grid, along with built-in implementations.
//
// All speeds and gaps are integers in cells per tick and cells. A model is a
// pure function of its inputs; random draws are supplied by the caller so a
// run stays reproducible under a seeded source.
package kinematics

// MotionModel is the speed-update contract every car-following model must satisfy.
type MotionModel interface {
	// Next returns the speed for this tick given the current speed v, the
	// car's own ceiling vMax, the free gap ahead and one uniform draw in [0,1).
	// The result never exceeds gap.
	Next(v, vMax, gap int, draw float64) int

	// Coast returns the speed of a car that has lost traction and rolls to a stop.
	Coast(v int) int

	// Ceiling returns the highest speed the model lets a car with own
	// ceiling vMax reach.
	Ceiling(vMax int) int
}
