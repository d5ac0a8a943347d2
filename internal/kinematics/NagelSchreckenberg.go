package kinematics

// NagelSchreckenbergModelName is the identifier used in logs and reports.
const NagelSchreckenbergModelName = "nagel-schreckenberg"

// NagelSchreckenberg implements MotionModel with the NS rule set:
// accelerate, brake to the gap, random slow-down, then an optional global cap.
type NagelSchreckenberg struct {
	MaxAcceleration int     `json:"max_acceleration" yaml:"max_acceleration"` // cells/tick per tick
	Fluctuation     float64 `json:"probability_fluctuation" yaml:"probability_fluctuation"`
	GlobalSpeedRule bool    `json:"global_speed_rule" yaml:"global_speed_rule"`
	GlobalMaxSpeed  int     `json:"global_max_speed" yaml:"global_max_speed"`
}

// Accelerate raises v by MaxAcceleration without passing vMax.
func (m NagelSchreckenberg) Accelerate(v, vMax int) int {
	return min(v+m.MaxAcceleration, vMax)
}

// BrakeToGap lowers v so the car stops short of the car ahead.
func (m NagelSchreckenberg) BrakeToGap(v, gap int) int {
	return max(min(v, gap), 0)
}

// Fluctuate applies the random slow-down when draw falls below Fluctuation.
func (m NagelSchreckenberg) Fluctuate(v int, draw float64) int {
	if draw < m.Fluctuation && v > 0 {
		return v - 1
	}
	return v
}

// Cap applies the global speed limit when the rule is active.
func (m NagelSchreckenberg) Cap(v int) int {
	if m.GlobalSpeedRule {
		return max(min(v, m.GlobalMaxSpeed), 0)
	}
	return v
}

func (m NagelSchreckenberg) Next(v, vMax, gap int, draw float64) int {
	v = m.Accelerate(v, vMax)
	v = m.BrakeToGap(v, gap)
	v = m.Fluctuate(v, draw)
	return m.Cap(v)
}

func (m NagelSchreckenberg) Coast(v int) int {
	if v <= 0 {
		return 0
	}
	return v - 1
}

func (m NagelSchreckenberg) Ceiling(vMax int) int {
	return m.Cap(vMax)
}
