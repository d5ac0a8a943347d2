package vehicle

import "github.com/cxd309/nstraffic/internal/road"

// LaneRule holds the lane-change parameters.
type LaneRule struct {
	LookAhead int  `json:"distance_look_ahead" yaml:"distance_look_ahead"` // cells
	Slack     int  `json:"slack" yaml:"slack"`                             // cells
	Symmetric bool `json:"symmetric_rule" yaml:"symmetric_rule"`
}

// sideFront converts a front query taken from the cell behind the car on the
// other lane into the free gap ahead of the car itself on that lane.
func sideFront(sd road.SpeedDistance) road.SpeedDistance {
	if sd.Unbounded() || sd.Gap == 0 {
		return sd
	}
	return road.SpeedDistance{Speed: sd.Speed, Gap: sd.Gap - 1}
}

// ChangeLane decides whether the car moves to the other lane this tick and
// switches c.Lane when it does. ownFront is the free gap ahead on the current
// lane. otherFront and otherBehind are measured on the other lane from one
// cell behind and one cell ahead of the car, so a car alongside shows up with
// gap 0 in both.
//
// Symmetric rule: a car changes in either direction when its own gap is short
// of the look-ahead (or of its speed), the other lane offers more room ahead
// and the car behind there is at least Slack cells away.
//
// Asymmetric rule: the right lane is the travel lane. Right to left follows
// the symmetric criteria (overtake); left to right is the return move and
// only needs LookAhead free cells ahead and Slack behind.
func (c *Car) ChangeLane(rule LaneRule, ownFront, otherFront, otherBehind road.SpeedDistance) bool {
	if c.IsBroken() {
		return false
	}
	// target cell occupied
	if otherFront.Gap < 1 || otherBehind.Gap < 1 {
		return false
	}
	if otherBehind.Gap < rule.Slack {
		return false
	}
	target := sideFront(otherFront)

	if !rule.Symmetric && c.Lane == road.Left {
		if target.Gap < rule.LookAhead {
			return false
		}
	} else {
		motivated := ownFront.Gap < rule.LookAhead || ownFront.Gap < c.Speed
		if !motivated || target.Gap <= ownFront.Gap {
			return false
		}
	}

	c.Lane = c.Lane.Other()
	return true
}
