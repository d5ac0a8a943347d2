package road

// wrap maps any integer position onto the ring [0, size).
func wrap(pos, size int) int {
	pos %= size
	if pos < 0 {
		pos += size
	}
	return pos
}

// FindAhead returns the speed of the nearest car ahead of pos on lane and the
// gap to it, wrapping around the ring. pos may lie one cell outside the ring;
// it is normalized first. A car sitting at pos itself is found last, at gap
// size-1. An empty lane yields the system max speed and NoLimit.
func (g *Grid) FindAhead(lane Lane, pos int) SpeedDistance {
	cells, err := g.cells(lane)
	if err != nil {
		return SpeedDistance{Speed: g.maxSpeed, Gap: NoLimit}
	}
	start := wrap(pos, g.size)
	for k := 1; k <= g.size; k++ {
		i := start + k
		if i >= g.size {
			i -= g.size
		}
		if cells[i] != Empty {
			return SpeedDistance{Speed: cells[i], Gap: k - 1}
		}
	}
	return SpeedDistance{Speed: g.maxSpeed, Gap: NoLimit}
}

// FindBehind is FindAhead scanning against the direction of travel.
func (g *Grid) FindBehind(lane Lane, pos int) SpeedDistance {
	cells, err := g.cells(lane)
	if err != nil {
		return SpeedDistance{Speed: g.maxSpeed, Gap: NoLimit}
	}
	start := wrap(pos, g.size)
	for k := 1; k <= g.size; k++ {
		i := start - k
		if i < 0 {
			i += g.size
		}
		if cells[i] != Empty {
			return SpeedDistance{Speed: cells[i], Gap: k - 1}
		}
	}
	return SpeedDistance{Speed: g.maxSpeed, Gap: NoLimit}
}
