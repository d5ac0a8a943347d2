// Package render draws the lanes of a road as text, one character per cell.
package render

import (
	"strings"

	"github.com/cxd309/nstraffic/internal/road"
)

// Symbol returns the character for a cell: '_' for an empty cell, the speed
// as a hex digit up to 15, '?' above that.
func Symbol(cell int) byte {
	switch {
	case cell == road.Empty:
		return '_'
	case cell >= 0 && cell <= 9:
		return byte('0' + cell)
	case cell >= 10 && cell <= 15:
		return byte('A' + cell - 10)
	default:
		return '?'
	}
}

// Lane renders one lane framed by '|'.
func Lane(cells []int) string {
	var b strings.Builder
	b.Grow(len(cells) + 2)
	b.WriteByte('|')
	for _, c := range cells {
		b.WriteByte(Symbol(c))
	}
	b.WriteByte('|')
	return b.String()
}

// Lanes renders the left lane above the right lane, followed by a blank line.
func Lanes(left, right []int) string {
	return Lane(left) + "\n" + Lane(right) + "\n"
}
