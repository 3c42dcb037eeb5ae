package desk

import (
	"fmt"
	"math"
)

// Height is a desk height in the desk's native units of 0.1 mm.
type Height int

// Physical travel limits of the desk, in native units.
const (
	MinHeight Height = 6200  // 62.0 cm
	MaxHeight Height = 12700 // 127.0 cm
)

// HeightFromCm converts a height in centimeters to native units.
func HeightFromCm(cm float64) Height {
	return Height(math.Round(cm * 100))
}

// Cm returns the height in centimeters.
func (h Height) Cm() float64 {
	return float64(h) / 100
}

// InRange reports whether the height is within the desk's physical travel.
func (h Height) InRange() bool {
	return h >= MinHeight && h <= MaxHeight
}

func (h Height) String() string {
	return fmt.Sprintf("%.1f cm", h.Cm())
}

func (h Height) abs() Height {
	if h < 0 {
		return -h
	}
	return h
}
