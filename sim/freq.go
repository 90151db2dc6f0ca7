package sim

import (
	"fmt"
	"time"
)

// Freq defines the type of frequency
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Period returns the time between two consecutive ticks
func (f Freq) Period() time.Duration {
	if f == 0 {
		panic("frequency cannot be 0")
	}

	return time.Duration(float64(time.Second) / float64(f))
}

// Seconds converts a number of cycles into simulated seconds.
func (f Freq) Seconds(cycles VTimeInCycle) float64 {
	if f == 0 {
		panic("frequency cannot be 0")
	}

	return float64(cycles) / float64(f)
}

// Cycles returns how many whole cycles fit into the given simulated duration.
func (f Freq) Cycles(d time.Duration) VTimeInCycle {
	return VTimeInCycle(d.Seconds() * float64(f))
}

func (f Freq) String() string {
	switch {
	case f >= GHz:
		return fmt.Sprintf("%gGHz", float64(f/GHz))
	case f >= MHz:
		return fmt.Sprintf("%gMHz", float64(f/MHz))
	case f >= KHz:
		return fmt.Sprintf("%gKHz", float64(f/KHz))
	default:
		return fmt.Sprintf("%gHz", float64(f))
	}
}
