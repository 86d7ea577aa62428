package sampling

import (
	"math"

	"sticksolo/internal/kinematics"
)

const twoPi = 2 * math.Pi

// RootWindow bounds the root angle when sampling. The root joint is
// unbounded, so trials draw it from a window of plausible upright
// orientations for the current support side, anchored on the turn that
// contains q0.
func RootWindow(q0 float64, side kinematics.Side) kinematics.Clamp {
	if side == kinematics.Left {
		base := math.Floor((q0+math.Pi)/twoPi) * twoPi
		return kinematics.Clamp{Min: base - 5*math.Pi/6, Max: base + math.Pi/3}
	}
	base := math.Floor(q0/twoPi) * twoPi
	return kinematics.Clamp{Min: base + 2*math.Pi/3, Max: base + 11*math.Pi/6}
}

// finiteRange turns a clamp with infinite bounds into one a uniform draw can use.
func finiteRange(c kinematics.Clamp) (lo, hi float64) {
	lo, hi = c.Min, c.Max
	switch {
	case math.IsInf(lo, -1) && math.IsInf(hi, 1):
		return -math.Pi, math.Pi
	case math.IsInf(lo, -1):
		return hi - twoPi, hi
	case math.IsInf(hi, 1):
		return lo, lo + twoPi
	}
	return lo, hi
}
