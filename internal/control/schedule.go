package control

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"sticksolo/internal/kinematics"
)

// Schedule weights a target pose against the analytic terms as ticks pass:
//
//	delta = a*(target - q) + b*End + g*COMX - d*COMY
//
// with a = 1/(1+t)^TargetExponent, g = COMXGain and
// d = COMYGain/(1+t)^COMYExponent. When NormalizeEnd is set
// b = EndScale/|End|, otherwise b = 1 - a.
type Schedule struct {
	TargetExponent float64    `json:"target_exponent" yaml:"target_exponent"`
	NormalizeEnd   bool       `json:"normalize_end" yaml:"normalize_end"`
	EndScale       float64    `json:"end_scale" yaml:"end_scale"`
	COMXGain       float64    `json:"com_x_gain" yaml:"com_x_gain"`
	COMYGain       float64    `json:"com_y_gain" yaml:"com_y_gain"`
	COMYExponent   float64    `json:"com_y_exponent" yaml:"com_y_exponent"`
	EndControl     EndControl `json:"end_control" yaml:"end_control"`
	COMXMode       COMXMode   `json:"com_x_mode" yaml:"com_x_mode"`
}

// ReachSchedule hands over from the sampled target pose to end tracking.
func ReachSchedule() Schedule {
	return Schedule{
		TargetExponent: 0.5,
		COMXGain:       0.1,
		COMYGain:       0.1,
		COMYExponent:   1,
		COMXMode:       PivotGoalMidpoint,
	}
}

// TransferSchedule decays the target pose faster and uses a unit-length end
// pull, for walking a single chain along footholds.
func TransferSchedule() Schedule {
	return Schedule{
		TargetExponent: 0.8,
		NormalizeEnd:   true,
		EndScale:       0.01,
		COMXGain:       0.1,
		COMYGain:       0.1,
		COMYExponent:   1,
		COMXMode:       PivotGoalMidpoint,
	}
}

// Weights returns the blend coefficients at tick t.
func (s Schedule) Weights(t int, end []float64) (alpha, beta, gamma, delta float64) {
	tt := 1 + float64(t)
	alpha = 1 / math.Pow(tt, s.TargetExponent)
	if s.NormalizeEnd {
		if norm := floats.Norm(end, 2); norm > 0 {
			beta = s.EndScale / norm
		}
	} else {
		beta = 1 - alpha
	}
	gamma = s.COMXGain
	delta = s.COMYGain / math.Pow(tt, s.COMYExponent)
	return alpha, beta, gamma, delta
}

// Step computes the blended angle delta for one chain. target may be nil, in
// which case only the analytic terms contribute.
func (s Schedule) Step(origin kinematics.Vec2, lengths, angles, target []float64, goal kinematics.Vec2, t int) []float64 {
	terms := Analyze(origin, lengths, angles, goal, s.EndControl, s.COMXMode)
	alpha, beta, gamma, delta := s.Weights(t, terms.End)

	out := make([]float64, len(angles))
	if target != nil {
		floats.SubTo(out, target, angles)
		floats.Scale(alpha, out)
	}
	floats.AddScaled(out, beta, terms.End)
	floats.AddScaled(out, gamma, terms.COMX)
	floats.AddScaled(out, -delta, terms.COMY)
	return out
}

// StepChain is Step over a chain's current state.
func (s Schedule) StepChain(c *kinematics.Chain, target []float64, goal kinematics.Vec2, t int) []float64 {
	return s.Step(c.Origin(), c.Lengths(), c.Angles(), target, goal, t)
}
