// Package control computes per-joint steering signals for a kinematic chain
// and blends them into angle deltas each tick.
package control

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"sticksolo/internal/kinematics"
)

// EndControl selects how the end-tracking term maps the end error to joints.
type EndControl int

const (
	// JacobianTranspose steps along J^T (goal - end).
	JacobianTranspose EndControl = iota
	// DampedLeastSquares steps along J^T (J J^T + lambda^2 I)^-1 (goal - end).
	DampedLeastSquares
)

// DampingFactor is lambda for DampedLeastSquares.
const DampingFactor = 0.1

// COMXMode selects the horizontal target for the centre of mass.
type COMXMode int

const (
	// Pivot keeps the centre of mass over the chain origin.
	Pivot COMXMode = iota
	// PivotGoalMidpoint keeps it halfway between origin and goal.
	PivotGoalMidpoint
)

func (m COMXMode) String() string {
	switch m {
	case Pivot:
		return "pivot"
	case PivotGoalMidpoint:
		return "pivot_goal_midpoint"
	default:
		return fmt.Sprintf("com_x_mode(%d)", int(m))
	}
}

func (e EndControl) String() string {
	switch e {
	case JacobianTranspose:
		return "jacobian_transpose"
	case DampedLeastSquares:
		return "damped_least_squares"
	default:
		return fmt.Sprintf("end_control(%d)", int(e))
	}
}

// Terms holds three independent per-joint signals of length n.
//
// End pulls the free end toward the goal. COMX is a descent step moving the
// centre of mass toward its horizontal target. COMY is the direction that
// raises the centre of mass; subtract it to lower the body.
type Terms struct {
	End  []float64
	COMX []float64
	COMY []float64
}

// Analyze evaluates the three control terms for one chain configuration.
func Analyze(origin kinematics.Vec2, lengths, angles []float64, goal kinematics.Vec2, end EndControl, mode COMXMode) Terms {
	pose := kinematics.ForwardKinematics(origin, lengths, angles)
	terms := Terms{
		End:  endTerm(pose.Vertices, goal, end),
		COMX: make([]float64, len(lengths)),
		COMY: make([]float64, len(lengths)),
	}

	n := float64(len(lengths))
	target := origin.X
	if mode == PivotGoalMidpoint {
		target = (origin.X + goal.X) / 2
	}
	errX := pose.COM.X - target

	var gx, gy float64
	for i := range lengths {
		r := pose.Vertices[i].Sub(origin)
		share := n - float64(i) + 0.5
		gx -= 2 * errX / n * r.Y * share
		gy += r.X / n * share
		if i >= 1 {
			gx /= float64(i)
			gy /= float64(i)
		}
		terms.COMX[i] = -gx
		terms.COMY[i] = gy
	}
	return terms
}

// AnalyzeChain is Analyze over the chain's current state.
func AnalyzeChain(c *kinematics.Chain, goal kinematics.Vec2, end EndControl, mode COMXMode) Terms {
	return Analyze(c.Origin(), c.Lengths(), c.Angles(), goal, end, mode)
}

func endTerm(vertices []kinematics.Vec2, goal kinematics.Vec2, mode EndControl) []float64 {
	n := len(vertices) - 1
	end := vertices[n]
	jac := mat.NewDense(2, n, nil)
	for i := 0; i < n; i++ {
		r := end.Sub(vertices[i])
		jac.Set(0, i, -r.Y)
		jac.Set(1, i, r.X)
	}
	diff := goal.Sub(end)
	dx := mat.NewVecDense(2, []float64{diff.X, diff.Y})

	if mode == DampedLeastSquares {
		var jjt mat.Dense
		jjt.Mul(jac, jac.T())
		for k := 0; k < 2; k++ {
			jjt.Set(k, k, jjt.At(k, k)+DampingFactor*DampingFactor)
		}
		var w mat.VecDense
		if err := w.SolveVec(&jjt, dx); err == nil {
			dx = &w
		}
	}

	var dq mat.VecDense
	dq.MulVec(jac.T(), dx)
	return append([]float64(nil), dq.RawVector().Data...)
}
