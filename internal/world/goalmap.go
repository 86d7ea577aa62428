package world

import (
	"errors"
	"math/rand"

	"sticksolo/internal/kinematics"
	"sticksolo/internal/nn"
)

// GoalMapPoint pairs a free-limb goal with the holding goal a policy picks for it.
type GoalMapPoint struct {
	Goal        kinematics.Vec2 `json:"goal"`
	HoldingGoal kinematics.Vec2 `json:"holding_goal"`
}

// GridSpec is an integer lattice divided by Scale: x runs over
// [XMin/Scale, XMax/Scale] and likewise y.
type GridSpec struct {
	XMin, XMax int
	YMin, YMax int
	Scale      float64
}

// DefaultGrid covers the default goal region around the origin.
func DefaultGrid() GridSpec {
	return GridSpec{XMin: -40, XMax: 15, YMin: -50, YMax: 50, Scale: 60}
}

// GoalMap evaluates policy over a grid of free-limb goals with the body
// held at the origin. Only limb lengths and the goal enter the encoding, so
// the sampled joint angles do not matter.
func GoalMap(w World, policy *nn.FCN, grid GridSpec) ([]GoalMapPoint, error) {
	if grid.XMin >= grid.XMax || grid.YMin >= grid.YMax {
		return nil, errors.New("goal map grid ranges must be increasing")
	}
	if !(grid.Scale > 0) {
		return nil, errors.New("goal map scale must be > 0")
	}
	w.Origin = kinematics.Vec2{}
	pair, err := w.NewPair(rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, err
	}

	points := make([]GoalMapPoint, 0, (grid.XMax-grid.XMin+1)*(grid.YMax-grid.YMin+1))
	for xi := grid.XMin; xi <= grid.XMax; xi++ {
		for yi := grid.YMin; yi <= grid.YMax; yi++ {
			goal := kinematics.V(float64(xi)/grid.Scale, float64(yi)/grid.Scale)
			input, scale := Encode(pair, goal)
			out, err := policy.Evaluate(input)
			if err != nil {
				return nil, err
			}
			points = append(points, GoalMapPoint{Goal: goal, HoldingGoal: Decode(out, scale, kinematics.Vec2{})})
		}
	}
	return points, nil
}
