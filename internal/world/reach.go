package world

import (
	"context"
	"fmt"

	"sticksolo/internal/control"
	"sticksolo/internal/kinematics"
	"sticksolo/internal/sampling"
)

// GoalPair holds one goal per limb.
type GoalPair struct {
	Holding    kinematics.Vec2 `json:"holding"`
	NonHolding kinematics.Vec2 `json:"non_holding"`
}

// Targets holds one sampled pose per limb.
type Targets struct {
	Holding    []float64 `json:"holding"`
	NonHolding []float64 `json:"non_holding"`
}

// Encode turns a body and a free-limb goal into network input: both limbs'
// link lengths followed by the goal relative to the holding origin, all
// divided by the total limb length. It also returns that scale for Decode.
func Encode(pair *kinematics.HoldingPair, goal kinematics.Vec2) ([]float64, float64) {
	holding := pair.Holding()
	hl := holding.Lengths()
	nl := pair.NonHolding().Lengths()
	scale := pair.TotalMass()
	rel := goal.Sub(holding.Origin()).Scale(1 / scale)

	input := make([]float64, 0, len(hl)+len(nl)+2)
	for _, l := range hl {
		input = append(input, l/scale)
	}
	for _, l := range nl {
		input = append(input, l/scale)
	}
	return append(input, rel.X, rel.Y), scale
}

// Decode maps the first two network outputs back to world space.
func Decode(output []float64, scale float64, origin kinematics.Vec2) kinematics.Vec2 {
	return kinematics.V(output[0], output[1]).Scale(scale).Add(origin)
}

// Solve samples a target pose for each limb: first the holding limb toward
// its goal, then the free limb anchored where that pose puts the holding end.
func Solve(ctx context.Context, sampler sampling.Sampler, pair *kinematics.HoldingPair, goals GoalPair) (Targets, error) {
	hp := sampling.ProblemFromChain(pair.Holding(), goals.Holding)
	held, err := sampler.NoPrior(ctx, hp, sampling.ReachLoss)
	if err != nil {
		return Targets{}, fmt.Errorf("solve holding limb: %w", err)
	}

	np := sampling.ProblemFromChain(pair.NonHolding(), goals.NonHolding)
	np.Origin, _ = kinematics.EndAndCOM(hp.Origin, hp.Lengths, held.Angles)
	free, err := sampler.NoPrior(ctx, np, sampling.ReachLoss)
	if err != nil {
		return Targets{}, fmt.Errorf("solve non-holding limb: %w", err)
	}
	return Targets{Holding: held.Angles, NonHolding: free.Angles}, nil
}

// Control applies one blended control step to both limbs.
func Control(pair *kinematics.HoldingPair, schedule control.Schedule, targets Targets, goals GoalPair, tick int) {
	hd := schedule.StepChain(pair.Holding(), targets.Holding, goals.Holding, tick)
	nd := schedule.StepChain(pair.NonHolding(), targets.NonHolding, goals.NonHolding, tick)
	pair.Update(hd, nd)
}
