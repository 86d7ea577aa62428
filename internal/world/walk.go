package world

import (
	"context"
	"errors"
	"fmt"

	"sticksolo/internal/control"
	"sticksolo/internal/kinematics"
	"sticksolo/internal/nn"
	"sticksolo/internal/sampling"
)

// Walker moves a body hand over hand along a path. Each step asks the
// policy trained for the current holding side where to put the holding
// limb, reaches the next path point with the free limb, then switches hold.
type Walker struct {
	pair     *kinematics.HoldingPair
	path     []kinematics.Vec2
	policies map[kinematics.Side]*nn.FCN
	goals    GoalPair
	targets  Targets
	planned  bool
	ticks    int
	switches int

	Sampler  sampling.Sampler
	Schedule control.Schedule
}

// NewWalker needs a policy for every side the holding limb can end up on;
// a walk that only ever holds from one side may pass just that one.
func NewWalker(pair *kinematics.HoldingPair, path []kinematics.Vec2, policies map[kinematics.Side]*nn.FCN, sampler sampling.Sampler) (*Walker, error) {
	if pair == nil {
		return nil, errors.New("walker requires a body")
	}
	if len(policies) == 0 {
		return nil, errors.New("walker requires at least one policy")
	}
	return &Walker{
		pair:     pair,
		path:     append([]kinematics.Vec2(nil), path...),
		policies: policies,
		Sampler:  sampler,
		Schedule: control.ReachSchedule(),
	}, nil
}

func (w *Walker) Pair() *kinematics.HoldingPair { return w.pair }
func (w *Walker) Goals() GoalPair               { return w.goals }
func (w *Walker) Switches() int                 { return w.switches }
func (w *Walker) Done() bool                    { return len(w.path) == 0 }

// Tick advances the walk by one step.
func (w *Walker) Tick(ctx context.Context) (control.Event, error) {
	if len(w.path) == 0 {
		return control.EventIdle, nil
	}
	if !w.planned {
		if err := w.plan(ctx); err != nil {
			return control.EventIdle, err
		}
	}

	origin := w.pair.Holding().Origin()
	next := w.path[0]
	if control.BehindPivot(w.pair.Holding().Side(), origin, next) {
		w.path = append([]kinematics.Vec2{origin}, w.path...)
		return control.EventBacktrack, w.plan(ctx)
	}

	if w.pair.NonHolding().LastVertex().Dist(next) < kinematics.GoalReachedSlack {
		w.pair.SwitchHold()
		w.path = w.path[1:]
		w.ticks = 0
		w.switches++
		if len(w.path) == 0 {
			return control.EventFinished, nil
		}
		return control.EventSwitched, w.plan(ctx)
	}

	Control(w.pair, w.Schedule, w.targets, w.goals, w.ticks)
	w.ticks++
	return control.EventMoved, nil
}

func (w *Walker) plan(ctx context.Context) error {
	side := w.pair.Holding().Side()
	policy, ok := w.policies[side]
	if !ok {
		return fmt.Errorf("no policy for holding side %s", side)
	}
	free := w.path[0]
	input, scale := Encode(w.pair, free)
	out, err := policy.Evaluate(input)
	if err != nil {
		return fmt.Errorf("evaluate %s policy: %w", side, err)
	}
	goals := GoalPair{Holding: Decode(out, scale, w.pair.Holding().Origin()), NonHolding: free}
	targets, err := Solve(ctx, w.Sampler, w.pair, goals)
	if err != nil {
		return err
	}
	w.goals, w.targets, w.planned = goals, targets, true
	return nil
}
