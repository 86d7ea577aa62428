package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"sticksolo/internal/kinematics"
	"sticksolo/internal/sampling"
)

// Event reports what a PathFollower tick did.
type Event int

const (
	EventIdle Event = iota
	EventMoved
	EventBacktrack
	EventSwitched
	EventFinished
)

func (e Event) String() string {
	switch e {
	case EventIdle:
		return "idle"
	case EventMoved:
		return "moved"
	case EventBacktrack:
		return "backtrack"
	case EventSwitched:
		return "switched"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// PathFollower walks a single chain across an ordered list of footholds by
// alternately steering its free end to the next foothold and pivoting on it.
type PathFollower struct {
	chain    *kinematics.Chain
	path     []kinematics.Vec2
	target   []float64
	ticks    int
	switches int

	Schedule Schedule
	Sampler  sampling.Sampler
	// Mutation is the noise half-width used when reseeding the target pose.
	Mutation float64
	Logger   *slog.Logger
}

func NewPathFollower(chain *kinematics.Chain, path []kinematics.Vec2, sampler sampling.Sampler) (*PathFollower, error) {
	if chain == nil {
		return nil, errors.New("path follower requires a chain")
	}
	return &PathFollower{
		chain:    chain,
		path:     append([]kinematics.Vec2(nil), path...),
		Schedule: TransferSchedule(),
		Sampler:  sampler,
		Mutation: sampling.DefaultMutation,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

func (f *PathFollower) Chain() *kinematics.Chain { return f.chain }
func (f *PathFollower) Done() bool               { return len(f.path) == 0 }
func (f *PathFollower) Switches() int            { return f.switches }
func (f *PathFollower) Remaining() int           { return len(f.path) }

// Goal returns the foothold currently being reached for.
func (f *PathFollower) Goal() (kinematics.Vec2, bool) {
	if len(f.path) == 0 {
		return kinematics.Vec2{}, false
	}
	return f.path[0], true
}

// Target returns the sampled pose the schedule is blending toward.
func (f *PathFollower) Target() []float64 { return append([]float64(nil), f.target...) }

// Start samples the first target pose. Tick calls it when needed.
func (f *PathFollower) Start(ctx context.Context) error {
	if len(f.path) == 0 {
		return nil
	}
	return f.reseed(ctx)
}

// Tick advances the chain by one control step.
func (f *PathFollower) Tick(ctx context.Context) (Event, error) {
	if len(f.path) == 0 {
		return EventIdle, nil
	}
	if f.target == nil {
		if err := f.reseed(ctx); err != nil {
			return EventIdle, err
		}
	}

	origin := f.chain.Origin()
	goal := f.path[0]
	if BehindPivot(f.chain.Side(), origin, goal) {
		// the foothold is on the other side; swing back over the pivot first
		f.path = append([]kinematics.Vec2{origin}, f.path...)
		f.Logger.Debug("backtrack", "origin_x", origin.X, "goal_x", goal.X)
		return EventBacktrack, f.reseed(ctx)
	}

	if f.chain.LastVertex().Dist(goal) < kinematics.GoalReachedSlack {
		f.chain.SwitchPivot()
		f.path = f.path[1:]
		f.ticks = 0
		f.switches++
		f.Logger.Debug("switch pivot", "switches", f.switches, "remaining", len(f.path), "side", f.chain.Side().String())
		if len(f.path) == 0 {
			return EventFinished, nil
		}
		return EventSwitched, f.reseed(ctx)
	}

	f.chain.Update(f.Schedule.StepChain(f.chain, f.target, goal, f.ticks))
	f.ticks++
	return EventMoved, nil
}

// Run ticks until the path is exhausted or maxTicks steps have been taken.
func (f *PathFollower) Run(ctx context.Context, maxTicks int, observe func(Event)) (int, error) {
	for i := 0; i < maxTicks; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		ev, err := f.Tick(ctx)
		if err != nil {
			return i, err
		}
		if observe != nil {
			observe(ev)
		}
		if ev == EventFinished || ev == EventIdle {
			return i + 1, nil
		}
	}
	return maxTicks, nil
}

// BehindPivot reports whether goal lies on the far side of the pivot for a
// chain supporting from side, by more than GoalReachedSlack.
func BehindPivot(side kinematics.Side, origin, goal kinematics.Vec2) bool {
	if side == kinematics.Left {
		return goal.X-origin.X < -kinematics.GoalReachedSlack
	}
	return goal.X-origin.X > kinematics.GoalReachedSlack
}

func (f *PathFollower) reseed(ctx context.Context) error {
	goal := f.path[0]
	problem := sampling.ProblemFromChain(f.chain, goal)
	res, err := f.Sampler.FromCurrentState(ctx, problem, f.Mutation, sampling.TransferLoss(problem.Origin))
	if err != nil {
		return fmt.Errorf("reseed target pose: %w", err)
	}
	f.target = res.Angles
	return nil
}

// TwoLoopPath builds the figure-eight foothold course: parts points around a
// circle left of the origin, then parts points around one to the right.
func TwoLoopPath(parts int, radius float64) []kinematics.Vec2 {
	path := make([]kinematics.Vec2, 0, 2*parts)
	for i := 0; i < parts; i++ {
		theta := 2 * math.Pi * float64(i) / float64(parts)
		path = append(path, kinematics.V(-1+math.Cos(theta), math.Sin(theta)).Scale(radius))
	}
	for i := 0; i < parts; i++ {
		theta := 2*math.Pi*float64(parts-i)/float64(parts) + math.Pi
		path = append(path, kinematics.V(1+math.Cos(theta), math.Sin(theta)).Scale(radius))
	}
	return path
}
