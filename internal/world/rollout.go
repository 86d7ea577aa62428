package world

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"sticksolo/internal/control"
	"sticksolo/internal/kinematics"
	"sticksolo/internal/nn"
	"sticksolo/internal/sampling"
)

const (
	HoldingReachedBonus    = 500.0
	NonHoldingReachedBonus = 1000.0
)

// Frame is the body state after one episode tick.
type Frame struct {
	Tick       int               `json:"tick"`
	Holding    []kinematics.Vec2 `json:"holding"`
	NonHolding []kinematics.Vec2 `json:"non_holding"`
	COM        kinematics.Vec2   `json:"com"`
	Reward     float64           `json:"reward"`
}

type EpisodeResult struct {
	Goals              GoalPair        `json:"goals"`
	Reward             float64         `json:"reward"`
	Ticks              int             `json:"ticks"`
	FinalHoldingEnd    kinematics.Vec2 `json:"final_holding_end"`
	FinalNonHoldingEnd kinematics.Vec2 `json:"final_non_holding_end"`
	HoldingReached     bool            `json:"holding_reached"`
	NonHoldingReached  bool            `json:"non_holding_reached"`
}

// Rollout scores policy parameters by running reaching episodes. The
// network proposes where the holding limb should move so the free limb can
// reach a sampled goal; both limbs are then steered there by sampled target
// poses blended with the analytic controller.
type Rollout struct {
	World    World
	Sampler  sampling.Sampler
	Schedule control.Schedule
	seed     int64
	calls    atomic.Int64
}

func NewRollout(w World, sampler sampling.Sampler, seed int64) (*Rollout, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rollout{World: w, Sampler: sampler, Schedule: control.ReachSchedule(), seed: seed}, nil
}

// AverageReward implements the optimizer's reward. Every call draws its
// episodes from a fresh random stream, so concurrent calls share nothing.
func (r *Rollout) AverageReward(ctx context.Context, net *nn.FCN, params []float64, episodes, ticks int) (float64, error) {
	if episodes <= 0 {
		return 0, errors.New("episodes must be > 0")
	}
	rng := rand.New(rand.NewSource(r.seed + r.calls.Add(1)))
	var total float64
	for e := 0; e < episodes; e++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res, err := r.Episode(ctx, net, params, rng, nil, ticks, nil)
		if err != nil {
			return 0, fmt.Errorf("episode %d: %w", e, err)
		}
		total += res.Reward
	}
	return total / float64(episodes), nil
}

// Episode runs one reaching episode. A nil goal samples one from the world.
// observe, if set, sees every tick.
func (r *Rollout) Episode(ctx context.Context, net *nn.FCN, params []float64, rng *rand.Rand, goal *kinematics.Vec2, ticks int, observe func(Frame)) (EpisodeResult, error) {
	pair, err := r.World.NewPair(rng)
	if err != nil {
		return EpisodeResult{}, err
	}
	origin := pair.Holding().Origin()
	free := r.World.SampleGoal(rng)
	if goal != nil {
		free = *goal
	}

	input, scale := Encode(pair, free)
	out, err := net.EvaluateWith(input, params)
	if err != nil {
		return EpisodeResult{}, err
	}
	goals := GoalPair{Holding: Decode(out, scale, origin), NonHolding: free}

	sampler := r.Sampler
	sampler.Seed = rng.Int63()
	targets, err := Solve(ctx, sampler, pair, goals)
	if err != nil {
		return EpisodeResult{}, err
	}

	var reward float64
	for t := 0; t < ticks; t++ {
		Control(pair, r.Schedule, targets, goals, t)
		com := pair.CenterOfMass()
		step := -2*pair.Holding().LastVertex().Dist(goals.Holding) -
			10*pair.NonHolding().LastVertex().Dist(goals.NonHolding) -
			5*com.Y -
			math.Abs(com.X-(goals.NonHolding.X+origin.X)/2)
		reward += step
		if observe != nil {
			observe(Frame{
				Tick:       t,
				Holding:    pair.Holding().Vertices(),
				NonHolding: pair.NonHolding().Vertices(),
				COM:        com,
				Reward:     step,
			})
		}
	}

	res := EpisodeResult{
		Goals:              goals,
		Ticks:              ticks,
		FinalHoldingEnd:    pair.Holding().LastVertex(),
		FinalNonHoldingEnd: pair.NonHolding().LastVertex(),
	}
	if res.FinalHoldingEnd.Dist(goals.Holding) < kinematics.GoalReachedSlack {
		res.HoldingReached = true
		reward += HoldingReachedBonus
	}
	if res.FinalNonHoldingEnd.Dist(goals.NonHolding) < kinematics.GoalReachedSlack {
		res.NonHoldingReached = true
		reward += NonHoldingReachedBonus
	}
	res.Reward = reward
	return res, nil
}
