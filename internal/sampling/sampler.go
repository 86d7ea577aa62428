// Package sampling searches joint configurations by massive random trial,
// for reseeding a controller when gradient steps are a poor fit.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"sticksolo/internal/kinematics"
)

const (
	DefaultSamples = 10_000
	// DefaultMutation is the per-joint noise half-width for FromCurrentState.
	DefaultMutation = 3.0

	ctxCheckEvery = 256
)

var ErrInvalidProblem = errors.New("invalid sampling problem")

// Loss scores one trial. Lower is better.
type Loss func(end, com, goal kinematics.Vec2) float64

// Problem is an immutable snapshot of a chain plus a goal. Trials never
// touch the live chain.
type Problem struct {
	Origin  kinematics.Vec2
	Lengths []float64
	Angles  []float64
	Clamps  []kinematics.Clamp
	Side    kinematics.Side
	Goal    kinematics.Vec2
}

// ProblemFromChain snapshots c; later mutation of c does not affect the problem.
func ProblemFromChain(c *kinematics.Chain, goal kinematics.Vec2) Problem {
	return Problem{
		Origin:  c.Origin(),
		Lengths: c.Lengths(),
		Angles:  c.Angles(),
		Clamps:  c.Clamps(),
		Side:    c.Side(),
		Goal:    goal,
	}
}

func (p Problem) Validate() error {
	n := len(p.Lengths)
	if n == 0 {
		return fmt.Errorf("%w: no links", ErrInvalidProblem)
	}
	if len(p.Angles) != n || len(p.Clamps) != n {
		return fmt.Errorf("%w: lengths=%d angles=%d clamps=%d", ErrInvalidProblem, n, len(p.Angles), len(p.Clamps))
	}
	return nil
}

type Result struct {
	Loss   float64
	Angles []float64
}

// Sampler runs trials in parallel chunks. Each chunk owns its own random
// source derived from Seed, so a fixed seed and worker count reproduce the
// same result.
type Sampler struct {
	Samples int
	Workers int
	// Seed 0 draws a seed from the clock.
	Seed int64
}

func New(samples int) Sampler { return Sampler{Samples: samples} }

// NoPrior draws every joint uniformly from its range and the root from
// RootWindow.
func (s Sampler) NoPrior(ctx context.Context, p Problem, loss Loss) (Result, error) {
	window := RootWindow(p.rootAngle(), p.Side)
	return s.run(ctx, p, loss, func(rng *rand.Rand, dst []float64) {
		lo, hi := window.Min, window.Max
		dst[0] = lo + rng.Float64()*(hi-lo)
		for i := 1; i < len(dst); i++ {
			lo, hi := finiteRange(p.Clamps[i])
			dst[i] = lo + rng.Float64()*(hi-lo)
		}
	})
}

// FromCurrentState perturbs the current pose by uniform noise in
// [-mutation, mutation] per joint and clamps the result.
func (s Sampler) FromCurrentState(ctx context.Context, p Problem, mutation float64, loss Loss) (Result, error) {
	if mutation < 0 || math.IsNaN(mutation) {
		return Result{}, fmt.Errorf("%w: mutation must be >= 0", ErrInvalidProblem)
	}
	window := RootWindow(p.rootAngle(), p.Side)
	return s.run(ctx, p, loss, func(rng *rand.Rand, dst []float64) {
		for i := range dst {
			q := p.Angles[i] + (2*rng.Float64()-1)*mutation
			if i == 0 {
				dst[i] = window.Apply(q)
			} else {
				dst[i] = p.Clamps[i].Apply(q)
			}
		}
	})
}

func (p Problem) rootAngle() float64 {
	if len(p.Angles) == 0 {
		return 0
	}
	return p.Angles[0]
}

type chunkResult struct {
	loss   float64
	angles []float64
}

func (s Sampler) run(ctx context.Context, p Problem, loss Loss, draw func(*rand.Rand, []float64)) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if loss == nil {
		return Result{}, fmt.Errorf("%w: loss is required", ErrInvalidProblem)
	}
	samples := s.Samples
	if samples <= 0 {
		samples = DefaultSamples
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > samples {
		workers = samples
	}
	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	master := rand.New(rand.NewSource(seed))
	results := make([]chunkResult, workers)
	pl := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for k := 0; k < workers; k++ {
		k := k
		count := samples / workers
		if k < samples%workers {
			count++
		}
		rng := rand.New(rand.NewSource(master.Int63()))
		pl.Go(func(ctx context.Context) error {
			res, err := runChunk(ctx, p, loss, draw, rng, count)
			if err != nil {
				return err
			}
			results[k] = res
			return nil
		})
	}
	if err := pl.Wait(); err != nil {
		return Result{}, fmt.Errorf("sample: %w", err)
	}

	best := results[0]
	for _, r := range results[1:] {
		if better(r.loss, best.loss) {
			best = r
		}
	}
	return Result{Loss: best.loss, Angles: best.angles}, nil
}

func runChunk(ctx context.Context, p Problem, loss Loss, draw func(*rand.Rand, []float64), rng *rand.Rand, count int) (chunkResult, error) {
	n := len(p.Lengths)
	trial := make([]float64, n)
	best := chunkResult{loss: math.Inf(1), angles: make([]float64, n)}
	for t := 0; t < count; t++ {
		if t%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return chunkResult{}, err
			}
		}
		draw(rng, trial)
		end, com := kinematics.EndAndCOM(p.Origin, p.Lengths, trial)
		l := loss(end, com, p.Goal)
		if t == 0 || better(l, best.loss) {
			best.loss = l
			copy(best.angles, trial)
		}
	}
	return best, nil
}

// better orders losses ascending with NaN last.
func better(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a < b
}
