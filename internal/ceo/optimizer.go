// Package ceo trains network parameters with the cross-entropy method: sample
// a batch around the current mean, keep the best fraction, refit mean and
// spread to them, repeat.
package ceo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sticksolo/internal/nn"
)

// Reward scores one parameter vector for net, averaged over episodes of
// ticks steps each. Implementations are called concurrently and must not
// mutate net.
type Reward interface {
	AverageReward(ctx context.Context, net *nn.FCN, params []float64, episodes, ticks int) (float64, error)
}

type RewardFunc func(ctx context.Context, net *nn.FCN, params []float64, episodes, ticks int) (float64, error)

func (f RewardFunc) AverageReward(ctx context.Context, net *nn.FCN, params []float64, episodes, ticks int) (float64, error) {
	return f(ctx, net, params, episodes, ticks)
}

type GenerationDiagnostics struct {
	Generation      int     `json:"generation"`
	MeanReward      float64 `json:"mean_reward"`
	BestReward      float64 `json:"best_reward"`
	MinReward       float64 `json:"min_reward"`
	EliteMeanReward float64 `json:"elite_mean_reward"`
	StdMean         float64 `json:"std_mean"`
}

type Result struct {
	// MeanReward is the batch mean of the final generation.
	MeanReward float64                 `json:"mean_reward"`
	Std        []float64               `json:"std"`
	History    []GenerationDiagnostics `json:"history"`
}

type ScoredCandidate struct {
	Index  int
	Params []float64
	Reward float64
}

type Option func(*Optimizer)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver is called after every generation, from the Optimize goroutine.
func WithObserver(fn func(GenerationDiagnostics)) Option {
	return func(o *Optimizer) { o.observer = fn }
}

type Optimizer struct {
	cfg      Config
	rng      *rand.Rand
	logger   *slog.Logger
	observer func(GenerationDiagnostics)
}

func New(cfg Config, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	o := &Optimizer{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Optimizer) Config() Config { return o.cfg }

// Optimize runs the configured number of generations. net holds the mean
// parameter vector and is updated in place after every generation.
func (o *Optimizer) Optimize(ctx context.Context, net *nn.FCN, reward Reward) (Result, error) {
	if net == nil {
		return Result{}, errors.New("optimize requires a network")
	}
	if reward == nil {
		return Result{}, errors.New("optimize requires a reward")
	}

	dim := net.ParamCount()
	std := make([]float64, dim)
	for i := range std {
		std[i] = o.cfg.InitialStd
	}
	elites := o.cfg.EliteCount()
	result := Result{History: make([]GenerationDiagnostics, 0, o.cfg.Generations)}

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		mean := net.Parameters()
		batch := o.sampleBatch(mean, std)
		scored, err := o.evaluateBatch(ctx, net, reward, batch)
		if err != nil {
			return result, fmt.Errorf("generation %d: %w", gen, err)
		}

		sort.SliceStable(scored, func(i, j int) bool { return scored[i].Reward > scored[j].Reward })
		nextMean, nextStd := fitElites(scored[:elites], dim)
		floor := o.cfg.NoiseFactor / float64(gen+1)
		for i := range nextStd {
			nextStd[i] += floor
		}
		if err := net.SetParameters(nextMean); err != nil {
			return result, err
		}
		std = nextStd

		rewards := make([]float64, len(scored))
		eliteRewards := make([]float64, elites)
		for i, s := range scored {
			rewards[i] = s.Reward
			if i < elites {
				eliteRewards[i] = s.Reward
			}
		}
		diag := GenerationDiagnostics{
			Generation:      gen,
			MeanReward:      stat.Mean(rewards, nil),
			BestReward:      scored[0].Reward,
			MinReward:       scored[len(scored)-1].Reward,
			EliteMeanReward: stat.Mean(eliteRewards, nil),
			StdMean:         meanOrZero(std),
		}
		result.History = append(result.History, diag)
		result.MeanReward = diag.MeanReward
		o.logger.Info("generation",
			"generation", gen,
			"mean_reward", diag.MeanReward,
			"best_reward", diag.BestReward,
			"std_mean", diag.StdMean,
		)
		if o.observer != nil {
			o.observer(diag)
		}
	}
	result.Std = std
	return result, nil
}

// sampleBatch draws candidates sequentially so a fixed seed reproduces the
// batch regardless of evaluation order. A non-positive std entry pins that
// coordinate to the mean.
func (o *Optimizer) sampleBatch(mean, std []float64) [][]float64 {
	batch := make([][]float64, o.cfg.BatchSize)
	for k := range batch {
		theta := make([]float64, len(mean))
		for i := range theta {
			theta[i] = mean[i]
			if s := std[i]; s > 0 && !math.IsInf(s, 0) {
				theta[i] += s * o.rng.NormFloat64()
			}
		}
		batch[k] = theta
	}
	return batch
}

func (o *Optimizer) evaluateBatch(ctx context.Context, net *nn.FCN, reward Reward, batch [][]float64) ([]ScoredCandidate, error) {
	workers := o.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(batch) {
		workers = len(batch)
	}

	scored := make([]ScoredCandidate, len(batch))
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for k, theta := range batch {
		k, theta := k, theta
		p.Go(func(ctx context.Context) error {
			r, err := reward.AverageReward(ctx, net, theta, o.cfg.NumEpisodes, o.cfg.NumEpisodeTicks)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", k, err)
			}
			scored[k] = ScoredCandidate{Index: k, Params: theta, Reward: r}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

// fitElites returns the per-coordinate mean and population standard
// deviation of the elite parameter vectors.
func fitElites(elites []ScoredCandidate, dim int) (mean, std []float64) {
	mean = make([]float64, dim)
	std = make([]float64, dim)
	column := make([]float64, len(elites))
	for i := 0; i < dim; i++ {
		for k, e := range elites {
			column[k] = e.Params[i]
		}
		m, v := stat.PopMeanVariance(column, nil)
		mean[i] = m
		std[i] = math.Sqrt(v)
	}
	return mean, std
}

func meanOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Sum(xs) / float64(len(xs))
}
