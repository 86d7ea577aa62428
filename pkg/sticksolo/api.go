// Package sticksolo is the programmatic entry point: it trains reaching
// policies, stores them and replays them on reach, transfer and walk tasks.
package sticksolo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"sticksolo/internal/ceo"
	"sticksolo/internal/control"
	"sticksolo/internal/kinematics"
	"sticksolo/internal/model"
	"sticksolo/internal/nn"
	"sticksolo/internal/sampling"
	"sticksolo/internal/stats"
	"sticksolo/internal/storage"
	"sticksolo/internal/world"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "sticksolo.db"
)

var ErrNotFound = errors.New("run not found")

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	initMu      sync.Mutex
	initialized bool

	artifactsDir string
	exportsDir   string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// TrainRequest configures one training run. Seed drives every random stream
// of the run; zero picks one from the clock.
type TrainRequest struct {
	Optimizer      ceo.Config  `json:"optimizer" yaml:"optimizer"`
	World          world.World `json:"world" yaml:"world"`
	Samples        int         `json:"samples" yaml:"samples"`
	SamplerWorkers int         `json:"sampler_workers" yaml:"sampler_workers"`
	Seed           int64       `json:"seed" yaml:"seed"`
	GoalMap        bool        `json:"goal_map" yaml:"goal_map"`

	Observer func(ceo.GenerationDiagnostics) `json:"-" yaml:"-"`
}

// DefaultTrainRequest is the full-length reaching run.
func DefaultTrainRequest() TrainRequest {
	cfg := ceo.DefaultConfig()
	cfg.Generations = 500
	cfg.BatchSize = 50
	cfg.NumEpisodes = 20
	cfg.NumEpisodeTicks = 200
	cfg.EliteFrac = 0.25
	cfg.InitialStd = 1
	cfg.NoiseFactor = 1
	return TrainRequest{
		Optimizer: cfg,
		World:     world.DefaultWorld(),
		Samples:   sampling.DefaultSamples,
	}
}

type TrainSummary struct {
	RunID        string
	ArtifactsDir string
	MeanReward   float64
	History      []ceo.GenerationDiagnostics
	Duration     time.Duration
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if req.Samples <= 0 {
		req.Samples = sampling.DefaultSamples
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	if err := req.World.Validate(); err != nil {
		return TrainSummary{}, err
	}
	cfg := req.Optimizer
	cfg.Seed = req.Seed
	if err := cfg.Validate(); err != nil {
		return TrainSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return TrainSummary{}, err
	}

	net, err := nn.NewFCN(req.World.DefaultLayers())
	if err != nil {
		return TrainSummary{}, err
	}
	sampler := sampling.Sampler{Samples: req.Samples, Workers: req.SamplerWorkers, Seed: req.Seed + 2}
	rollout, err := world.NewRollout(req.World, sampler, req.Seed+1)
	if err != nil {
		return TrainSummary{}, err
	}
	opts := []ceo.Option{ceo.WithLogger(c.logger)}
	if req.Observer != nil {
		opts = append(opts, ceo.WithObserver(req.Observer))
	}
	optimizer, err := ceo.New(cfg, opts...)
	if err != nil {
		return TrainSummary{}, err
	}

	runID := uuid.NewString()
	started := time.Now().UTC()
	c.logger.Info("train start", "run_id", runID, "params", net.ParamCount(), "generations", cfg.Generations)
	result, err := optimizer.Optimize(ctx, net, rollout)
	if err != nil {
		return TrainSummary{}, fmt.Errorf("train %s: %w", runID, err)
	}

	experiment := model.Experiment{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		CreatedAtUTC:    started,
		Seed:            req.Seed,
		SamplerSamples:  req.Samples,
		Optimizer:       cfg,
		World:           req.World,
		Network:         net,
		MeanReward:      result.MeanReward,
		FinalStd:        result.Std,
		History:         result.History,
	}
	if err := c.store.SaveExperiment(ctx, experiment); err != nil {
		return TrainSummary{}, err
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, experiment)
	if err != nil {
		return TrainSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.IndexEntry(experiment)); err != nil {
		return TrainSummary{}, err
	}
	if req.GoalMap {
		if _, err := c.plotGoalMap(experiment, world.DefaultGrid(), stats.GoalMapPath(c.artifactsDir, runID)); err != nil {
			return TrainSummary{}, err
		}
	}

	duration := time.Since(started)
	c.logger.Info("train done", "run_id", runID, "mean_reward", result.MeanReward, "duration", duration)
	return TrainSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		MeanReward:   result.MeanReward,
		History:      append([]ceo.GenerationDiagnostics(nil), result.History...),
		Duration:     duration,
	}, nil
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Seed         int64
	Generations  int
	BatchSize    int
	ParamCount   int
	MeanReward   float64
	BestReward   float64
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Seed:         e.Seed,
			Generations:  e.Generations,
			BatchSize:    e.BatchSize,
			ParamCount:   e.ParamCount,
			MeanReward:   e.MeanReward,
			BestReward:   e.BestReward,
		})
	}
	return out, nil
}

// RunRef names a run either by id or as the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
}

func (c *Client) resolveRun(ref RunRef) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if ref.RunID != "" {
		return ref.RunID, nil
	}
	if !ref.Latest {
		return "", errors.New("run id or latest is required")
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no runs available", ErrNotFound)
	}
	return entries[0].RunID, nil
}

// Experiment loads a run from the store, falling back to its artifacts
// directory so runs trained by earlier processes stay reachable.
func (c *Client) Experiment(ctx context.Context, ref RunRef) (model.Experiment, error) {
	runID, err := c.resolveRun(ref)
	if err != nil {
		return model.Experiment{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.Experiment{}, err
	}
	experiment, ok, err := c.store.GetExperiment(ctx, runID)
	if err != nil {
		return model.Experiment{}, err
	}
	if ok {
		return experiment, nil
	}
	experiment, ok, err = stats.ReadRunExperiment(c.artifactsDir, runID)
	if err != nil {
		return model.Experiment{}, err
	}
	if !ok {
		return model.Experiment{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return experiment, nil
}

type ReachRequest struct {
	Run   RunRef
	Goal  *kinematics.Vec2
	Ticks int
	Seed  int64
	// Samples overrides the sampler size stored with the run.
	Samples int
	Trace   bool
}

type ReachSummary struct {
	RunID  string
	Result world.EpisodeResult
	Frames []world.Frame
}

// Reach replays one episode of a trained policy.
func (c *Client) Reach(ctx context.Context, req ReachRequest) (ReachSummary, error) {
	experiment, err := c.Experiment(ctx, req.Run)
	if err != nil {
		return ReachSummary{}, err
	}
	if req.Ticks <= 0 {
		req.Ticks = experiment.Optimizer.NumEpisodeTicks
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	samples := experiment.SamplerSamples
	if req.Samples > 0 {
		samples = req.Samples
	}
	rollout, err := world.NewRollout(experiment.World, sampling.Sampler{Samples: samples}, req.Seed)
	if err != nil {
		return ReachSummary{}, err
	}

	summary := ReachSummary{RunID: experiment.ID}
	var observe func(world.Frame)
	if req.Trace {
		observe = func(f world.Frame) { summary.Frames = append(summary.Frames, f) }
	}
	rng := rand.New(rand.NewSource(req.Seed))
	summary.Result, err = rollout.Episode(ctx, experiment.Network, experiment.Network.Parameters(), rng, req.Goal, req.Ticks, observe)
	if err != nil {
		return ReachSummary{}, err
	}
	return summary, nil
}

// TransfersRequest drives a single chain around a foothold course.
type TransfersRequest struct {
	Chain    kinematics.Spec `json:"chain" yaml:"chain"`
	Parts    int             `json:"parts" yaml:"parts"`
	Radius   float64         `json:"radius" yaml:"radius"`
	MaxTicks int             `json:"max_ticks" yaml:"max_ticks"`
	Samples  int             `json:"samples" yaml:"samples"`
	Mutation float64         `json:"mutation" yaml:"mutation"`
	Seed     int64           `json:"seed" yaml:"seed"`
}

// DefaultTransfersRequest is a four-link chain hanging left of a pivot just
// below the origin, sent around the figure-eight course.
func DefaultTransfersRequest() TransfersRequest {
	inf := math.Inf(1)
	return TransfersRequest{
		Chain: kinematics.Spec{
			Origin:  kinematics.V(0, -0.1),
			Lengths: []float64{0.2, 0.2, 0.2, 0.2},
			Angles:  []float64{-2, 0, 2, 0},
			Clamps: []kinematics.Clamp{
				{Min: -inf, Max: inf},
				{Min: 0, Max: math.Pi / 2},
				{Min: -math.Pi / 2, Max: math.Pi},
				{Min: 0, Max: math.Pi / 2},
			},
			Side:      kinematics.Left,
			Thickness: kinematics.DefaultThickness,
		},
		Parts:    10,
		Radius:   0.5,
		MaxTicks: 20000,
		Samples:  sampling.DefaultSamples,
		Mutation: sampling.DefaultMutation,
	}
}

type TransfersSummary struct {
	Ticks       int
	Switches    int
	Backtracks  int
	Finished    bool
	Remaining   int
	FinalOrigin kinematics.Vec2
}

func (c *Client) Transfers(ctx context.Context, req TransfersRequest) (TransfersSummary, error) {
	if req.Parts <= 0 {
		return TransfersSummary{}, errors.New("parts must be > 0")
	}
	if req.MaxTicks <= 0 {
		return TransfersSummary{}, errors.New("max ticks must be > 0")
	}
	chain, err := kinematics.New(req.Chain)
	if err != nil {
		return TransfersSummary{}, err
	}
	follower, err := control.NewPathFollower(chain, control.TwoLoopPath(req.Parts, req.Radius), sampling.Sampler{Samples: req.Samples, Seed: req.Seed})
	if err != nil {
		return TransfersSummary{}, err
	}
	follower.Mutation = req.Mutation
	follower.Logger = c.logger

	var summary TransfersSummary
	summary.Ticks, err = follower.Run(ctx, req.MaxTicks, func(ev control.Event) {
		switch ev {
		case control.EventBacktrack:
			summary.Backtracks++
		case control.EventFinished:
			summary.Finished = true
		}
	})
	if err != nil {
		return TransfersSummary{}, err
	}
	summary.Switches = follower.Switches()
	summary.Remaining = follower.Remaining()
	summary.FinalOrigin = chain.Origin()
	c.logger.Info("transfers done", "ticks", summary.Ticks, "switches", summary.Switches, "finished", summary.Finished)
	return summary, nil
}

// WalkRequest moves a trained two-limb body along footholds. Left and Right
// name the runs whose policies steer when holding from that side; a walk
// only needs the sides it actually holds from. The body is built from the
// world of the first run given.
type WalkRequest struct {
	Left     RunRef
	Right    RunRef
	Path     []kinematics.Vec2
	Origin   kinematics.Vec2
	MaxTicks int
	Samples  int
	Seed     int64
}

type WalkSummary struct {
	Ticks     int
	Switches  int
	Finished  bool
	FinalHold kinematics.Vec2
}

func (c *Client) Walk(ctx context.Context, req WalkRequest) (WalkSummary, error) {
	if req.MaxTicks <= 0 {
		return WalkSummary{}, errors.New("max ticks must be > 0")
	}
	if len(req.Path) == 0 {
		return WalkSummary{}, errors.New("walk requires a path")
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	policies := make(map[kinematics.Side]*nn.FCN, 2)
	var base *model.Experiment
	for _, side := range []struct {
		side kinematics.Side
		ref  RunRef
	}{{kinematics.Left, req.Left}, {kinematics.Right, req.Right}} {
		if side.ref == (RunRef{}) {
			continue
		}
		experiment, err := c.Experiment(ctx, side.ref)
		if err != nil {
			return WalkSummary{}, fmt.Errorf("%s policy: %w", side.side, err)
		}
		policies[side.side] = experiment.Network
		if base == nil {
			base = &experiment
		}
	}
	if base == nil {
		return WalkSummary{}, errors.New("walk requires at least one run")
	}

	w := base.World
	w.Origin = req.Origin
	pair, err := w.NewPair(rand.New(rand.NewSource(req.Seed)))
	if err != nil {
		return WalkSummary{}, err
	}
	samples := base.SamplerSamples
	if req.Samples > 0 {
		samples = req.Samples
	}
	walker, err := world.NewWalker(pair, req.Path, policies, sampling.Sampler{Samples: samples, Seed: req.Seed + 1})
	if err != nil {
		return WalkSummary{}, err
	}

	var summary WalkSummary
	for summary.Ticks < req.MaxTicks && !walker.Done() {
		if err := ctx.Err(); err != nil {
			return WalkSummary{}, err
		}
		ev, err := walker.Tick(ctx)
		if err != nil {
			return WalkSummary{}, err
		}
		summary.Ticks++
		if ev == control.EventSwitched {
			c.logger.Debug("switch hold", "switches", walker.Switches(), "side", pair.Holding().Side().String())
		}
	}
	summary.Switches = walker.Switches()
	summary.Finished = walker.Done()
	summary.FinalHold = pair.Holding().Origin()
	return summary, nil
}

type PlotGoalMapRequest struct {
	Run  RunRef
	Grid world.GridSpec
	// OutPath defaults to goal_map.png inside the run's artifacts directory.
	OutPath string
}

type PlotSummary struct {
	RunID  string
	Path   string
	Points int
}

func (c *Client) PlotGoalMap(ctx context.Context, req PlotGoalMapRequest) (PlotSummary, error) {
	experiment, err := c.Experiment(ctx, req.Run)
	if err != nil {
		return PlotSummary{}, err
	}
	if req.Grid == (world.GridSpec{}) {
		req.Grid = world.DefaultGrid()
	}
	if req.OutPath == "" {
		req.OutPath = stats.GoalMapPath(c.artifactsDir, experiment.ID)
	}
	points, err := c.plotGoalMap(experiment, req.Grid, req.OutPath)
	if err != nil {
		return PlotSummary{}, err
	}
	return PlotSummary{RunID: experiment.ID, Path: filepath.Clean(req.OutPath), Points: points}, nil
}

func (c *Client) plotGoalMap(experiment model.Experiment, grid world.GridSpec, path string) (int, error) {
	points, err := world.GoalMap(experiment.World, experiment.Network, grid)
	if err != nil {
		return 0, err
	}
	if err := stats.SaveGoalMap(path, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

type ExportRequest struct {
	Run    RunRef
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRun(req.Run)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Delete removes a run from the store. Its artifacts stay on disk.
func (c *Client) Delete(ctx context.Context, runID string) error {
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	return c.store.DeleteExperiment(ctx, runID)
}
