package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"

	"sticksolo/internal/ceo"
	"sticksolo/internal/control"
	"sticksolo/internal/kinematics"
	"sticksolo/internal/storage"
	"sticksolo/internal/world"
	api "sticksolo/pkg/sticksolo"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "reach":
		return runReach(ctx, args[1:])
	case "transfers":
		return runTransfers(ctx, args[1:])
	case "walk":
		return runWalk(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are shared by every command that opens a client.
type clientFlags struct {
	storeKind *string
	dbPath    *string
	runsDir   *string
	verbose   *bool
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", "sticksolo.db", "sqlite database path"),
		runsDir:   fs.String("runs-dir", runsDir, "run artifacts directory"),
		verbose:   fs.Bool("v", false, "debug logging on stderr"),
	}
}

func (f clientFlags) open() (*api.Client, error) {
	return api.New(api.Options{
		StoreKind:    *f.storeKind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.runsDir,
		ExportsDir:   exportsDir,
		Logger:       newLogger(*f.verbose),
	})
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func addRunRefFlags(fs *flag.FlagSet) (*string, *bool) {
	return fs.String("run-id", "", "run id"), fs.Bool("latest", false, "use the most recent run from the run index")
}

func runRef(runID string, latest bool) (api.RunRef, error) {
	if runID != "" && latest {
		return api.RunRef{}, errors.New("use either --run-id or --latest, not both")
	}
	if runID == "" && !latest {
		return api.RunRef{}, errors.New("requires --run-id or --latest")
	}
	return api.RunRef{RunID: runID, Latest: latest}, nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional JSON or YAML train config")
	gens := fs.Int("gens", 0, "generations")
	batch := fs.Int("batch", 0, "candidates per generation")
	episodes := fs.Int("episodes", 0, "episodes per candidate")
	ticks := fs.Int("ticks", 0, "ticks per episode")
	eliteFrac := fs.Float64("elite", 0, "elite fraction")
	initialStd := fs.Float64("std", 0, "initial standard deviation")
	noise := fs.Float64("noise", 0, "noise factor")
	workers := fs.Int("workers", 0, "parallel candidate evaluations (0 = GOMAXPROCS)")
	samples := fs.Int("samples", 0, "random samples per target pose solve")
	seed := fs.Int64("seed", 0, "random seed (0 = clock)")
	goalMap := fs.Bool("goal-map", false, "also plot the trained policy's goal map")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := api.DefaultTrainRequest()
	if *configPath != "" {
		loaded, err := loadTrainRequest(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		req = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gens":
			req.Optimizer.Generations = *gens
		case "batch":
			req.Optimizer.BatchSize = *batch
		case "episodes":
			req.Optimizer.NumEpisodes = *episodes
		case "ticks":
			req.Optimizer.NumEpisodeTicks = *ticks
		case "elite":
			req.Optimizer.EliteFrac = *eliteFrac
		case "std":
			req.Optimizer.InitialStd = *initialStd
		case "noise":
			req.Optimizer.NoiseFactor = *noise
		case "workers":
			req.Optimizer.Workers = *workers
		case "samples":
			req.Samples = *samples
		case "seed":
			req.Seed = *seed
		case "goal-map":
			req.GoalMap = *goalMap
		}
	})

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run_id=%s generations=%d mean_reward=%.6f duration=%s artifacts=%s\n",
		summary.RunID,
		len(summary.History),
		summary.MeanReward,
		summary.Duration.Round(time.Millisecond),
		summary.ArtifactsDir,
	)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}
	for _, r := range runs {
		created := r.CreatedAtUTC
		if ts, err := time.Parse(time.RFC3339Nano, r.CreatedAtUTC); err == nil {
			created = humanize.Time(ts)
		}
		fmt.Printf("run_id=%s created=%q seed=%d gens=%d batch=%d params=%s mean_reward=%.6f best_reward=%.6f\n",
			r.RunID,
			created,
			r.Seed,
			r.Generations,
			r.BatchSize,
			humanize.Comma(int64(r.ParamCount)),
			r.MeanReward,
			r.BestReward,
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	runID, latest := addRunRefFlags(fs)
	limit := fs.Int("limit", 0, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit the experiment record as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := runRef(*runID, *latest)
	if err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	experiment, err := client.Experiment(ctx, ref)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(experiment)
	}

	fmt.Printf("run_id=%s created=%s seed=%d params=%s samples=%s mean_reward=%.6f\n",
		experiment.ID,
		experiment.CreatedAtUTC.Format(time.RFC3339),
		experiment.Seed,
		humanize.Comma(int64(experiment.Network.ParamCount())),
		humanize.Comma(int64(experiment.SamplerSamples)),
		experiment.MeanReward,
	)
	history := experiment.History
	if *limit > 0 && len(history) > *limit {
		history = history[len(history)-*limit:]
	}
	for _, d := range history {
		printDiagnostics(d)
	}
	return nil
}

func printDiagnostics(d ceo.GenerationDiagnostics) {
	fmt.Printf("gen=%d mean=%.6f best=%.6f min=%.6f elite_mean=%.6f std_mean=%.6f\n",
		d.Generation,
		d.MeanReward,
		d.BestReward,
		d.MinReward,
		d.EliteMeanReward,
		d.StdMean,
	)
}

func runReach(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reach", flag.ContinueOnError)
	runID, latest := addRunRefFlags(fs)
	goalFlag := fs.String("goal", "", "free-limb goal as x,y (default: sampled from the run's world)")
	ticks := fs.Int("ticks", 0, "episode ticks (default: the run's episode length)")
	seed := fs.Int64("seed", 0, "random seed (0 = clock)")
	samples := fs.Int("samples", 0, "random samples per target pose solve (default: the run's)")
	trace := fs.Bool("trace", false, "emit every frame as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := runRef(*runID, *latest)
	if err != nil {
		return err
	}
	req := api.ReachRequest{Run: ref, Ticks: *ticks, Seed: *seed, Samples: *samples, Trace: *trace}
	if *goalFlag != "" {
		goal, err := parseVec(*goalFlag)
		if err != nil {
			return fmt.Errorf("goal: %w", err)
		}
		req.Goal = &goal
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Reach(ctx, req)
	if err != nil {
		return err
	}
	if *trace {
		return writeJSON(summary)
	}
	res := summary.Result
	fmt.Printf("run_id=%s reward=%.6f ticks=%d holding_goal=%s free_goal=%s holding_reached=%t free_reached=%t\n",
		summary.RunID,
		res.Reward,
		res.Ticks,
		formatVec(res.Goals.Holding),
		formatVec(res.Goals.NonHolding),
		res.HoldingReached,
		res.NonHoldingReached,
	)
	return nil
}

func runTransfers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transfers", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional JSON or YAML transfers config")
	parts := fs.Int("parts", 0, "footholds per loop")
	radius := fs.Float64("radius", 0, "loop radius")
	maxTicks := fs.Int("max-ticks", 0, "tick budget")
	samples := fs.Int("samples", 0, "random samples per target pose reseed")
	mutation := fs.Float64("mutation", 0, "reseed noise half-width")
	seed := fs.Int64("seed", 0, "random seed (0 = clock)")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := api.DefaultTransfersRequest()
	if *configPath != "" {
		if err := loadConfigFile(*configPath, &req); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "parts":
			req.Parts = *parts
		case "radius":
			req.Radius = *radius
		case "max-ticks":
			req.MaxTicks = *maxTicks
		case "samples":
			req.Samples = *samples
		case "mutation":
			req.Mutation = *mutation
		case "seed":
			req.Seed = *seed
		}
	})

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Transfers(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("ticks=%s switches=%d backtracks=%d finished=%t remaining=%d origin=%s\n",
		humanize.Comma(int64(summary.Ticks)),
		summary.Switches,
		summary.Backtracks,
		summary.Finished,
		summary.Remaining,
		formatVec(summary.FinalOrigin),
	)
	return nil
}

func runWalk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("walk", flag.ContinueOnError)
	left := fs.String("left", "", "run id of the left-holding policy, or \"latest\"")
	right := fs.String("right", "", "run id of the right-holding policy, or \"latest\"")
	originFlag := fs.String("origin", "0,-0.1", "initial holding point as x,y")
	parts := fs.Int("parts", 10, "footholds per loop of the course")
	radius := fs.Float64("radius", 0.3, "course loop radius")
	maxTicks := fs.Int("max-ticks", 20000, "tick budget")
	samples := fs.Int("samples", 0, "random samples per target pose solve (default: the run's)")
	seed := fs.Int64("seed", 0, "random seed (0 = clock)")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	origin, err := parseVec(*originFlag)
	if err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	path := control.TwoLoopPath(*parts, *radius)
	for i := range path {
		path[i] = path[i].Add(origin)
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Walk(ctx, api.WalkRequest{
		Left:     namedRunRef(*left),
		Right:    namedRunRef(*right),
		Path:     path,
		Origin:   origin,
		MaxTicks: *maxTicks,
		Samples:  *samples,
		Seed:     *seed,
	})
	if err != nil {
		return err
	}
	fmt.Printf("ticks=%s switches=%d finished=%t hold=%s\n",
		humanize.Comma(int64(summary.Ticks)),
		summary.Switches,
		summary.Finished,
		formatVec(summary.FinalHold),
	)
	return nil
}

func namedRunRef(name string) api.RunRef {
	if name == "latest" {
		return api.RunRef{Latest: true}
	}
	return api.RunRef{RunID: name}
}

func runPlot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	runID, latest := addRunRefFlags(fs)
	out := fs.String("out", "", "output PNG (default: goal_map.png in the run directory)")
	scale := fs.Float64("scale", 0, "grid cells per unit (default grid when 0)")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := runRef(*runID, *latest)
	if err != nil {
		return err
	}
	grid := world.DefaultGrid()
	if *scale > 0 {
		grid.Scale = *scale
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.PlotGoalMap(ctx, api.PlotGoalMapRequest{Run: ref, Grid: grid, OutPath: *out})
	if err != nil {
		return err
	}
	fmt.Printf("plotted run_id=%s points=%s path=%s\n", summary.RunID, humanize.Comma(int64(summary.Points)), summary.Path)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID, latest := addRunRefFlags(fs)
	outDir := fs.String("out", exportsDir, "export output directory")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := runRef(*runID, *latest)
	if err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, api.ExportRequest{Run: ref, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("delete requires --run-id")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Delete(ctx, *runID); err != nil {
		return err
	}
	fmt.Printf("deleted run_id=%s store=%s\n", *runID, *cf.storeKind)
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatVec(v kinematics.Vec2) string {
	return fmt.Sprintf("%.4f,%.4f", v.X, v.Y)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: sticksoloctl <train|runs|show|reach|transfers|walk|plot|export|delete> [flags]", msg)
}
