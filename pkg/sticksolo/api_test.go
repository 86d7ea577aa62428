package sticksolo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sticksolo/internal/ceo"
	"sticksolo/internal/kinematics"
	"sticksolo/internal/world"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(base, "runs"),
		ExportsDir:   filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, base
}

func smallTrainRequest() TrainRequest {
	req := DefaultTrainRequest()
	req.Optimizer.Generations = 2
	req.Optimizer.BatchSize = 4
	req.Optimizer.NumEpisodes = 1
	req.Optimizer.NumEpisodeTicks = 5
	req.Optimizer.EliteFrac = 0.5
	req.Optimizer.Workers = 2
	req.Samples = 50
	req.SamplerWorkers = 1
	req.Seed = 42
	return req
}

func TestClientTrainRunsAndExport(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	var observed []ceo.GenerationDiagnostics
	req := smallTrainRequest()
	req.Observer = func(d ceo.GenerationDiagnostics) { observed = append(observed, d) }
	summary, err := client.Train(ctx, req)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if summary.RunID == "" || len(summary.History) != 2 || len(observed) != 2 {
		t.Fatalf("unexpected train summary: %+v", summary)
	}
	for _, file := range []string{"experiment.json", "reward_history.csv", "reward_curve.png"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].Seed != 42 {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	exported, err := client.Export(ctx, ExportRequest{Run: RunRef{Latest: true}})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID || filepath.Dir(exported.Directory) != filepath.Join(base, "exports") {
		t.Fatalf("unexpected export: %+v", exported)
	}
}

func TestClientReplaysTrainedRun(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Train(ctx, smallTrainRequest())
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	goal := kinematics.V(-0.3, 0)
	reach, err := client.Reach(ctx, ReachRequest{Run: RunRef{RunID: summary.RunID}, Goal: &goal, Ticks: 6, Seed: 3, Samples: 50, Trace: true})
	if err != nil {
		t.Fatalf("reach: %v", err)
	}
	if reach.RunID != summary.RunID || len(reach.Frames) != 6 || reach.Result.Goals.NonHolding != goal {
		t.Fatalf("unexpected reach summary: %+v", reach)
	}

	plot, err := client.PlotGoalMap(ctx, PlotGoalMapRequest{
		Run:  RunRef{Latest: true},
		Grid: world.GridSpec{XMin: -2, XMax: 1, YMin: -2, YMax: 2, Scale: 5},
	})
	if err != nil {
		t.Fatalf("plot goal map: %v", err)
	}
	if plot.Points != 20 {
		t.Fatalf("expected 20 grid points, got %d", plot.Points)
	}
	if _, err := os.Stat(plot.Path); err != nil {
		t.Fatalf("expected goal map file: %v", err)
	}

	walk, err := client.Walk(ctx, WalkRequest{
		Left:     RunRef{RunID: summary.RunID},
		Right:    RunRef{RunID: summary.RunID},
		Path:     []kinematics.Vec2{kinematics.V(0.3, -0.1)},
		MaxTicks: 10,
		Samples:  50,
		Seed:     5,
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if walk.Ticks == 0 || walk.Ticks > 10 {
		t.Fatalf("unexpected walk ticks: %+v", walk)
	}

	// Artifacts keep a run reachable after it leaves the store.
	if err := client.Delete(ctx, summary.RunID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := client.Experiment(ctx, RunRef{RunID: summary.RunID}); err != nil {
		t.Fatalf("experiment from artifacts: %v", err)
	}
}

func TestClientTrainRejectsInvalidRequest(t *testing.T) {
	client, _ := newTestClient(t)
	cases := []struct {
		name   string
		mutate func(*TrainRequest)
	}{
		{name: "batch size", mutate: func(r *TrainRequest) { r.Optimizer.BatchSize = 0 }},
		{name: "world", mutate: func(r *TrainRequest) { r.World.HoldingLengths = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := smallTrainRequest()
			tc.mutate(&req)
			if _, err := client.Train(context.Background(), req); err == nil {
				t.Fatal("expected train error")
			}
		})
	}
}

func TestClientRunResolution(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Experiment(ctx, RunRef{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected ambiguous ref error")
	}
	if _, err := client.Experiment(ctx, RunRef{}); err == nil {
		t.Fatal("expected missing ref error")
	}
	if _, err := client.Experiment(ctx, RunRef{Latest: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty index, got %v", err)
	}
	if _, err := client.Experiment(ctx, RunRef{RunID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := client.Export(ctx, ExportRequest{Run: RunRef{RunID: "missing"}}); err == nil {
		t.Fatal("expected export error for missing run")
	}
}

func TestClientTransfers(t *testing.T) {
	client, _ := newTestClient(t)
	req := DefaultTransfersRequest()
	req.Parts = 2
	req.MaxTicks = 40
	req.Samples = 100
	req.Seed = 9

	summary, err := client.Transfers(context.Background(), req)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if summary.Ticks == 0 || summary.Ticks > req.MaxTicks {
		t.Fatalf("unexpected ticks: %+v", summary)
	}
	if summary.Finished != (summary.Remaining == 0) {
		t.Fatalf("finished flag disagrees with remaining path: %+v", summary)
	}

	req.Parts = 0
	if _, err := client.Transfers(context.Background(), req); err == nil {
		t.Fatal("expected parts error")
	}
	req = DefaultTransfersRequest()
	req.Chain.Lengths = nil
	if _, err := client.Transfers(context.Background(), req); !errors.Is(err, kinematics.ErrInvalidChain) {
		t.Fatalf("expected ErrInvalidChain, got %v", err)
	}
}

func TestClientWalkValidation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	path := []kinematics.Vec2{kinematics.V(0.3, 0)}
	if _, err := client.Walk(ctx, WalkRequest{Path: path, MaxTicks: 5}); err == nil {
		t.Fatal("expected missing run error")
	}
	if _, err := client.Walk(ctx, WalkRequest{Left: RunRef{RunID: "x"}, MaxTicks: 5}); err == nil {
		t.Fatal("expected missing path error")
	}
	if _, err := client.Walk(ctx, WalkRequest{Left: RunRef{RunID: "missing"}, Path: path, MaxTicks: 5}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
