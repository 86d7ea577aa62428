package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"sticksolo/internal/kinematics"
	api "sticksolo/pkg/sticksolo"
)

func TestLoadTrainRequestJSONKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.json")
	payload := map[string]any{
		"optimizer": map[string]any{
			"generations":       7,
			"batch_size":        12,
			"num_episodes":      3,
			"num_episode_ticks": 40,
			"elite_frac":        0.5,
			"initial_std":       0.5,
			"noise_factor":      0.9,
		},
		"samples": 250,
		"seed":    99,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadTrainRequest(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if req.Optimizer.Generations != 7 || req.Optimizer.BatchSize != 12 || req.Optimizer.EliteFrac != 0.5 {
		t.Fatalf("unexpected optimizer config: %+v", req.Optimizer)
	}
	if req.Samples != 250 || req.Seed != 99 {
		t.Fatalf("unexpected samples/seed: %d/%d", req.Samples, req.Seed)
	}
	if len(req.World.HoldingLengths) != len(api.DefaultTrainRequest().World.HoldingLengths) {
		t.Fatalf("expected default world to survive partial config, got %+v", req.World)
	}
}

func TestLoadTrainRequestYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	body := `
optimizer:
  generations: 3
  batch_size: 8
  num_episodes: 2
  num_episode_ticks: 10
  elite_frac: 0.25
  initial_std: 1
  noise_factor: 1
world:
  holding_side: right
  origin: {x: 0, y: 0}
  holding_lengths: [0.3, 0.3]
  holding_bounds: [{}, {min: 0}]
  non_holding_lengths: [0.3, 0.3]
  non_holding_bounds: [{}, {min: 0}]
  goal_region:
    min: {x: -0.4, y: -0.4}
    max: {x: 0.4, y: 0.4}
seed: 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadTrainRequest(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if req.World.HoldingSide != kinematics.Right {
		t.Fatalf("expected right holding side, got %s", req.World.HoldingSide)
	}
	if req.World.HoldingLengths[0] != 0.3 || req.World.HoldingBounds[1].Min == nil {
		t.Fatalf("unexpected world: %+v", req.World)
	}
	if req.Optimizer.Generations != 3 || req.Seed != 5 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		body string
	}{
		{name: "bad.json", body: `{"samples": 10, "population": 4}`},
		{name: "bad.yml", body: "samples: 10\npopulation: 4\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name)
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			req := api.DefaultTrainRequest()
			if err := loadConfigFile(path, &req); err == nil {
				t.Fatal("expected unknown field error")
			}
		})
	}
}

func TestLoadTrainRequestValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.json")
	if err := os.WriteFile(path, []byte(`{"optimizer": {"generations": 0}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadTrainRequest(path); err == nil {
		t.Fatal("expected validation error for zero generations")
	}
}

func TestLoadTransfersConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.yaml")
	body := "parts: 4\nradius: 0.2\nmax_ticks: 300\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	req := api.DefaultTransfersRequest()
	if err := loadConfigFile(path, &req); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if req.Parts != 4 || req.Radius != 0.2 || req.MaxTicks != 300 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.Chain.Lengths) != 4 {
		t.Fatalf("expected default chain to survive, got %+v", req.Chain)
	}
}

func TestParseVec(t *testing.T) {
	v, err := parseVec(" -0.25, 0.5")
	if err != nil {
		t.Fatalf("parse vec: %v", err)
	}
	if v != kinematics.V(-0.25, 0.5) {
		t.Fatalf("unexpected vec: %+v", v)
	}
	for _, bad := range []string{"", "1", "1,2,3", "a,1", "1,b"} {
		if _, err := parseVec(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
