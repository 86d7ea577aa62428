package stats

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"sticksolo/internal/kinematics"
	"sticksolo/internal/world"
)

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("%s is not a png", path)
	}
}

func TestSaveRewardCurve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "curve.png")
	if err := SaveRewardCurve(path, testExperiment(t, "run").History); err != nil {
		t.Fatalf("save curve: %v", err)
	}
	assertPNG(t, path)

	if err := SaveRewardCurve(path, nil); err == nil {
		t.Fatal("expected empty history error")
	}
}

func TestSaveGoalMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goal_map.png")
	points := []world.GoalMapPoint{
		{Goal: kinematics.V(-0.5, 0), HoldingGoal: kinematics.V(-0.1, 0.05)},
		{Goal: kinematics.V(-0.3, 0.2), HoldingGoal: kinematics.V(-0.05, 0.1)},
	}
	if err := SaveGoalMap(path, points); err != nil {
		t.Fatalf("save goal map: %v", err)
	}
	assertPNG(t, path)

	if err := SaveGoalMap(path, nil); err == nil {
		t.Fatal("expected empty goal map error")
	}
}
