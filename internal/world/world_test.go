package world

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"sticksolo/internal/control"
	"sticksolo/internal/kinematics"
	"sticksolo/internal/nn"
	"sticksolo/internal/sampling"
)

func testSampler() sampling.Sampler {
	return sampling.Sampler{Samples: 300, Workers: 2, Seed: 3}
}

func zeroPolicy(t *testing.T, w World) *nn.FCN {
	t.Helper()
	net, err := nn.NewFCN(w.DefaultLayers())
	if err != nil {
		t.Fatalf("new fcn: %v", err)
	}
	return net
}

func TestWorldValidate(t *testing.T) {
	if err := DefaultWorld().Validate(); err != nil {
		t.Fatalf("default world invalid: %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*World)
	}{
		{name: "no holding links", mutate: func(w *World) { w.HoldingLengths = nil; w.HoldingBounds = nil }},
		{name: "bound count", mutate: func(w *World) { w.NonHoldingBounds = w.NonHoldingBounds[:1] }},
		{name: "bounded root", mutate: func(w *World) { w.HoldingBounds = []Bound{Between(-1, 1), Free()} }},
		{name: "inverted region", mutate: func(w *World) { w.GoalRegion.Min.X = 1 }},
		{name: "negative length", mutate: func(w *World) { w.NonHoldingLengths = []float64{0.2, -0.2} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := DefaultWorld()
			tc.mutate(&w)
			if err := w.Validate(); !errors.Is(err, ErrInvalidWorld) {
				t.Fatalf("expected ErrInvalidWorld, got %v", err)
			}
		})
	}
}

func TestSamplingStaysInBounds(t *testing.T) {
	w := DefaultWorld()
	w.Origin = kinematics.V(1, -1)
	rng := rand.New(rand.NewSource(4))
	s := w.Scale()
	for i := 0; i < 200; i++ {
		g := w.SampleGoal(rng).Sub(w.Origin)
		if g.X < w.GoalRegion.Min.X*s-1e-12 || g.X > w.GoalRegion.Max.X*s+1e-12 ||
			g.Y < w.GoalRegion.Min.Y*s-1e-12 || g.Y > w.GoalRegion.Max.Y*s+1e-12 {
			t.Fatalf("goal %+v outside scaled region", g)
		}
		qs := w.SampleHoldingAngles(rng)
		if qs[0] != 0 {
			t.Fatalf("free joint should start at 0, got %f", qs[0])
		}
		if qs[1] < -math.Pi || qs[1] > 0 {
			t.Fatalf("bounded joint %f outside [-pi, 0]", qs[1])
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	w := DefaultWorld()
	pair, err := w.NewPair(rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new pair: %v", err)
	}
	goal := kinematics.V(-0.4, 0.2)
	input, scale := Encode(pair, goal)
	if len(input) != w.InputWidth() || scale != w.Scale() {
		t.Fatalf("unexpected encoding shape: len=%d scale=%f", len(input), scale)
	}
	for i := 0; i < 4; i++ {
		if math.Abs(input[i]-0.25) > 1e-12 {
			t.Fatalf("length %d not normalised: %v", i, input)
		}
	}
	if math.Abs(input[4]+0.5) > 1e-12 || math.Abs(input[5]-0.25) > 1e-12 {
		t.Fatalf("relative goal not normalised: %v", input[4:])
	}
	if got := Decode(input[4:], scale, pair.Holding().Origin()); !got.ApproxEqual(goal, 1e-12) {
		t.Fatalf("decode(encode) = %+v, want %+v", got, goal)
	}
}

func TestSolveProducesReachableTargets(t *testing.T) {
	w := DefaultWorld()
	pair, err := w.NewPair(rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("new pair: %v", err)
	}
	goals := GoalPair{Holding: kinematics.V(-0.2, -0.1), NonHolding: kinematics.V(-0.5, 0)}
	targets, err := Solve(context.Background(), testSampler(), pair, goals)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(targets.Holding) != 2 || len(targets.NonHolding) != 2 {
		t.Fatalf("unexpected target shapes: %+v", targets)
	}
	clamps := w.HoldingClamps()
	if !clamps[1].Contains(targets.Holding[1]) {
		t.Fatalf("holding elbow %f outside clamp", targets.Holding[1])
	}
	end, _ := kinematics.EndAndCOM(pair.Holding().Origin(), w.HoldingLengths, targets.Holding)
	if end.Dist(goals.Holding) > 0.15 {
		t.Fatalf("holding target ends far from its goal: %+v vs %+v", end, goals.Holding)
	}
}

func TestControlRespectsRateLimit(t *testing.T) {
	w := DefaultWorld()
	pair, err := w.NewPair(rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("new pair: %v", err)
	}
	before := append(pair.Holding().Angles(), pair.NonHolding().Angles()...)
	targets := Targets{Holding: []float64{3, -3}, NonHolding: []float64{-3, -0.1}}
	Control(pair, control.ReachSchedule(), targets, GoalPair{NonHolding: kinematics.V(-0.3, 0)}, 0)
	after := append(pair.Holding().Angles(), pair.NonHolding().Angles()...)
	for i := range before {
		if math.Abs(after[i]-before[i]) > kinematics.MaxDeltaAngle+1e-12 {
			t.Fatalf("joint %d moved %f in one tick", i, after[i]-before[i])
		}
	}
	if !pair.NonHolding().Origin().ApproxEqual(pair.Holding().LastVertex(), 1e-12) {
		t.Fatal("pair lost its anchor")
	}
}

func TestRolloutDeterministicAndConsistent(t *testing.T) {
	w := DefaultWorld()
	policy := zeroPolicy(t, w)

	a, err := NewRollout(w, testSampler(), 17)
	if err != nil {
		t.Fatalf("new rollout: %v", err)
	}
	b, err := NewRollout(w, testSampler(), 17)
	if err != nil {
		t.Fatalf("new rollout: %v", err)
	}
	ra, err := a.AverageReward(context.Background(), policy, policy.Parameters(), 2, 15)
	if err != nil {
		t.Fatalf("average reward: %v", err)
	}
	rb, err := b.AverageReward(context.Background(), policy, policy.Parameters(), 2, 15)
	if err != nil {
		t.Fatalf("average reward: %v", err)
	}
	if ra != rb || math.IsNaN(ra) {
		t.Fatalf("same seed gave different rewards: %f %f", ra, rb)
	}
}

func TestEpisodeRewardAccounting(t *testing.T) {
	w := DefaultWorld()
	policy := zeroPolicy(t, w)
	r, err := NewRollout(w, testSampler(), 9)
	if err != nil {
		t.Fatalf("new rollout: %v", err)
	}
	goal := kinematics.V(-0.3, 0.1)
	var frames []Frame
	res, err := r.Episode(context.Background(), policy, policy.Parameters(), rand.New(rand.NewSource(1)), &goal, 25, func(f Frame) {
		frames = append(frames, f)
	})
	if err != nil {
		t.Fatalf("episode: %v", err)
	}
	if len(frames) != 25 || res.Ticks != 25 {
		t.Fatalf("expected 25 frames, got %d", len(frames))
	}
	if res.Goals.NonHolding != goal || !res.Goals.Holding.ApproxEqual(w.Origin, 1e-12) {
		t.Fatalf("unexpected goals for zero policy: %+v", res.Goals)
	}
	var sum float64
	for _, f := range frames {
		sum += f.Reward
	}
	if res.HoldingReached {
		sum += HoldingReachedBonus
	}
	if res.NonHoldingReached {
		sum += NonHoldingReachedBonus
	}
	if math.Abs(sum-res.Reward) > 1e-9 {
		t.Fatalf("reward %f does not match frame sum %f", res.Reward, sum)
	}
}

func TestRolloutRejectsBadInput(t *testing.T) {
	w := DefaultWorld()
	r, err := NewRollout(w, testSampler(), 1)
	if err != nil {
		t.Fatalf("new rollout: %v", err)
	}
	policy := zeroPolicy(t, w)
	if _, err := r.AverageReward(context.Background(), policy, []float64{1}, 1, 1); !errors.Is(err, nn.ErrInvalidNetwork) {
		t.Fatalf("expected ErrInvalidNetwork, got %v", err)
	}
	if _, err := r.AverageReward(context.Background(), policy, policy.Parameters(), 0, 1); err == nil {
		t.Fatal("expected episode count error")
	}
	bad := w
	bad.HoldingBounds = nil
	if _, err := NewRollout(bad, testSampler(), 1); !errors.Is(err, ErrInvalidWorld) {
		t.Fatalf("expected ErrInvalidWorld, got %v", err)
	}
}

func walkPair(t *testing.T) *kinematics.HoldingPair {
	t.Helper()
	elbow := []kinematics.Clamp{kinematics.Unbounded(), {Min: -math.Pi, Max: 0}}
	pair, err := kinematics.NewHoldingPair(kinematics.PairSpec{
		Side:       kinematics.Left,
		Holding:    kinematics.Limb{Lengths: []float64{0.2, 0.2}, Angles: []float64{0.5, -0.3}, Clamps: elbow},
		NonHolding: kinematics.Limb{Lengths: []float64{0.2, 0.2}, Angles: []float64{-0.5, -0.2}, Clamps: elbow},
	})
	if err != nil {
		t.Fatalf("new pair: %v", err)
	}
	return pair
}

func TestWalkerSwitchesHoldAtPathPoint(t *testing.T) {
	pair := walkPair(t)
	w := DefaultWorld()
	policy := zeroPolicy(t, w)
	free := pair.NonHolding().LastVertex()
	path := []kinematics.Vec2{free, free.Add(kinematics.V(-0.2, 0))}

	walker, err := NewWalker(pair, path, map[kinematics.Side]*nn.FCN{kinematics.Left: policy, kinematics.Right: policy}, testSampler())
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	ev, err := walker.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ev != control.EventSwitched || walker.Switches() != 1 {
		t.Fatalf("expected a hold switch, got %s", ev)
	}
	if !pair.Holding().Origin().ApproxEqual(free, 1e-9) {
		t.Fatalf("new holding origin %+v, want %+v", pair.Holding().Origin(), free)
	}
	if walker.Goals().NonHolding != path[1] {
		t.Fatalf("walker did not replan for the next point: %+v", walker.Goals())
	}
}

func TestWalkerNeedsPolicyForSide(t *testing.T) {
	pair := walkPair(t)
	policy := zeroPolicy(t, DefaultWorld())
	free := pair.NonHolding().LastVertex()
	walker, err := NewWalker(pair, []kinematics.Vec2{free, free}, map[kinematics.Side]*nn.FCN{kinematics.Left: policy}, testSampler())
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	if _, err := walker.Tick(context.Background()); err == nil {
		t.Fatal("expected missing right-side policy error after switching hold")
	}
	if _, err := NewWalker(pair, nil, nil, testSampler()); err == nil {
		t.Fatal("expected missing policy error")
	}
}

func TestGoalMap(t *testing.T) {
	w := DefaultWorld()
	policy := zeroPolicy(t, w)
	grid := GridSpec{XMin: -2, XMax: 2, YMin: -1, YMax: 1, Scale: 10}
	points, err := GoalMap(w, policy, grid)
	if err != nil {
		t.Fatalf("goal map: %v", err)
	}
	if len(points) != 15 {
		t.Fatalf("unexpected point count: %d", len(points))
	}
	if points[0].Goal != kinematics.V(-0.2, -0.1) {
		t.Fatalf("unexpected first goal: %+v", points[0].Goal)
	}
	for _, p := range points {
		if p.HoldingGoal != (kinematics.Vec2{}) {
			t.Fatalf("zero policy should map every goal to the origin, got %+v", p.HoldingGoal)
		}
	}
	if _, err := GoalMap(w, policy, GridSpec{XMin: 1, XMax: 0, YMin: 0, YMax: 1, Scale: 1}); err == nil {
		t.Fatal("expected grid range error")
	}
}
