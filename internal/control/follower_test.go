package control

import (
	"context"
	"testing"

	"sticksolo/internal/kinematics"
	"sticksolo/internal/sampling"
)

func followerChain(t *testing.T) *kinematics.Chain {
	t.Helper()
	c, err := kinematics.New(kinematics.Spec{
		Origin:  kinematics.V(0, -0.1),
		Lengths: []float64{0.2, 0.2, 0.2, 0.2},
		Angles:  []float64{0.3, 0.2, 0.1, 0.2},
		Side:    kinematics.Left,
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	return c
}

func testSampler() sampling.Sampler {
	return sampling.Sampler{Samples: 200, Workers: 2, Seed: 1}
}

func TestPathFollowerSwitchesOnReachedFoothold(t *testing.T) {
	c := followerChain(t)
	end := c.LastVertex()
	origin := c.Origin()
	f, err := NewPathFollower(c, []kinematics.Vec2{end, end.Add(kinematics.V(0.3, 0))}, testSampler())
	if err != nil {
		t.Fatalf("new follower: %v", err)
	}

	ev, err := f.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ev != EventSwitched {
		t.Fatalf("expected switch, got %s", ev)
	}
	if f.Switches() != 1 || f.Remaining() != 1 {
		t.Fatalf("unexpected bookkeeping: switches=%d remaining=%d", f.Switches(), f.Remaining())
	}
	if !c.Origin().ApproxEqual(end, 1e-12) || !c.LastVertex().ApproxEqual(origin, 1e-9) {
		t.Fatalf("pivot not moved to foothold: origin=%+v end=%+v", c.Origin(), c.LastVertex())
	}
	if c.Side() != kinematics.Right {
		t.Fatalf("expected side to flip, got %s", c.Side())
	}
	if len(f.Target()) != c.N() {
		t.Fatalf("target not reseeded: %v", f.Target())
	}
}

func TestPathFollowerBacktracksOverPivot(t *testing.T) {
	c := followerChain(t)
	origin := c.Origin()
	behind := origin.Add(kinematics.V(-0.3, 0))
	f, err := NewPathFollower(c, []kinematics.Vec2{behind}, testSampler())
	if err != nil {
		t.Fatalf("new follower: %v", err)
	}

	ev, err := f.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ev != EventBacktrack {
		t.Fatalf("expected backtrack, got %s", ev)
	}
	goal, ok := f.Goal()
	if !ok || goal != origin || f.Remaining() != 2 {
		t.Fatalf("origin not pushed as intermediate foothold: goal=%+v remaining=%d", goal, f.Remaining())
	}
}

func TestPathFollowerMovesTowardFoothold(t *testing.T) {
	c := followerChain(t)
	before := c.Angles()
	goal := c.Origin().Add(kinematics.V(0.4, 0))
	f, err := NewPathFollower(c, []kinematics.Vec2{goal}, testSampler())
	if err != nil {
		t.Fatalf("new follower: %v", err)
	}
	ev, err := f.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ev != EventMoved {
		t.Fatalf("expected move, got %s", ev)
	}
	after := c.Angles()
	moved := false
	for i := range before {
		if d := after[i] - before[i]; d > kinematics.MaxDeltaAngle+1e-12 || d < -kinematics.MaxDeltaAngle-1e-12 {
			t.Fatalf("joint %d exceeded rate limit: %f", i, d)
		} else if d != 0 {
			moved = true
		}
	}
	if !moved {
		t.Fatal("no joint moved")
	}
}

func TestPathFollowerEmptyPath(t *testing.T) {
	f, err := NewPathFollower(followerChain(t), nil, testSampler())
	if err != nil {
		t.Fatalf("new follower: %v", err)
	}
	n, err := f.Run(context.Background(), 10, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 || !f.Done() {
		t.Fatalf("expected immediate idle finish, got ticks=%d done=%v", n, f.Done())
	}
	if _, err := NewPathFollower(nil, nil, testSampler()); err == nil {
		t.Fatal("expected nil chain error")
	}
}

func TestTwoLoopPath(t *testing.T) {
	path := TwoLoopPath(8, 0.5)
	if len(path) != 16 {
		t.Fatalf("unexpected path length: %d", len(path))
	}
	if !path[0].ApproxEqual(kinematics.V(0, 0), 1e-12) {
		t.Fatalf("first foothold should be the origin, got %+v", path[0])
	}
	if !path[8].ApproxEqual(kinematics.V(0, 0), 1e-12) {
		t.Fatalf("second loop should start at the origin, got %+v", path[8])
	}
}
