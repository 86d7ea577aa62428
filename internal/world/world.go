// Package world describes the reaching task a policy network is trained on:
// a two-limb body holding on at an origin, asked to touch a sampled goal
// with its free limb.
package world

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"sticksolo/internal/kinematics"
	"sticksolo/internal/nn"
)

var ErrInvalidWorld = errors.New("invalid world")

// Bound is an optional joint limit. A nil side is unbounded.
type Bound struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

func Free() Bound { return Bound{} }

func Between(lo, hi float64) Bound { return Bound{Min: &lo, Max: &hi} }

func (b Bound) Clamp() kinematics.Clamp {
	c := kinematics.Unbounded()
	if b.Min != nil {
		c.Min = *b.Min
	}
	if b.Max != nil {
		c.Max = *b.Max
	}
	return c
}

// sample draws uniformly when both sides are set, returns the set side when
// only one is, and 0 for a free joint.
func (b Bound) sample(rng *rand.Rand) float64 {
	switch {
	case b.Min != nil && b.Max != nil:
		return *b.Min + rng.Float64()*(*b.Max-*b.Min)
	case b.Min != nil:
		return *b.Min
	case b.Max != nil:
		return *b.Max
	default:
		return 0
	}
}

// Region is an axis-aligned box.
type Region struct {
	Min kinematics.Vec2 `json:"min" yaml:"min"`
	Max kinematics.Vec2 `json:"max" yaml:"max"`
}

// World is the reaching task. GoalRegion is relative to Origin and measured
// in units of the body's total limb length.
type World struct {
	HoldingSide       kinematics.Side `json:"holding_side" yaml:"holding_side"`
	Origin            kinematics.Vec2 `json:"origin" yaml:"origin"`
	HoldingLengths    []float64       `json:"holding_lengths" yaml:"holding_lengths"`
	HoldingBounds     []Bound         `json:"holding_bounds" yaml:"holding_bounds"`
	NonHoldingLengths []float64       `json:"non_holding_lengths" yaml:"non_holding_lengths"`
	NonHoldingBounds  []Bound         `json:"non_holding_bounds" yaml:"non_holding_bounds"`
	GoalRegion        Region          `json:"goal_region" yaml:"goal_region"`
}

// DefaultWorld is a left-holding body with two 0.2 links per limb whose
// elbows bend one way, reaching down and to the left.
func DefaultWorld() World {
	return World{
		HoldingSide:       kinematics.Left,
		HoldingLengths:    []float64{0.2, 0.2},
		HoldingBounds:     []Bound{Free(), Between(-math.Pi, 0)},
		NonHoldingLengths: []float64{0.2, 0.2},
		NonHoldingBounds:  []Bound{Free(), Between(-math.Pi, 0)},
		GoalRegion: Region{
			Min: kinematics.V(-0.8, -0.8),
			Max: kinematics.V(0.1, 0.8),
		},
	}
}

func (w World) Validate() error {
	if len(w.HoldingLengths) == 0 || len(w.NonHoldingLengths) == 0 {
		return fmt.Errorf("%w: both limbs need at least one link", ErrInvalidWorld)
	}
	if len(w.HoldingBounds) != len(w.HoldingLengths) {
		return fmt.Errorf("%w: %d holding bounds for %d links", ErrInvalidWorld, len(w.HoldingBounds), len(w.HoldingLengths))
	}
	if len(w.NonHoldingBounds) != len(w.NonHoldingLengths) {
		return fmt.Errorf("%w: %d non-holding bounds for %d links", ErrInvalidWorld, len(w.NonHoldingBounds), len(w.NonHoldingLengths))
	}
	if w.HoldingSide != kinematics.Left && w.HoldingSide != kinematics.Right {
		return fmt.Errorf("%w: unknown holding side", ErrInvalidWorld)
	}
	if w.GoalRegion.Min.X > w.GoalRegion.Max.X || w.GoalRegion.Min.Y > w.GoalRegion.Max.Y {
		return fmt.Errorf("%w: goal region min exceeds max", ErrInvalidWorld)
	}
	// Building a pair checks lengths and limits against the chain rules.
	if _, err := w.NewPair(rand.New(rand.NewSource(1))); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorld, err)
	}
	return nil
}

// Scale is the summed length of both limbs.
func (w World) Scale() float64 {
	var total float64
	for _, l := range w.HoldingLengths {
		total += l
	}
	for _, l := range w.NonHoldingLengths {
		total += l
	}
	return total
}

// InputWidth is the width of Encode's output for this world.
func (w World) InputWidth() int { return len(w.HoldingLengths) + len(w.NonHoldingLengths) + 2 }

// DefaultLayers is the policy architecture used for reaching: two hidden
// leaky ReLU layers mapping the encoded task to a holding goal.
func (w World) DefaultLayers() []nn.LayerSpec {
	return []nn.LayerSpec{
		{Width: w.InputWidth(), Activation: nn.Linear()},
		{Width: 16, Activation: nn.LeakyReLU(0.1)},
		{Width: 16, Activation: nn.LeakyReLU(0.1)},
		{Width: 2, Activation: nn.Linear()},
	}
}

func clamps(bounds []Bound) []kinematics.Clamp {
	out := make([]kinematics.Clamp, len(bounds))
	for i, b := range bounds {
		out[i] = b.Clamp()
	}
	return out
}

func sampleAngles(bounds []Bound, rng *rand.Rand) []float64 {
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.sample(rng)
	}
	return out
}

func (w World) HoldingClamps() []kinematics.Clamp    { return clamps(w.HoldingBounds) }
func (w World) NonHoldingClamps() []kinematics.Clamp { return clamps(w.NonHoldingBounds) }

func (w World) SampleHoldingAngles(rng *rand.Rand) []float64 {
	return sampleAngles(w.HoldingBounds, rng)
}

func (w World) SampleNonHoldingAngles(rng *rand.Rand) []float64 {
	return sampleAngles(w.NonHoldingBounds, rng)
}

// SampleGoal draws a point uniformly from the scaled goal region.
func (w World) SampleGoal(rng *rand.Rand) kinematics.Vec2 {
	s := w.Scale()
	lo := w.GoalRegion.Min.Scale(s)
	hi := w.GoalRegion.Max.Scale(s)
	return w.Origin.Add(lo).Add(kinematics.V(rng.Float64()*(hi.X-lo.X), rng.Float64()*(hi.Y-lo.Y)))
}

// NewPair spawns a body at the origin with randomly drawn joint angles.
func (w World) NewPair(rng *rand.Rand) (*kinematics.HoldingPair, error) {
	return kinematics.NewHoldingPair(kinematics.PairSpec{
		Side:   w.HoldingSide,
		Origin: w.Origin,
		Holding: kinematics.Limb{
			Lengths: w.HoldingLengths,
			Angles:  w.SampleHoldingAngles(rng),
			Clamps:  w.HoldingClamps(),
		},
		NonHolding: kinematics.Limb{
			Lengths: w.NonHoldingLengths,
			Angles:  w.SampleNonHoldingAngles(rng),
			Clamps:  w.NonHoldingClamps(),
		},
	})
}
