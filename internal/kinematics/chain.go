package kinematics

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxDeltaAngle bounds how far a single Update may move any joint.
	MaxDeltaAngle = 0.04
	// GoalReachedSlack is the distance under which an end point counts as on its goal.
	GoalReachedSlack = 0.01
	DefaultThickness = 0.01
)

var ErrInvalidChain = errors.New("invalid chain")

// Spec describes a chain to construct. Clamps may be nil, in which case every
// joint is unbounded.
type Spec struct {
	Origin    Vec2      `json:"origin" yaml:"origin"`
	Lengths   []float64 `json:"lengths" yaml:"lengths"`
	Angles    []float64 `json:"angles" yaml:"angles"`
	Clamps    []Clamp   `json:"clamps,omitempty" yaml:"clamps,omitempty"`
	Side      Side      `json:"side" yaml:"side"`
	Thickness float64   `json:"thickness,omitempty" yaml:"thickness,omitempty"`
}

// Chain is a planar serial linkage anchored at Origin. Angle 0 is absolute,
// the rest are relative to the previous link. A Chain has a single writer;
// callers that sample from it in parallel work on copies.
type Chain struct {
	origin    Vec2
	lengths   []float64
	angles    []float64
	clamps    []Clamp
	side      Side
	thickness float64
}

func New(spec Spec) (*Chain, error) {
	n := len(spec.Lengths)
	if n == 0 {
		return nil, fmt.Errorf("%w: at least one link is required", ErrInvalidChain)
	}
	if len(spec.Angles) != n {
		return nil, fmt.Errorf("%w: %d angles for %d links", ErrInvalidChain, len(spec.Angles), n)
	}
	clamps := spec.Clamps
	if clamps == nil {
		clamps = make([]Clamp, n)
		for i := range clamps {
			clamps[i] = Unbounded()
		}
	}
	if len(clamps) != n {
		return nil, fmt.Errorf("%w: %d clamps for %d links", ErrInvalidChain, len(clamps), n)
	}
	if spec.Side != Left && spec.Side != Right {
		return nil, fmt.Errorf("%w: unknown side %d", ErrInvalidChain, int(spec.Side))
	}
	if spec.Thickness < 0 || math.IsNaN(spec.Thickness) {
		return nil, fmt.Errorf("%w: thickness must be >= 0", ErrInvalidChain)
	}
	for i, l := range spec.Lengths {
		if !(l > 0) || math.IsInf(l, 0) {
			return nil, fmt.Errorf("%w: length %d must be positive and finite, got %g", ErrInvalidChain, i, l)
		}
	}
	if c := clamps[0]; !math.IsInf(c.Min, -1) || !math.IsInf(c.Max, 1) {
		return nil, fmt.Errorf("%w: root clamp must be unbounded, got [%g, %g]", ErrInvalidChain, c.Min, c.Max)
	}
	for i := 1; i < n; i++ {
		c := clamps[i]
		if math.IsNaN(c.Min) || math.IsNaN(c.Max) || c.Min >= c.Max {
			return nil, fmt.Errorf("%w: clamp %d has min %g >= max %g", ErrInvalidChain, i, c.Min, c.Max)
		}
	}
	for i, q := range spec.Angles {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return nil, fmt.Errorf("%w: angle %d is not finite", ErrInvalidChain, i)
		}
		if !clamps[i].Contains(q) {
			return nil, fmt.Errorf("%w: angle %d = %g outside [%g, %g]", ErrInvalidChain, i, q, clamps[i].Min, clamps[i].Max)
		}
	}

	thickness := spec.Thickness
	if thickness == 0 {
		thickness = DefaultThickness
	}
	return &Chain{
		origin:    spec.Origin,
		lengths:   append([]float64(nil), spec.Lengths...),
		angles:    append([]float64(nil), spec.Angles...),
		clamps:    append([]Clamp(nil), clamps...),
		side:      spec.Side,
		thickness: thickness,
	}, nil
}

func (c *Chain) N() int             { return len(c.lengths) }
func (c *Chain) Origin() Vec2       { return c.origin }
func (c *Chain) Side() Side         { return c.side }
func (c *Chain) Thickness() float64 { return c.thickness }

func (c *Chain) Lengths() []float64 { return append([]float64(nil), c.lengths...) }
func (c *Chain) Angles() []float64  { return append([]float64(nil), c.angles...) }
func (c *Chain) Clamps() []Clamp    { return append([]Clamp(nil), c.clamps...) }

// TotalMass is the summed link length; links have unit density.
func (c *Chain) TotalMass() float64 {
	var total float64
	for _, l := range c.lengths {
		total += l
	}
	return total
}

// SetOrigin moves the anchor without changing the joint configuration.
func (c *Chain) SetOrigin(origin Vec2) { c.origin = origin }

func (c *Chain) Spec() Spec {
	return Spec{
		Origin:    c.origin,
		Lengths:   c.Lengths(),
		Angles:    c.Angles(),
		Clamps:    c.Clamps(),
		Side:      c.side,
		Thickness: c.thickness,
	}
}

func (c *Chain) Clone() *Chain {
	return &Chain{
		origin:    c.origin,
		lengths:   c.Lengths(),
		angles:    c.Angles(),
		clamps:    c.Clamps(),
		side:      c.side,
		thickness: c.thickness,
	}
}

func (c *Chain) Pose() Pose { return ForwardKinematics(c.origin, c.lengths, c.angles) }

func (c *Chain) Vertices() []Vec2 { return Vertices(c.origin, c.lengths, c.angles) }

func (c *Chain) Transforms() []LinkTransform { return c.Pose().Transforms }

func (c *Chain) LastVertex() Vec2 {
	end, _ := EndAndCOM(c.origin, c.lengths, c.angles)
	return end
}

func (c *Chain) CenterOfMass() Vec2 {
	_, com := EndAndCOM(c.origin, c.lengths, c.angles)
	return com
}

// Update moves every joint by delta, first limiting each step to
// MaxDeltaAngle and then clamping the result into the joint's range.
// NaN components are treated as zero. It panics if len(delta) != N().
func (c *Chain) Update(delta []float64) {
	if len(delta) != len(c.angles) {
		panic(fmt.Sprintf("kinematics: update with %d deltas for %d joints", len(delta), len(c.angles)))
	}
	for i, d := range delta {
		c.angles[i] = c.clamps[i].Apply(c.angles[i] + limitStep(d))
	}
}

func limitStep(d float64) float64 {
	switch {
	case math.IsNaN(d):
		return 0
	case d > MaxDeltaAngle:
		return MaxDeltaAngle
	case d < -MaxDeltaAngle:
		return -MaxDeltaAngle
	default:
		return d
	}
}

// SwitchPivot re-anchors the chain at its free end and reverses traversal.
// Every vertex keeps its absolute position, the old origin becomes the new
// free end, and the side flips. Leaving Left the root angle is the summed
// angle minus pi, leaving Right it is plus pi, so two switches restore the
// original angles exactly.
func (c *Chain) SwitchPivot() {
	n := len(c.lengths)
	end := c.LastVertex()

	var sum float64
	for _, q := range c.angles {
		sum += q
	}

	lengths := make([]float64, n)
	angles := make([]float64, n)
	clamps := make([]Clamp, n)
	for i := 0; i < n; i++ {
		lengths[i] = c.lengths[n-1-i]
	}
	if c.side == Left {
		angles[0] = sum - math.Pi
	} else {
		angles[0] = sum + math.Pi
	}
	clamps[0] = Unbounded()
	for i := 1; i < n; i++ {
		angles[i] = -c.angles[n-i]
		old := c.clamps[n-i]
		clamps[i] = Clamp{Min: -old.Max, Max: -old.Min}
	}

	c.origin = end
	c.lengths = lengths
	c.angles = angles
	c.clamps = clamps
	c.side = c.side.Flip()
}
