package kinematics

import "fmt"

// Limb is the per-chain part of a PairSpec.
type Limb struct {
	Lengths []float64 `json:"lengths" yaml:"lengths"`
	Angles  []float64 `json:"angles" yaml:"angles"`
	Clamps  []Clamp   `json:"clamps,omitempty" yaml:"clamps,omitempty"`
}

type PairSpec struct {
	Side       Side    `json:"side" yaml:"side"`
	Origin     Vec2    `json:"origin" yaml:"origin"`
	Holding    Limb    `json:"holding" yaml:"holding"`
	NonHolding Limb    `json:"non_holding" yaml:"non_holding"`
	Thickness  float64 `json:"thickness,omitempty" yaml:"thickness,omitempty"`
}

// HoldingPair couples two chains: the holding chain is anchored at the pair's
// origin and the non-holding chain hangs off the holding chain's free end.
type HoldingPair struct {
	holding    *Chain
	nonHolding *Chain
	asBuilt    bool
}

func NewHoldingPair(spec PairSpec) (*HoldingPair, error) {
	holding, err := New(Spec{
		Origin:    spec.Origin,
		Lengths:   spec.Holding.Lengths,
		Angles:    spec.Holding.Angles,
		Clamps:    spec.Holding.Clamps,
		Side:      spec.Side,
		Thickness: spec.Thickness,
	})
	if err != nil {
		return nil, fmt.Errorf("holding chain: %w", err)
	}
	nonHolding, err := New(Spec{
		Origin:    holding.LastVertex(),
		Lengths:   spec.NonHolding.Lengths,
		Angles:    spec.NonHolding.Angles,
		Clamps:    spec.NonHolding.Clamps,
		Side:      spec.Side,
		Thickness: spec.Thickness,
	})
	if err != nil {
		return nil, fmt.Errorf("non-holding chain: %w", err)
	}
	return &HoldingPair{holding: holding, nonHolding: nonHolding, asBuilt: true}, nil
}

// Holding and NonHolding expose the chains for reading. Mutate through the
// pair so the anchoring invariant holds.
func (p *HoldingPair) Holding() *Chain    { return p.holding }
func (p *HoldingPair) NonHolding() *Chain { return p.nonHolding }

// IsHoldingAsInitialized is false after an odd number of SwitchHold calls.
func (p *HoldingPair) IsHoldingAsInitialized() bool { return p.asBuilt }

// OriginalHolding returns whichever chain was built as the holding chain.
func (p *HoldingPair) OriginalHolding() *Chain {
	if p.asBuilt {
		return p.holding
	}
	return p.nonHolding
}

func (p *HoldingPair) OriginalNonHolding() *Chain {
	if p.asBuilt {
		return p.nonHolding
	}
	return p.holding
}

func (p *HoldingPair) TotalMass() float64 {
	return p.holding.TotalMass() + p.nonHolding.TotalMass()
}

// CenterOfMass weights each chain's centre of mass by its total length.
func (p *HoldingPair) CenterOfMass() Vec2 {
	mh, mn := p.holding.TotalMass(), p.nonHolding.TotalMass()
	return p.holding.CenterOfMass().Scale(mh).
		Add(p.nonHolding.CenterOfMass().Scale(mn)).
		Scale(1 / (mh + mn))
}

// Update moves the holding chain, re-anchors the non-holding chain at the
// new holding end, then moves the non-holding chain.
func (p *HoldingPair) Update(holdingDelta, nonHoldingDelta []float64) {
	p.holding.Update(holdingDelta)
	p.nonHolding.SetOrigin(p.holding.LastVertex())
	p.nonHolding.Update(nonHoldingDelta)
}

// SwitchHold transfers support to the other chain's free end.
func (p *HoldingPair) SwitchHold() {
	p.holding.SwitchPivot()
	p.nonHolding.SwitchPivot()
	p.holding, p.nonHolding = p.nonHolding, p.holding
	p.nonHolding.SetOrigin(p.holding.LastVertex())
	p.asBuilt = !p.asBuilt
}

func (p *HoldingPair) Clone() *HoldingPair {
	return &HoldingPair{holding: p.holding.Clone(), nonHolding: p.nonHolding.Clone(), asBuilt: p.asBuilt}
}
