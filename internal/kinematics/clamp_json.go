package kinematics

import (
	"encoding/json"
	"fmt"
	"math"
)

// MarshalJSON encodes the clamp as [min, max] with null for an infinite bound.
func (c Clamp) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*float64{finitePtr(c.Min), finitePtr(c.Max)})
}

func (c *Clamp) UnmarshalJSON(data []byte) error {
	var raw [2]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode clamp: %w", err)
	}
	out := Unbounded()
	if raw[0] != nil {
		out.Min = *raw[0]
	}
	if raw[1] != nil {
		out.Max = *raw[1]
	}
	if !out.valid() {
		return fmt.Errorf("decode clamp: min %g exceeds max %g", out.Min, out.Max)
	}
	*c = out
	return nil
}

func finitePtr(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
