package kinematics

import (
	"fmt"
	"math"
	"strings"
)

// Side is the horizontal facing of a chain relative to its pivot.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) Flip() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != Left && s != Right {
		return nil, fmt.Errorf("invalid side %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	default:
		return Left, fmt.Errorf("unknown side %q", raw)
	}
}

// Clamp is a closed interval for one joint angle. Either bound may be infinite.
type Clamp struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func Unbounded() Clamp { return Clamp{Min: math.Inf(-1), Max: math.Inf(1)} }

func (c Clamp) Contains(q float64) bool { return q >= c.Min && q <= c.Max }

// Apply returns q limited to the interval.
func (c Clamp) Apply(q float64) float64 {
	if q < c.Min {
		return c.Min
	}
	if q > c.Max {
		return c.Max
	}
	return q
}

func (c Clamp) Bounded() bool { return !math.IsInf(c.Min, 0) && !math.IsInf(c.Max, 0) }

func (c Clamp) valid() bool {
	return !math.IsNaN(c.Min) && !math.IsNaN(c.Max) && c.Min <= c.Max
}
