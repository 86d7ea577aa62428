package ceo

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidConfig = errors.New("invalid optimizer config")

// Config controls a cross-entropy optimisation run.
type Config struct {
	Generations     int     `json:"generations" yaml:"generations"`
	BatchSize       int     `json:"batch_size" yaml:"batch_size"`
	NumEpisodes     int     `json:"num_episodes" yaml:"num_episodes"`
	NumEpisodeTicks int     `json:"num_episode_ticks" yaml:"num_episode_ticks"`
	EliteFrac       float64 `json:"elite_frac" yaml:"elite_frac"`
	InitialStd      float64 `json:"initial_std" yaml:"initial_std"`
	NoiseFactor     float64 `json:"noise_factor" yaml:"noise_factor"`
	// Workers bounds concurrent candidate evaluations; 0 means GOMAXPROCS.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
	// Seed 0 seeds from the clock.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Generations:     300,
		BatchSize:       50,
		NumEpisodes:     300,
		NumEpisodeTicks: 500,
		EliteFrac:       0.25,
		InitialStd:      2.0,
		NoiseFactor:     2.0,
	}
}

// EliteCount is round(BatchSize * EliteFrac).
func (c Config) EliteCount() int {
	return int(math.Round(float64(c.BatchSize) * c.EliteFrac))
}

func (c Config) Validate() error {
	switch {
	case c.Generations <= 0:
		return fmt.Errorf("%w: generations must be > 0", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be > 0", ErrInvalidConfig)
	case c.NumEpisodes <= 0:
		return fmt.Errorf("%w: num episodes must be > 0", ErrInvalidConfig)
	case c.NumEpisodeTicks <= 0:
		return fmt.Errorf("%w: num episode ticks must be > 0", ErrInvalidConfig)
	case !(c.EliteFrac > 0 && c.EliteFrac <= 1):
		return fmt.Errorf("%w: elite fraction must be in (0, 1], got %g", ErrInvalidConfig, c.EliteFrac)
	case c.EliteCount() < 1:
		return fmt.Errorf("%w: batch size %d with elite fraction %g selects no elites", ErrInvalidConfig, c.BatchSize, c.EliteFrac)
	case c.InitialStd < 0 || math.IsNaN(c.InitialStd):
		return fmt.Errorf("%w: initial std must be >= 0", ErrInvalidConfig)
	case c.NoiseFactor < 0 || math.IsNaN(c.NoiseFactor):
		return fmt.Errorf("%w: noise factor must be >= 0", ErrInvalidConfig)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	}
	return nil
}
