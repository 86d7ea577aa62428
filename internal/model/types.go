package model

import (
	"time"

	"sticksolo/internal/ceo"
	"sticksolo/internal/nn"
	"sticksolo/internal/world"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Experiment is one finished training run: the trained policy together with
// everything needed to reproduce or replay it.
type Experiment struct {
	VersionedRecord
	ID             string                      `json:"id"`
	CreatedAtUTC   time.Time                   `json:"created_at_utc"`
	Seed           int64                       `json:"seed"`
	SamplerSamples int                         `json:"sampler_samples"`
	Optimizer      ceo.Config                  `json:"optimizer"`
	World          world.World                 `json:"world"`
	Network        *nn.FCN                     `json:"network"`
	MeanReward     float64                     `json:"mean_reward"`
	FinalStd       []float64                   `json:"final_std"`
	History        []ceo.GenerationDiagnostics `json:"history"`
}

type ExperimentSummary struct {
	ID           string    `json:"id"`
	CreatedAtUTC time.Time `json:"created_at_utc"`
	Generations  int       `json:"generations"`
	MeanReward   float64   `json:"mean_reward"`
	BestReward   float64   `json:"best_reward"`
}

// Summary reports the best batch reward seen in any generation.
func (e Experiment) Summary() ExperimentSummary {
	s := ExperimentSummary{
		ID:           e.ID,
		CreatedAtUTC: e.CreatedAtUTC,
		Generations:  len(e.History),
		MeanReward:   e.MeanReward,
	}
	for i, d := range e.History {
		if i == 0 || d.BestReward > s.BestReward {
			s.BestReward = d.BestReward
		}
	}
	return s
}

// Clone deep-copies the record so stores can hand out values callers may
// mutate freely.
func (e Experiment) Clone() Experiment {
	out := e
	if e.Network != nil {
		out.Network = e.Network.Clone()
	}
	out.FinalStd = append([]float64(nil), e.FinalStd...)
	out.History = append([]ceo.GenerationDiagnostics(nil), e.History...)
	out.World.HoldingLengths = append([]float64(nil), e.World.HoldingLengths...)
	out.World.NonHoldingLengths = append([]float64(nil), e.World.NonHoldingLengths...)
	out.World.HoldingBounds = append([]world.Bound(nil), e.World.HoldingBounds...)
	out.World.NonHoldingBounds = append([]world.Bound(nil), e.World.NonHoldingBounds...)
	return out
}
