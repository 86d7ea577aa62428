package storage

import (
	"context"

	"sticksolo/internal/model"
)

// Store persists finished training experiments.
type Store interface {
	Init(ctx context.Context) error
	SaveExperiment(ctx context.Context, experiment model.Experiment) error
	GetExperiment(ctx context.Context, id string) (model.Experiment, bool, error)
	// ListExperiments returns summaries oldest first.
	ListExperiments(ctx context.Context) ([]model.ExperimentSummary, error)
	DeleteExperiment(ctx context.Context, id string) error
}
