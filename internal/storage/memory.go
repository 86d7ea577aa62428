package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"sticksolo/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	experiments map[string]model.Experiment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.experiments = make(map[string]model.Experiment)
	return nil
}

func (s *MemoryStore) SaveExperiment(_ context.Context, experiment model.Experiment) error {
	if experiment.ID == "" {
		return errors.New("experiment id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.experiments[experiment.ID] = experiment.Clone()
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (model.Experiment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.Experiment{}, false, errNotInitialized
	}
	experiment, ok := s.experiments[id]
	if !ok {
		return model.Experiment{}, false, nil
	}
	return experiment.Clone(), true, nil
}

func (s *MemoryStore) ListExperiments(_ context.Context) ([]model.ExperimentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	out := make([]model.ExperimentSummary, 0, len(s.experiments))
	for _, experiment := range s.experiments {
		out = append(out, experiment.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUTC.Equal(out[j].CreatedAtUTC) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAtUTC.Before(out[j].CreatedAtUTC)
	})
	return out, nil
}

func (s *MemoryStore) DeleteExperiment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	delete(s.experiments, id)
	return nil
}
