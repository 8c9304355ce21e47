package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

type run struct {
	header  MetricResult
	values  map[int64]SliceValue
	summary map[string]float64
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*run
	order []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string]*run{}}
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context, header MetricResult) error { //nolint:gocritic // hugeParam: header is copied into the store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[header.RunID]; ok {
		return fmt.Errorf("%w: %s", ErrRunExists, header.RunID)
	}
	header.Values = nil
	header.Summary = nil
	s.runs[header.RunID] = &run{
		header:  header,
		values:  map[int64]SliceValue{},
		summary: map[string]float64{},
	}
	s.order = append(s.order, header.RunID)
	return nil
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, runID string, v SliceValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(runID)
	if err != nil {
		return err
	}
	r.values[v.PixelID] = v
	return nil
}

// Values implements Store.
func (s *MemoryStore) Values(_ context.Context, runID string) ([]SliceValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	return sortedValues(r.values), nil
}

// SetSummary implements Store.
func (s *MemoryStore) SetSummary(_ context.Context, runID, stat string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(runID)
	if err != nil {
		return err
	}
	r.summary[stat] = value
	return nil
}

// Annotate implements Store.
func (s *MemoryStore) Annotate(_ context.Context, runID string, fn func(*MetricResult)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(runID)
	if err != nil {
		return err
	}
	fn(&r.header)
	r.header.RunID = runID
	return nil
}

// Result implements Store.
func (s *MemoryStore) Result(_ context.Context, runID string) (MetricResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.get(runID)
	if err != nil {
		return MetricResult{}, err
	}
	out := r.header
	out.Values = sortedValues(r.values)
	out.Summary = maps.Clone(r.summary)
	out.Slices = len(out.Values)
	out.Masked = 0
	for _, v := range out.Values {
		if v.Masked {
			out.Masked++
		}
	}
	return out, nil
}

// Runs implements Store.
func (s *MemoryStore) Runs(_ context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// get must be called with s.mu held.
func (s *MemoryStore) get(runID string) (*run, error) {
	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, nil
}

func sortedValues(m map[int64]SliceValue) []SliceValue {
	out := make([]SliceValue, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b SliceValue) int {
		switch {
		case a.PixelID < b.PixelID:
			return -1
		case a.PixelID > b.PixelID:
			return 1
		}
		return 0
	})
	return out
}
