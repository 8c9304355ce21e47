// Package dedupe filters repeated visits out of simulated survey tables.
//
// The Summary table of an OpSim run holds one row per visit and proposal, so
// a visit credited to two proposals appears twice with the same expMJD.
// Metrics must see each visit once.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records visit keys (expMJD) that have been seen.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records it
	// if not. The check and the insert happen atomically.
	SeenAndRecord(ctx context.Context, key float64) bool

	Size() int64
}

// visitDeduper keeps every seen key in a map. A run's Summary table fits in
// memory, so the set is unbounded.
type visitDeduper struct {
	mu   sync.Mutex
	seen map[float64]struct{}
	size atomic.Int64
}

// NewVisitDeduper returns an empty deduper.
func NewVisitDeduper() Deduper {
	return &visitDeduper{seen: make(map[float64]struct{})}
}

// SeenAndRecord implements Deduper. NaN keys never compare equal and are
// always reported as new.
func (d *visitDeduper) SeenAndRecord(_ context.Context, key float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	d.size.Add(1)
	return false
}

// Size implements Deduper.
func (d *visitDeduper) Size() int64 {
	return d.size.Load()
}

// DistinctRows returns the indexes of the first occurrence of each value in
// column, in row order.
func DistinctRows(ctx context.Context, column []float64) []int {
	d := NewVisitDeduper()
	idx := make([]int, 0, len(column))
	for i, v := range column {
		if !d.SeenAndRecord(ctx, v) {
			idx = append(idx, i)
		}
	}
	return idx
}
