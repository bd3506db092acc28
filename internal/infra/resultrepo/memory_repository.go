// Package resultrepo persists season evaluation results.
package resultrepo

import (
	"context"
	"sync"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
)

// MemoryRepository keeps the latest results in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	results []evaluation.SeasonResult
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// SaveAll replaces the stored result set. A run always produces the full
// picture, so partial merges are never wanted.
func (r *MemoryRepository) SaveAll(_ context.Context, results []evaluation.SeasonResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append([]evaluation.SeasonResult(nil), results...)
	return nil
}

// List returns a copy of the stored results.
func (r *MemoryRepository) List(_ context.Context) ([]evaluation.SeasonResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]evaluation.SeasonResult(nil), r.results...), nil
}

var _ evaluation.ResultRepository = (*MemoryRepository)(nil)
