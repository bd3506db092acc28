package evaluation

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/phenosat/sitefinder/pkg/errors"
)

// RunStatus tracks the lifecycle of a background evaluation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunSnapshot is the externally visible state of a run.
type RunSnapshot struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	TotalTasks  int        `json:"totalTasks"`
	Completed   int        `json:"completed"`
	Error       string     `json:"error,omitempty"`
}

type run struct {
	snapshot RunSnapshot
	results  []SeasonResult
}

// Runner launches evaluation runs in the background and keeps their state
// queryable until the process exits.
type Runner struct {
	svc    *Service
	logger *slog.Logger

	mu   sync.RWMutex
	runs map[string]*run
}

func NewRunner(svc *Service, logger *slog.Logger) *Runner {
	return &Runner{
		svc:    svc,
		logger: logger.With("component", "evaluation.runner"),
		runs:   make(map[string]*run),
	}
}

// Start launches a new evaluation run and returns immediately. The run keeps
// going even if the triggering request goes away.
func (r *Runner) Start(maxSites int) RunSnapshot {
	id := uuid.NewString()

	r.mu.Lock()
	r.runs[id] = &run{snapshot: RunSnapshot{
		ID:        id,
		Status:    RunRunning,
		StartedAt: r.svc.now(),
	}}
	snapshot := r.runs[id].snapshot
	r.mu.Unlock()

	go r.execute(id, maxSites)
	return snapshot
}

func (r *Runner) execute(id string, maxSites int) {
	r.logger.Info("evaluation run started", "run", id, "maxSites", maxSites)

	results, err := r.svc.evaluateAll(context.Background(), maxSites, func(completed, total int) {
		r.mu.Lock()
		if rn, ok := r.runs[id]; ok {
			rn.snapshot.Completed = completed
			rn.snapshot.TotalTasks = total
		}
		r.mu.Unlock()
	})

	completedAt := r.svc.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok {
		return
	}
	rn.snapshot.CompletedAt = &completedAt
	if err != nil {
		rn.snapshot.Status = RunFailed
		rn.snapshot.Error = err.Error()
		r.logger.Error("evaluation run failed", "run", id, "error", err)
		return
	}
	rn.snapshot.Status = RunCompleted
	rn.results = results
	r.logger.Info("evaluation run completed", "run", id, "results", len(results))
}

// Get returns the snapshot of a run.
func (r *Runner) Get(id string) (RunSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runs[id]
	if !ok {
		return RunSnapshot{}, apperrors.Wrap("run_not_found", "no run with id "+id, nil)
	}
	return rn.snapshot, nil
}

// Results returns the season results of a completed run.
func (r *Runner) Results(id string) ([]SeasonResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runs[id]
	if !ok {
		return nil, apperrors.Wrap("run_not_found", "no run with id "+id, nil)
	}
	if rn.snapshot.Status != RunCompleted {
		return nil, apperrors.Wrap("run_not_completed", "run "+id+" has not completed", nil)
	}
	return rn.results, nil
}

// List returns snapshots of all known runs, newest first.
func (r *Runner) List() []RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunSnapshot, 0, len(r.runs))
	for _, rn := range r.runs {
		out = append(out, rn.snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}
