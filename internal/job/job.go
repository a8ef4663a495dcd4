// Package job tracks long-running match and reconciliation runs so callers
// can poll progress. It replaces ad-hoc global progress maps with explicit
// handles and a small state machine: pending -> running -> completed|failed.
package job

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Handle is the caller-facing view of one in-flight job. Progress counters
// are updated atomically by the worker and may be read at any time.
type Handle struct {
	ID   string
	Kind string

	mu       sync.Mutex
	state    State
	err      string
	started  time.Time
	finished time.Time

	processed atomic.Int64
	matched   atomic.Int64
	unmatched atomic.Int64
}

// Status is a point-in-time snapshot of a job.
type Status struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	State      State     `json:"state"`
	Processed  int64     `json:"processed"`
	Matched    int64     `json:"matched"`
	Unmatched  int64     `json:"unmatched"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Start transitions pending -> running.
func (h *Handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StatePending {
		return eris.Errorf("job %s: cannot start from state %s", h.ID, h.state)
	}
	h.state = StateRunning
	h.started = time.Now().UTC()
	return nil
}

// Complete transitions running -> completed.
func (h *Handle) Complete() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateRunning {
		return eris.Errorf("job %s: cannot complete from state %s", h.ID, h.state)
	}
	h.state = StateCompleted
	h.finished = time.Now().UTC()
	return nil
}

// Fail transitions running -> failed, recording the cause. Already-committed
// results are unaffected; the error is surfaced through Status.
func (h *Handle) Fail(err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateRunning {
		return eris.Errorf("job %s: cannot fail from state %s", h.ID, h.state)
	}
	h.state = StateFailed
	if err != nil {
		h.err = err.Error()
	}
	h.finished = time.Now().UTC()
	return nil
}

// RecordResult bumps the progress counters for one processed record.
func (h *Handle) RecordResult(matched bool) {
	h.processed.Add(1)
	if matched {
		h.matched.Add(1)
	} else {
		h.unmatched.Add(1)
	}
}

// Snapshot returns the current status.
func (h *Handle) Snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		ID:         h.ID,
		Kind:       h.Kind,
		State:      h.state,
		Processed:  h.processed.Load(),
		Matched:    h.matched.Load(),
		Unmatched:  h.unmatched.Load(),
		Error:      h.err,
		StartedAt:  h.started,
		FinishedAt: h.finished,
	}
}

// ErrNotFound is returned when a job id is unknown to the registry.
var ErrNotFound = eris.New("job: not found")

// Registry is a process-scoped, concurrency-safe collection of job handles.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Handle)}
}

// Create registers a new pending job of the given kind and returns its
// handle.
func (r *Registry) Create(kind string) *Handle {
	h := &Handle{
		ID:    uuid.NewString(),
		Kind:  kind,
		state: StatePending,
	}
	r.mu.Lock()
	r.jobs[h.ID] = h
	r.mu.Unlock()
	return h
}

// Get returns the handle for id, or ErrNotFound.
func (r *Registry) Get(id string) (*Handle, error) {
	r.mu.RLock()
	h, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	return h, nil
}

// List returns snapshots of all known jobs, newest-id-independent, sorted
// by start time then id for stable output.
func (r *Registry) List() []Status {
	r.mu.RLock()
	out := make([]Status, 0, len(r.jobs))
	for _, h := range r.jobs {
		out = append(out, h.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
