// Package jobs tracks long-running operations per bookmark.
package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one active operation.
type Job struct {
	ID        string
	Bookmark  string
	Kind      Kind
	Metadata  Metadata
	StartedAt time.Time
}

// ConflictError is returned when a job cannot start beside an active one.
type ConflictError struct {
	Bookmark string
	Kind     Kind
	Active   Kind
}

func (e *ConflictError) Error() string {
	if e.Kind == e.Active {
		return fmt.Sprintf("%s is already running for %s", e.Kind, e.Bookmark)
	}
	if (e.Kind == KindPush && e.Active == KindPull) || (e.Kind == KindPull && e.Active == KindPush) {
		return "Cannot perform downloading and uploading at the same time"
	}
	return fmt.Sprintf("cannot start %s while %s is running for %s", e.Kind, e.Active, e.Bookmark)
}

// Handle refers to the job created by one Start call.
type Handle struct {
	r   *Registry
	job Job
}

// Job returns the job as it was started.
func (h *Handle) Job() Job { return h.job }

// Stop removes the job if it is still the one this handle started.
func (h *Handle) Stop() {
	h.r.stopID(h.job.Bookmark, h.job.Kind, h.job.ID)
}

// Registry holds at most one job per (bookmark, kind). All methods are
// safe for concurrent use and each mutation is applied atomically.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]map[Kind]*Job
	now  func() time.Time

	subMu sync.Mutex
	subs  map[string]chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]map[Kind]*Job),
		now:  time.Now,
		subs: make(map[string]chan struct{}),
	}
}

// Start validates and registers a job. md may be nil.
func (r *Registry) Start(bookmark string, kind Kind, md Metadata) (*Handle, error) {
	if bookmark == "" {
		return nil, fmt.Errorf("bookmark name is required")
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if err := validateMetadata(kind, md); err != nil {
		return nil, err
	}

	r.mu.Lock()
	byKind := r.jobs[bookmark]
	if _, exists := byKind[kind]; exists {
		r.mu.Unlock()
		return nil, &ConflictError{Bookmark: bookmark, Kind: kind, Active: kind}
	}
	for _, other := range kind.conflictsWith() {
		if _, active := byKind[other]; active {
			r.mu.Unlock()
			return nil, &ConflictError{Bookmark: bookmark, Kind: kind, Active: other}
		}
	}
	if byKind == nil {
		byKind = make(map[Kind]*Job)
		r.jobs[bookmark] = byKind
	}
	job := &Job{
		ID:        uuid.New().String(),
		Bookmark:  bookmark,
		Kind:      kind,
		Metadata:  md,
		StartedAt: r.now(),
	}
	byKind[kind] = job
	h := &Handle{r: r, job: *job}
	r.mu.Unlock()

	r.notify()
	return h, nil
}

// Update replaces the metadata of an active job.
func (r *Registry) Update(bookmark string, kind Kind, md Metadata) error {
	if err := validateMetadata(kind, md); err != nil {
		return err
	}
	r.mu.Lock()
	job, ok := r.jobs[bookmark][kind]
	if ok {
		job.Metadata = md
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no %s job for %s", kind, bookmark)
	}
	r.notify()
	return nil
}

// Stop removes the job. Stopping a missing job is a no-op; the return
// value reports whether anything was removed.
func (r *Registry) Stop(bookmark string, kind Kind) bool {
	return r.stopID(bookmark, kind, "")
}

func (r *Registry) stopID(bookmark string, kind Kind, id string) bool {
	r.mu.Lock()
	byKind := r.jobs[bookmark]
	job, ok := byKind[kind]
	if ok && id != "" && job.ID != id {
		ok = false
	}
	if ok {
		delete(byKind, kind)
		if len(byKind) == 0 {
			delete(r.jobs, bookmark)
		}
	}
	r.mu.Unlock()
	if ok {
		r.notify()
	}
	return ok
}

// Get returns a copy of the job.
func (r *Registry) Get(bookmark string, kind Kind) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[bookmark][kind]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Kinds returns the bookmark's active kinds, sorted.
func (r *Registry) Kinds(bookmark string) []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.jobs[bookmark]))
	for k := range r.jobs[bookmark] {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ListActive returns a copy of all jobs keyed by bookmark then kind.
func (r *Registry) ListActive() map[string]map[Kind]Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[Kind]Job, len(r.jobs))
	for b, byKind := range r.jobs {
		m := make(map[Kind]Job, len(byKind))
		for k, j := range byKind {
			m[k] = *j
		}
		out[b] = m
	}
	return out
}

// Clear removes every job and returns what was removed.
func (r *Registry) Clear() []Job {
	r.mu.Lock()
	var removed []Job
	for _, byKind := range r.jobs {
		for _, j := range byKind {
			removed = append(removed, *j)
		}
	}
	r.jobs = make(map[string]map[Kind]*Job)
	r.mu.Unlock()
	if len(removed) > 0 {
		r.notify()
	}
	return removed
}

// Subscribe returns a channel that receives a value after changes. Bursts
// of changes are coalesced; receivers should re-read the registry.
func (r *Registry) Subscribe() (string, <-chan struct{}) {
	id := uuid.New().String()
	ch := make(chan struct{}, 1)
	r.subMu.Lock()
	r.subs[id] = ch
	r.subMu.Unlock()
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (r *Registry) Unsubscribe(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

func (r *Registry) notify() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
