package jobs

import (
	"slices"
	"sync"
	"time"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

// Status represents the status of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether s is a terminal status.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one asynchronous tool flow run.
type Job struct {
	ID          string
	Status      Status
	Message     string
	Error       string
	TraceID     string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	// Report is set once the job has completed.
	Report *services.Report

	options simulate.Options
}

// Options returns the simulation settings the job runs with.
func (j *Job) Options() simulate.Options {
	return j.options
}

// Store persists jobs. Implementations hand out copies, so callers may
// modify returned jobs freely.
type Store interface {
	Create(job *Job) error
	Get(id string) (*Job, error)
	Update(job *Job) error
	List(filter Filter) ([]*Job, error)
	Delete(id string) error
}

// Filter for querying jobs
type Filter struct {
	Status Status
	Since  time.Time
	Limit  int
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create adds a new job
func (s *MemoryStore) Create(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return apperrors.Conflict("job " + job.ID + " already exists")
	}
	c := *job
	s.jobs[job.ID] = &c
	return nil
}

// Get retrieves a job by ID
func (s *MemoryStore) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, apperrors.NewNotFoundError("job " + id)
	}
	c := *job
	return &c, nil
}

// Update replaces an existing job
func (s *MemoryStore) Update(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return apperrors.NewNotFoundError("job " + job.ID)
	}
	c := *job
	s.jobs[job.ID] = &c
	return nil
}

// List returns jobs matching the filter, newest first.
func (s *MemoryStore) List(filter Filter) ([]*Job, error) {
	s.mu.RLock()
	result := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && job.CreatedAt.Before(filter.Since) {
			continue
		}
		c := *job
		result = append(result, &c)
	}
	s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Delete removes a job from the store
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return apperrors.NewNotFoundError("job " + id)
	}
	delete(s.jobs, id)
	return nil
}

// CleanupOld removes finished jobs created before now minus olderThan and
// returns how many were removed.
func (s *MemoryStore) CleanupOld(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for id, job := range s.jobs {
		if job.Status.Finished() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted
}

// Stats counts jobs per status.
func (s *MemoryStore) Stats() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[Status]int, 5)
	for _, job := range s.jobs {
		stats[job.Status]++
	}
	return stats
}
