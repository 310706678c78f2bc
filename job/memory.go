package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps jobs in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]Job
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]Job), now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, j Job) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	if err := j.validate(); err != nil {
		return Job{}, err
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = StatusOpen
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
	return j, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (r *MemoryRepository) ListByEmployer(ctx context.Context, employerID string, limit int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	r.mu.RLock()
	out := make([]Job, 0, 8)
	for _, j := range r.jobs {
		if j.EmployerID == employerID {
			out = append(out, j)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
