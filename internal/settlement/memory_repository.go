package settlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.RWMutex
	requests map[string]Request
}

// NewMemoryRepository constructs an in-memory repository for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{requests: make(map[string]Request)}
}

func (r *memoryRepository) Create(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[req.Reference]; exists {
		return errors.New("withdrawal request exists")
	}
	r.requests[req.Reference] = req
	return nil
}

func (r *memoryRepository) Get(_ context.Context, reference string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[reference]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return req, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, reference string, status Status, failureReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[reference]
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = status
	req.FailureReason = failureReason
	if status == StatusCompleted || status == StatusFailed {
		now := time.Now().UTC()
		req.SettledAt = &now
	}
	r.requests[reference] = req
	return nil
}

func (r *memoryRepository) ListByStatus(_ context.Context, status Status, limit int) ([]Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Request
	for _, req := range r.requests {
		if req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
