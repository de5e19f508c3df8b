package lane

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ClientRepository defines storage operations for client records.
//
// Implementations must apply each ApplyMove as a single atomic unit: the
// snapshot read and the batch of rank writes either all commit or none
// do. Two concurrent moves touching the same lane must not interleave,
// or the gap-free priority invariant can be violated.
type ClientRepository interface {
	// List returns the full snapshot ordered by (status, priority).
	List(ctx context.Context) ([]Client, error)

	// ListByStatus returns one lane ordered by priority.
	ListByStatus(ctx context.Context, status Status) ([]Client, error)

	// Get retrieves a single record. Returns ErrNotFound when absent.
	Get(ctx context.Context, id int64) (*Client, error)

	// Create stores a new record at the end of its lane
	// (priority = lane size + 1).
	Create(ctx context.Context, name string, status Status) (*Client, error)

	// ApplyMove reads a fresh snapshot, runs the rank engine, and
	// commits the resulting writes atomically. Returns the post-update
	// snapshot ordered by (status, priority).
	ApplyMove(ctx context.Context, move Move) ([]Client, error)

	// Delete removes a record and compacts its lane back to 1..N-1.
	// Returns ErrNotFound when absent.
	Delete(ctx context.Context, id int64) error
}

// InMemoryClientRepository is a mutex-guarded in-memory implementation of
// ClientRepository. Used for testing and development; the single mutex
// serializes all moves, which trivially satisfies the per-lane
// exclusivity contract.
type InMemoryClientRepository struct {
	mu      sync.RWMutex
	clients map[int64]*Client
	nextID  int64
}

// NewInMemoryClientRepository creates an empty in-memory repository.
func NewInMemoryClientRepository() *InMemoryClientRepository {
	return &InMemoryClientRepository{
		clients: make(map[int64]*Client),
		nextID:  1,
	}
}

// snapshotLocked returns a copy of all records. Callers must hold mu.
func (r *InMemoryClientRepository) snapshotLocked() []Client {
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	return sortSnapshot(out)
}

// List returns the full snapshot ordered by (status, priority).
func (r *InMemoryClientRepository) List(ctx context.Context) ([]Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(), nil
}

// ListByStatus returns one lane ordered by priority.
func (r *InMemoryClientRepository) ListByStatus(ctx context.Context, status Status) ([]Client, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Client
	for _, c := range r.clients {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Priority < out[b].Priority })
	return out, nil
}

// Get retrieves a single record. Returns ErrNotFound when absent.
func (r *InMemoryClientRepository) Get(ctx context.Context, id int64) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	out := *c
	return &out, nil
}

// Create stores a new record at the end of its lane.
func (r *InMemoryClientRepository) Create(ctx context.Context, name string, status Status) (*Client, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	laneSize := 0
	for _, c := range r.clients {
		if c.Status == status {
			laneSize++
		}
	}

	now := time.Now().UTC()
	c := &Client{
		ID:        r.nextID,
		Name:      name,
		Status:    status,
		Priority:  laneSize + 1,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	r.nextID++
	r.clients[c.ID] = c

	out := *c
	return &out, nil
}

// ApplyMove runs the rank engine against the current state and commits
// the resulting writes under the repository lock.
func (r *InMemoryClientRepository) ApplyMove(ctx context.Context, move Move) ([]Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, changes, err := Rebalance(r.snapshotLocked(), move)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, ch := range changes {
		c := r.clients[ch.ID]
		c.Status = ch.Status
		c.Priority = ch.Priority
		c.UpdatedAt = &now
	}
	return snapshot, nil
}

// Delete removes a record and compacts its lane.
func (r *InMemoryClientRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	lane := c.Status
	delete(r.clients, id)

	// Compact the vacated lane so priorities stay 1..N-1.
	remaining := r.snapshotLocked()
	compactLane(remaining, lane)
	now := time.Now().UTC()
	for _, rec := range remaining {
		if rec.Status == lane {
			stored := r.clients[rec.ID]
			if stored.Priority != rec.Priority {
				stored.Priority = rec.Priority
				stored.UpdatedAt = &now
			}
		}
	}
	return nil
}
