package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Row-change operations, named the way Postgres triggers report them.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ChangeFunc observes committed mutations of a MemoryStore. record is nil
// for deletes, old is nil for inserts.
type ChangeFunc func(op string, record, old *Task)

// MemoryStore keeps tasks in process memory. It is used for local runs
// without Postgres and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]Task
	onChange ChangeFunc
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]Task),
		now:   time.Now,
	}
}

// OnChange registers the mutation observer. Call before serving requests.
func (s *MemoryStore) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Task, error) {
	s.mu.RLock()
	result := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.NeedsEnrichment != nil && t.NeedsEnrichment != *f.NeedsEnrichment {
			continue
		}
		result = append(result, t)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (s *MemoryStore) Create(_ context.Context, nt NewTask) (Task, error) {
	now := s.now()
	t := Task{
		ID:              uuid.NewString(),
		Title:           nt.Title,
		Status:          StatusPending,
		NeedsEnrichment: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if nt.Source != "" {
		src := nt.Source
		t.Source = &src
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	fn := s.onChange
	s.mu.Unlock()

	notify(fn, OpInsert, &t, nil)
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, c Changes) (Task, error) {
	return s.mutate(id, func(t *Task) {
		if c.Title != nil {
			t.Title = *c.Title
		}
		if c.Status != nil {
			t.Status = *c.Status
		}
		if c.Description != nil {
			d := *c.Description
			t.Description = &d
		}
		if c.Steps != nil {
			t.Steps = append(Steps(nil), c.Steps...)
		}
		if c.ExtraInfo != nil {
			t.ExtraInfo = c.ExtraInfo
		}
		if c.NeedsEnrichment != nil {
			t.NeedsEnrichment = *c.NeedsEnrichment
		}
	})
}

func (s *MemoryStore) ApplyEnrichment(_ context.Context, id string, e Enrichment) (Task, error) {
	return s.mutate(id, func(t *Task) {
		if e.Description != nil {
			d := *e.Description
			t.Description = &d
		}
		if e.Steps != nil {
			t.Steps = append(Steps(nil), e.Steps...)
		}
		if e.ExtraInfo != nil {
			t.ExtraInfo = e.ExtraInfo
		}
		ranAt := e.AILastRunAt
		t.AILastRunAt = &ranAt
		t.NeedsEnrichment = false
	})
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	old, ok := s.tasks[id]
	delete(s.tasks, id)
	fn := s.onChange
	s.mu.Unlock()

	if ok {
		notify(fn, OpDelete, nil, &old)
	}
	return ok, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	done := 0
	for _, t := range s.tasks {
		if t.Status == StatusDone {
			done++
		}
	}
	return newStats(len(s.tasks), done), nil
}

func (s *MemoryStore) mutate(id string, apply func(t *Task)) (Task, error) {
	s.mu.Lock()
	old, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return Task{}, ErrNotFound
	}
	t := old
	apply(&t)
	t.UpdatedAt = s.now()
	if t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = t.CreatedAt
	}
	s.tasks[id] = t
	fn := s.onChange
	s.mu.Unlock()

	notify(fn, OpUpdate, &t, &old)
	return t, nil
}

func notify(fn ChangeFunc, op string, record, old *Task) {
	if fn != nil {
		fn(op, record, old)
	}
}
