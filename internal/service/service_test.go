package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/gym-roster/internal/keylock"
	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/queue"
	"github.com/iliyamo/gym-roster/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

type harness struct {
	store   repository.Store
	locks   *keylock.Table
	catalog *Catalog
	coord   *Coordinator
	gen     *Generator
	events  *recordingPublisher
	cache   *countingInvalidator
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, repository.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, store repository.Store) *harness {
	t.Helper()
	h := &harness{
		store:  store,
		locks:  keylock.New(),
		events: &recordingPublisher{},
		cache:  &countingInvalidator{},
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	notify := NewNotifier(h.events, h.cache, quiet)
	policy := NewPolicy()
	h.catalog = NewCatalog(store, h.locks, notify)
	h.coord = NewCoordinator(store, nil, h.locks, policy, notify)
	h.gen = NewGenerator(h.catalog, policy, 4, quiet)
	return h
}

func classSpec(capacity int) model.ActivitySpec {
	return model.ActivitySpec{
		Title:           "Crossfit",
		Category:        model.CategoryCrossfit,
		Day:             model.Tuesday,
		StartTime:       "18:00",
		DurationMinutes: 60,
		MaxCapacity:     capacity,
		Instructor:      "Marta",
	}
}

func (h *harness) mustCreate(t *testing.T, capacity int) *model.Activity {
	t.Helper()
	a, err := h.catalog.Create(context.Background(), classSpec(capacity))
	require.NoError(t, err)
	return a
}

var (
	admin  = model.Identity{UserID: 1, Role: model.RoleAdmin}
	member = model.Identity{UserID: 2, Role: model.RoleMember}
	other  = model.Identity{UserID: 3, Role: model.RoleMember}
)
