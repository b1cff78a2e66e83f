package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/gym-roster/internal/keylock"
	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/queue"
	"github.com/iliyamo/gym-roster/internal/repository"
)

// Catalog manages activities. Edits and deletes take the same per-activity
// lock as enrollment so they cannot interleave with an enroll on that id.
type Catalog struct {
	store  repository.Store
	locks  *keylock.Table
	notify *Notifier
}

// NewCatalog panics on a nil store. locks must be the table shared with the
// Coordinator.
func NewCatalog(store repository.Store, locks *keylock.Table, notify *Notifier) *Catalog {
	if store == nil {
		panic("nil store passed to NewCatalog")
	}
	if locks == nil {
		locks = keylock.New()
	}
	if notify == nil {
		notify = NewNotifier(nil, nil, nil)
	}
	return &Catalog{store: store, locks: locks, notify: notify}
}

// lockActivity waits for the activity's key. A cancelled wait is reported as
// ErrUnavailable so the caller may retry.
func lockActivity(ctx context.Context, locks *keylock.Table, id uint64) (func(), error) {
	start := time.Now()
	unlock, err := locks.Lock(ctx, id)
	observeLockWait(start)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for activity %d: %v", repository.ErrUnavailable, id, err)
	}
	return unlock, nil
}

func (c *Catalog) Create(ctx context.Context, spec model.ActivitySpec) (*model.Activity, error) {
	return c.create(ctx, spec, "")
}

func (c *Catalog) create(ctx context.Context, spec model.ActivitySpec, batchID string) (*model.Activity, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		catalogOps.WithLabelValues("create", Outcome(err)).Inc()
		return nil, err
	}
	a, err := c.store.InsertActivity(ctx, spec)
	catalogOps.WithLabelValues("create", Outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	c.notify.emit(ctx, queue.Event{
		Type:          queue.EventActivityCreated,
		ActivityID:    a.ID,
		ActivityTitle: a.Title,
		Available:     a.Available(),
		BatchID:       batchID,
	})
	return a, nil
}

func (c *Catalog) Get(ctx context.Context, id uint64) (*model.Activity, error) {
	return c.store.GetActivity(ctx, id)
}

func (c *Catalog) List(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error) {
	return c.store.ListActivities(ctx, f)
}

// Availability returns max capacity minus active enrollments.
func (c *Catalog) Availability(ctx context.Context, id uint64) (int, error) {
	a, err := c.store.GetActivity(ctx, id)
	if err != nil {
		return 0, err
	}
	return a.Available(), nil
}

// Update merges patch into the stored activity. Lowering MaxCapacity below
// the number of enrolled members fails with ErrCapacityConflict.
func (c *Catalog) Update(ctx context.Context, id uint64, patch model.ActivityPatch) (*model.Activity, error) {
	unlock, err := lockActivity(ctx, c.locks, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var updated *model.Activity
	err = c.store.InActivityScope(ctx, id, func(ctx context.Context, tx repository.ScopeTx, cur *model.Activity) error {
		merged := patch.Apply(cur.Spec())
		if err := merged.Validate(); err != nil {
			return err
		}
		if merged.MaxCapacity < cur.Enrolled {
			return fmt.Errorf("%w: %d enrolled, max capacity %d requested",
				repository.ErrCapacityConflict, cur.Enrolled, merged.MaxCapacity)
		}
		a, err := tx.UpdateActivity(ctx, merged)
		updated = a
		return err
	})
	catalogOps.WithLabelValues("update", Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	c.notify.emit(ctx, queue.Event{
		Type:          queue.EventActivityUpdated,
		ActivityID:    updated.ID,
		ActivityTitle: updated.Title,
		Available:     updated.Available(),
	})
	return updated, nil
}

// Delete removes the activity and every enrollment referencing it in one
// scope, dependents first. It returns the number of enrollments removed.
func (c *Catalog) Delete(ctx context.Context, id uint64) (int, error) {
	unlock, err := lockActivity(ctx, c.locks, id)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var (
		removed int
		title   string
	)
	err = c.store.InActivityScope(ctx, id, func(ctx context.Context, tx repository.ScopeTx, cur *model.Activity) error {
		n, err := tx.DeleteAllEnrollments(ctx)
		if err != nil {
			return err
		}
		if err := tx.DeleteActivity(ctx); err != nil {
			return err
		}
		removed, title = n, cur.Title
		return nil
	})
	catalogOps.WithLabelValues("delete", Outcome(err)).Inc()
	if err != nil {
		return 0, err
	}
	c.notify.emit(ctx, queue.Event{
		Type:          queue.EventActivityDeleted,
		ActivityID:    id,
		ActivityTitle: title,
		Removed:       removed,
	})
	return removed, nil
}
