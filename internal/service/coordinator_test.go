package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/queue"
	"github.com/iliyamo/gym-roster/internal/repository"
)

func TestEnrollNeverExceedsCapacity(t *testing.T) {
	h := newHarness(t)
	a := h.mustCreate(t, 5)

	const callers = 50
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.coord.Enroll(context.Background(), uint64(100+i), a.ID)
		}(i)
	}
	wg.Wait()

	ok, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrCapacityExceeded):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, callers-5, full)

	avail, err := h.catalog.Availability(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, avail)
}

func TestMixedOperationsKeepCapacityBound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.mustCreate(t, 3)

	var (
		wg         sync.WaitGroup
		violations atomic.Int32
		unexpected atomic.Int32
	)
	tolerated := func(err error) bool {
		return err == nil ||
			errors.Is(err, repository.ErrCapacityExceeded) ||
			errors.Is(err, repository.ErrAlreadyEnrolled) ||
			errors.Is(err, repository.ErrCapacityConflict)
	}
	start := make(chan struct{})
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			switch i % 5 {
			case 0, 1, 2:
				e, err := h.coord.Enroll(ctx, uint64(500+i%10), a.ID)
				if !tolerated(err) {
					unexpected.Add(1)
				}
				if err == nil && i%2 == 0 {
					if err := h.coord.Withdraw(ctx, e.ID); err != nil {
						unexpected.Add(1)
					}
				}
			case 3:
				limit := 2 + i%2
				if _, err := h.catalog.Update(ctx, a.ID, model.ActivityPatch{MaxCapacity: &limit}); !tolerated(err) {
					unexpected.Add(1)
				}
			default:
				cur, err := h.catalog.Get(ctx, a.ID)
				if err != nil {
					unexpected.Add(1)
					return
				}
				if cur.Enrolled < 0 || cur.Enrolled > cur.MaxCapacity {
					violations.Add(1)
				}
			}
		}(i)
	}
	close(start)
	wg.Wait()
	assert.Zero(t, violations.Load())
	assert.Zero(t, unexpected.Load())

	cur, err := h.catalog.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cur.Available(), 0)

	// Delete while a second wave of members is still enrolling.
	var removed int
	var delErr error
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.coord.Enroll(ctx, uint64(600+i), a.ID)
			if !tolerated(err) && !errors.Is(err, repository.ErrNotFound) {
				unexpected.Add(1)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		removed, delErr = h.catalog.Delete(ctx, a.ID)
	}()
	wg.Wait()
	require.NoError(t, delErr)
	assert.Zero(t, unexpected.Load())
	assert.LessOrEqual(t, removed, 3)

	for uid := uint64(500); uid < 620; uid++ {
		list, err := h.store.ListEnrollmentsByUser(ctx, uid)
		require.NoError(t, err)
		for _, d := range list {
			assert.NotEqual(t, a.ID, d.ActivityID, "enrollment %d survived delete", d.ID)
		}
	}
	_, err = h.catalog.Availability(ctx, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = h.coord.Enroll(ctx, 501, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEnrollRaceForLastPlace(t *testing.T) {
	for run := 0; run < 20; run++ {
		h := newHarness(t)
		a := h.mustCreate(t, 1)

		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = h.coord.Enroll(context.Background(), uint64(10+i), a.ID)
			}(i)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, repository.ErrCapacityExceeded)
			}
		}
		require.Equal(t, 1, succeeded)
	}
}

func TestEnrollRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	a := h.mustCreate(t, 10)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.coord.Enroll(context.Background(), 42, a.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrAlreadyEnrolled)
	}
	assert.Equal(t, 1, ok)

	list, err := h.store.ListEnrollmentsByUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEnrollUnknownActivity(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Enroll(context.Background(), 1, 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEnrollUnknownUser(t *testing.T) {
	h := newHarness(t)
	a := h.mustCreate(t, 3)
	users := repository.NewMemoryUserRepo()
	coord := NewCoordinator(h.store, users, h.locks, nil, nil)

	_, err := coord.Enroll(context.Background(), 77, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = coord.Enroll(context.Background(), 77, 404)
	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.NotContains(t, err.Error(), "user")

	u := &model.User{Email: "m@gym.test", Role: model.RoleMember}
	require.NoError(t, users.CreateUser(context.Background(), u))
	_, err = coord.Enroll(context.Background(), u.ID, a.ID)
	assert.NoError(t, err)
}

// flakyCommitStore reports ErrUnavailable for the first scope even though
// the scope's writes were applied, like a lost commit acknowledgement.
type flakyCommitStore struct {
	repository.Store
	mu     sync.Mutex
	failed bool
}

func (s *flakyCommitStore) InActivityScope(ctx context.Context, id uint64, fn repository.ScopeFunc) error {
	if err := s.Store.InActivityScope(ctx, id, fn); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.failed {
		s.failed = true
		return repository.ErrUnavailable
	}
	return nil
}

func TestEnrollRetryAfterUnavailableIsIdempotent(t *testing.T) {
	mem := repository.NewMemoryStore()
	a, err := mem.InsertActivity(context.Background(), classSpec(3))
	require.NoError(t, err)
	h := newHarnessWithStore(t, &flakyCommitStore{Store: mem})

	_, err = h.coord.Enroll(context.Background(), 9, a.ID)
	require.ErrorIs(t, err, repository.ErrUnavailable)

	_, err = h.coord.Enroll(context.Background(), 9, a.ID)
	require.ErrorIs(t, err, repository.ErrAlreadyEnrolled)

	list, err := mem.ListEnrollmentsByUser(context.Background(), 9)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWithdrawFreesCapacity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.mustCreate(t, 2)

	first, err := h.coord.Enroll(ctx, 1, a.ID)
	require.NoError(t, err)
	_, err = h.coord.Enroll(ctx, 2, a.ID)
	require.NoError(t, err)
	_, err = h.coord.Enroll(ctx, 3, a.ID)
	require.ErrorIs(t, err, repository.ErrCapacityExceeded)

	avail, _ := h.catalog.Availability(ctx, a.ID)
	require.Equal(t, 0, avail)

	require.NoError(t, h.coord.Withdraw(ctx, first.ID))
	avail, _ = h.catalog.Availability(ctx, a.ID)
	assert.Equal(t, 1, avail)

	_, err = h.coord.Enroll(ctx, 3, a.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, h.coord.Withdraw(ctx, first.ID), repository.ErrNotFound)
}

func TestEnrollAndWithdrawPublishEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.mustCreate(t, 4)

	e, err := h.coord.Enroll(ctx, 5, a.ID)
	require.NoError(t, err)
	require.NoError(t, h.coord.Withdraw(ctx, e.ID))

	assert.Equal(t, []string{
		queue.EventActivityCreated,
		queue.EventEnrollmentCreated,
		queue.EventEnrollmentWithdrawn,
	}, h.events.types())
	assert.Equal(t, 3, h.events.events[1].Available)
	assert.Equal(t, 4, h.events.events[2].Available)
	assert.NotEmpty(t, h.events.events[1].ID)
	assert.Equal(t, a.Title, h.events.events[2].ActivityTitle)
	assert.Equal(t, 3, h.cache.n)
}

func TestEnrollAsPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.mustCreate(t, 5)

	_, err := h.coord.EnrollAs(ctx, model.Identity{}, member.UserID, a.ID)
	assert.ErrorIs(t, err, repository.ErrUnauthorized)

	_, err = h.coord.EnrollAs(ctx, other, member.UserID, a.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = h.coord.EnrollAs(ctx, member, member.UserID, a.ID)
	assert.NoError(t, err)

	_, err = h.coord.EnrollAs(ctx, admin, other.UserID, a.ID)
	assert.NoError(t, err)
}

func TestWithdrawAsPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.mustCreate(t, 5)
	e, err := h.coord.Enroll(ctx, member.UserID, a.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, h.coord.WithdrawAs(ctx, model.Identity{}, e.ID), repository.ErrUnauthorized)
	assert.ErrorIs(t, h.coord.WithdrawAs(ctx, member, 999), repository.ErrNotFound)
	assert.ErrorIs(t, h.coord.WithdrawAs(ctx, other, e.ID), repository.ErrForbidden)
	assert.NoError(t, h.coord.WithdrawAs(ctx, member, e.ID))

	e, err = h.coord.Enroll(ctx, member.UserID, a.ID)
	require.NoError(t, err)
	assert.NoError(t, h.coord.WithdrawAs(ctx, admin, e.ID))
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.mustCreate(t, 5)
	_, err := h.coord.Enroll(ctx, member.UserID, a.ID)
	require.NoError(t, err)

	list, err := h.coord.ListForUser(ctx, member, member.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Activity)
	assert.Equal(t, 4, list[0].Activity.Available())

	_, err = h.coord.ListForUser(ctx, other, member.UserID)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestEnrollGivesUpWhenContextEnds(t *testing.T) {
	h := newHarness(t)
	a := h.mustCreate(t, 5)

	unlock, err := h.locks.Lock(context.Background(), a.ID)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.coord.Enroll(ctx, 1, a.ID)
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}
