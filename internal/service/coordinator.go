package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/gym-roster/internal/keylock"
	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/queue"
	"github.com/iliyamo/gym-roster/internal/repository"
)

// UserLookup resolves the member an enrollment is made for.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uint64) (*model.User, error)
}

// Coordinator runs the enrollment protocol. For one activity, every enroll
// and withdraw is serialized twice: by the in-process lock table and by the
// store's activity scope, which is a row lock on MySQL. The capacity check
// and the insert therefore observe the same count.
//
// Nothing is retried here. An ErrUnavailable from Enroll is safe to retry
// because a second attempt after a hidden success fails with
// ErrAlreadyEnrolled.
type Coordinator struct {
	store  repository.Store
	users  UserLookup
	locks  *keylock.Table
	policy *Policy
	notify *Notifier
}

// NewCoordinator panics on a nil store. users may be nil, in which case the
// member reference is not checked before enrolling.
func NewCoordinator(store repository.Store, users UserLookup, locks *keylock.Table, policy *Policy, notify *Notifier) *Coordinator {
	if store == nil {
		panic("nil store passed to NewCoordinator")
	}
	if locks == nil {
		locks = keylock.New()
	}
	if policy == nil {
		policy = NewPolicy()
	}
	if notify == nil {
		notify = NewNotifier(nil, nil, nil)
	}
	return &Coordinator{store: store, users: users, locks: locks, policy: policy, notify: notify}
}

// Enroll admits userID into activityID.
func (c *Coordinator) Enroll(ctx context.Context, userID, activityID uint64) (*model.Enrollment, error) {
	e, a, err := c.enroll(ctx, userID, activityID)
	enrollmentOps.WithLabelValues("enroll", Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	c.notify.emit(ctx, queue.Event{
		Type:          queue.EventEnrollmentCreated,
		ActivityID:    activityID,
		ActivityTitle: a.Title,
		UserID:        userID,
		EnrollmentID:  e.ID,
		Available:     a.Available(),
	})
	return e, nil
}

// enroll returns the new enrollment and the activity as it stands after
// the insert. The activity is resolved before the member, so a request naming
// neither reports the missing activity.
func (c *Coordinator) enroll(ctx context.Context, userID, activityID uint64) (*model.Enrollment, *model.Activity, error) {
	unlock, err := lockActivity(ctx, c.locks, activityID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	var (
		created *model.Enrollment
		after   model.Activity
	)
	err = c.store.InActivityScope(ctx, activityID, func(ctx context.Context, tx repository.ScopeTx, a *model.Activity) error {
		if err := c.checkUser(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.FindEnrollment(ctx, userID); err == nil {
			return repository.ErrAlreadyEnrolled
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		n, err := tx.CountEnrollments(ctx)
		if err != nil {
			return err
		}
		if a.MaxCapacity-n <= 0 {
			return repository.ErrCapacityExceeded
		}
		e, err := tx.InsertEnrollment(ctx, userID)
		if err != nil {
			return err
		}
		after = *a
		after.Enrolled = n + 1
		created = e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, &after, nil
}

func (c *Coordinator) checkUser(ctx context.Context, userID uint64) error {
	if c.users == nil {
		return nil
	}
	if _, err := c.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("user %d: %w", userID, repository.ErrNotFound)
		}
		return err
	}
	return nil
}

// Withdraw removes an enrollment and frees its place. It does not check
// ownership; use WithdrawAs for caller-facing paths.
func (c *Coordinator) Withdraw(ctx context.Context, enrollmentID uint64) error {
	e, err := c.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		enrollmentOps.WithLabelValues("withdraw", Outcome(err)).Inc()
		return err
	}
	return c.withdraw(ctx, e)
}

func (c *Coordinator) withdraw(ctx context.Context, e *model.Enrollment) error {
	unlock, err := lockActivity(ctx, c.locks, e.ActivityID)
	if err != nil {
		enrollmentOps.WithLabelValues("withdraw", Outcome(err)).Inc()
		return err
	}
	defer unlock()

	var after model.Activity
	err = c.store.InActivityScope(ctx, e.ActivityID, func(ctx context.Context, tx repository.ScopeTx, a *model.Activity) error {
		if err := tx.DeleteEnrollment(ctx, e.ID); err != nil {
			return err
		}
		after = *a
		after.Enrolled--
		return nil
	})
	enrollmentOps.WithLabelValues("withdraw", Outcome(err)).Inc()
	if err != nil {
		return err
	}
	c.notify.emit(ctx, queue.Event{
		Type:          queue.EventEnrollmentWithdrawn,
		ActivityID:    e.ActivityID,
		ActivityTitle: after.Title,
		UserID:        e.UserID,
		EnrollmentID:  e.ID,
		Available:     after.Available(),
	})
	return nil
}

// EnrollAs enrolls userID on behalf of the caller. Members may only enroll
// themselves; administrators may enroll anyone.
func (c *Coordinator) EnrollAs(ctx context.Context, id model.Identity, userID, activityID uint64) (*model.Enrollment, error) {
	if err := c.policy.Check(id, ActionEnrollmentCreate, Resource{OwnerID: userID}); err != nil {
		enrollmentOps.WithLabelValues("enroll", Outcome(err)).Inc()
		return nil, err
	}
	return c.Enroll(ctx, userID, activityID)
}

// WithdrawAs withdraws an enrollment owned by the caller, or any enrollment
// when the caller is an administrator. A missing enrollment is reported
// before ownership is considered.
func (c *Coordinator) WithdrawAs(ctx context.Context, id model.Identity, enrollmentID uint64) error {
	if !id.Authenticated() {
		return repository.ErrUnauthorized
	}
	e, err := c.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		enrollmentOps.WithLabelValues("withdraw", Outcome(err)).Inc()
		return err
	}
	if err := c.policy.Check(id, ActionEnrollmentDelete, Resource{OwnerID: e.UserID}); err != nil {
		enrollmentOps.WithLabelValues("withdraw", Outcome(err)).Inc()
		return err
	}
	return c.withdraw(ctx, e)
}

// ListForUser returns the user's enrollments joined with their activities.
func (c *Coordinator) ListForUser(ctx context.Context, id model.Identity, userID uint64) ([]model.EnrollmentDetail, error) {
	if err := c.policy.Check(id, ActionEnrollmentList, Resource{OwnerID: userID}); err != nil {
		return nil, err
	}
	return c.store.ListEnrollmentsByUser(ctx, userID)
}
