//go:build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mysqlcontainer "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/iliyamo/gym-roster/internal/database"
	"github.com/iliyamo/gym-roster/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := mysqlcontainer.Run(ctx, "mysql:8.0.36",
		mysqlcontainer.WithDatabase("gym"),
		mysqlcontainer.WithUsername("gym"),
		mysqlcontainer.WithPassword("gym"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	dsn, err := ctr.ConnectionString(ctx, "charset=utf8mb4", "parseTime=true", "loc=UTC")
	require.NoError(t, err)

	db, err := database.OpenDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func TestMySQLStoreEnrollmentLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := NewUserRepo(db)
	store := NewActivityRepo(db)

	var ids []uint64
	for _, email := range []string{"a@gym.test", "b@gym.test", "c@gym.test"} {
		u := &model.User{Name: email, Email: email, PasswordHash: "x", Role: model.RoleMember}
		require.NoError(t, users.CreateUser(ctx, u))
		ids = append(ids, u.ID)
	}

	a, err := store.InsertActivity(ctx, spinSpec("Spin", model.Monday, "07:00"))
	require.NoError(t, err)
	assert.Equal(t, 0, a.Enrolled)

	// Three users race for two places.
	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, uid := range ids {
		wg.Add(1)
		go func(i int, uid uint64) {
			defer wg.Done()
			errs[i] = store.InActivityScope(ctx, a.ID, func(ctx context.Context, tx ScopeTx, cur *model.Activity) error {
				if cur.Available() <= 0 {
					return ErrCapacityExceeded
				}
				_, err := tx.InsertEnrollment(ctx, uid)
				return err
			})
		}(i, uid)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 2, ok)

	got, err := store.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Enrolled)

	err = store.InActivityScope(ctx, a.ID, func(ctx context.Context, tx ScopeTx, _ *model.Activity) error {
		_, err := tx.InsertEnrollment(ctx, 999999)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	var removed int
	require.NoError(t, store.InActivityScope(ctx, a.ID, func(ctx context.Context, tx ScopeTx, _ *model.Activity) error {
		var err error
		if removed, err = tx.DeleteAllEnrollments(ctx); err != nil {
			return err
		}
		return tx.DeleteActivity(ctx)
	}))
	assert.Equal(t, 2, removed)

	_, err = store.GetActivity(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMySQLMixedScopesKeepCapacityBound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := NewUserRepo(db)
	store := NewActivityRepo(db)

	var ids []uint64
	for i := 0; i < 6; i++ {
		email := fmt.Sprintf("m%d@gym.test", i)
		u := &model.User{Name: email, Email: email, PasswordHash: "x", Role: model.RoleMember}
		require.NoError(t, users.CreateUser(ctx, u))
		ids = append(ids, u.ID)
	}
	a, err := store.InsertActivity(ctx, spinSpec("Mixed", model.Wednesday, "12:00"))
	require.NoError(t, err)

	enroll := func(uid uint64) (*model.Enrollment, error) {
		var e *model.Enrollment
		err := store.InActivityScope(ctx, a.ID, func(ctx context.Context, tx ScopeTx, cur *model.Activity) error {
			if _, err := tx.FindEnrollment(ctx, uid); err == nil {
				return ErrAlreadyEnrolled
			}
			n, err := tx.CountEnrollments(ctx)
			if err != nil {
				return err
			}
			if cur.MaxCapacity-n <= 0 {
				return ErrCapacityExceeded
			}
			e, err = tx.InsertEnrollment(ctx, uid)
			return err
		})
		return e, err
	}
	tolerated := func(err error) bool {
		return err == nil || errors.Is(err, ErrCapacityExceeded) ||
			errors.Is(err, ErrAlreadyEnrolled) || errors.Is(err, ErrCapacityConflict)
	}

	var (
		wg         sync.WaitGroup
		violations atomic.Int32
		unexpected atomic.Int32
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0, 1:
				e, err := enroll(ids[i%len(ids)])
				if !tolerated(err) {
					unexpected.Add(1)
				}
				if err == nil && i%3 == 0 {
					err = store.InActivityScope(ctx, a.ID, func(ctx context.Context, tx ScopeTx, _ *model.Activity) error {
						return tx.DeleteEnrollment(ctx, e.ID)
					})
					if err != nil {
						unexpected.Add(1)
					}
				}
			case 2:
				limit := 1 + i%2
				err := store.InActivityScope(ctx, a.ID, func(ctx context.Context, tx ScopeTx, cur *model.Activity) error {
					spec := cur.Spec()
					if limit < cur.Enrolled {
						return ErrCapacityConflict
					}
					spec.MaxCapacity = limit
					_, err := tx.UpdateActivity(ctx, spec)
					return err
				})
				if !tolerated(err) {
					unexpected.Add(1)
				}
			default:
				cur, err := store.GetActivity(ctx, a.ID)
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
	wg.Wait()
	assert.Zero(t, violations.Load())
	assert.Zero(t, unexpected.Load())

	for _, uid := range ids {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			if _, err := enroll(uid); !tolerated(err) && !errors.Is(err, ErrNotFound) {
				unexpected.Add(1)
			}
		}(uid)
	}
	var delErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		delErr = store.InActivityScope(ctx, a.ID, func(ctx context.Context, tx ScopeTx, _ *model.Activity) error {
			if _, err := tx.DeleteAllEnrollments(ctx); err != nil {
				return err
			}
			return tx.DeleteActivity(ctx)
		})
	}()
	wg.Wait()
	require.NoError(t, delErr)
	assert.Zero(t, unexpected.Load())

	var left int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE activity_id = ?`, a.ID).Scan(&left))
	assert.Zero(t, left)
	_, err = store.GetActivity(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMySQLListActivities(t *testing.T) {
	ctx := context.Background()
	store := NewActivityRepo(openTestDB(t))

	_, err := store.InsertActivity(ctx, spinSpec("Late 100% Spin", model.Friday, "19:00"))
	require.NoError(t, err)
	_, err = store.InsertActivity(ctx, spinSpec("Early Spin", model.Monday, "07:00"))
	require.NoError(t, err)

	list, err := store.ListActivities(ctx, model.ActivityFilter{Sort: model.SortSchedule})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Early Spin", list[0].Title)

	list, err = store.ListActivities(ctx, model.ActivityFilter{Search: "100%"})
	require.NoError(t, err)
	require.Len(t, list, 1)
}
