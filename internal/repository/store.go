package repository

import (
	"context"
	"time"

	"github.com/iliyamo/gym-roster/internal/model"
)

// Store persists activities and their enrollments. Reads outside a scope
// see a consistent (activity, enrollment count) pair but take no lock.
type Store interface {
	InsertActivity(ctx context.Context, spec model.ActivitySpec) (*model.Activity, error)
	GetActivity(ctx context.Context, id uint64) (*model.Activity, error)
	ListActivities(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error)
	GetEnrollment(ctx context.Context, id uint64) (*model.Enrollment, error)
	ListEnrollmentsByUser(ctx context.Context, userID uint64) ([]model.EnrollmentDetail, error)

	// InActivityScope runs fn with the activity row locked against every
	// other scope on the same id. The activity passed to fn carries the
	// enrollment count read under the lock. Changes made through tx are
	// committed when fn returns nil and discarded otherwise. ErrNotFound is
	// returned without calling fn when the activity does not exist.
	InActivityScope(ctx context.Context, activityID uint64, fn ScopeFunc) error
}

// ScopeFunc is the body of an activity scope.
type ScopeFunc func(ctx context.Context, tx ScopeTx, a *model.Activity) error

// ScopeTx is the set of writes allowed while an activity is locked. Every
// method is bound to the scoped activity.
type ScopeTx interface {
	CountEnrollments(ctx context.Context) (int, error)
	// FindEnrollment returns ErrNotFound when userID holds no enrollment.
	FindEnrollment(ctx context.Context, userID uint64) (*model.Enrollment, error)
	// InsertEnrollment returns ErrAlreadyEnrolled on a duplicate pair.
	InsertEnrollment(ctx context.Context, userID uint64) (*model.Enrollment, error)
	DeleteEnrollment(ctx context.Context, enrollmentID uint64) error
	DeleteAllEnrollments(ctx context.Context) (int, error)
	UpdateActivity(ctx context.Context, spec model.ActivitySpec) (*model.Activity, error)
	DeleteActivity(ctx context.Context) error
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	// RevokeByHash fails with ErrNotFound when the token was not live.
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}
