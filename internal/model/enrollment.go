package model

import "time"

// Enrollment binds one user to one activity. The (UserID, ActivityID) pair
// is unique among active enrollments.
type Enrollment struct {
	ID         uint64
	UserID     uint64
	ActivityID uint64
	CreatedAt  time.Time
}

// EnrollmentDetail is an enrollment joined with its activity. Activity is
// nil and ActivityMissing is set when the activity no longer resolves.
type EnrollmentDetail struct {
	Enrollment
	Activity        *Activity
	ActivityMissing bool
}
