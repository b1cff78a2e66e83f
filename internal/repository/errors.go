// Package repository defines the storage contracts for activities,
// enrollments, users and refresh tokens, with MySQL and in-memory
// implementations. The sentinel errors below are the failure taxonomy shared
// by every layer; handlers translate them to HTTP statuses.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when an id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyEnrolled is returned when the user already holds an
	// enrollment in the activity.
	ErrAlreadyEnrolled = errors.New("already enrolled")
	// ErrCapacityExceeded is returned when the activity has no free place.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrCapacityConflict is returned when an edit would lower the maximum
	// capacity below the current enrollment count.
	ErrCapacityConflict = errors.New("capacity below current enrollment")
	// ErrUnauthorized means the caller presented no valid credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller is authenticated but lacks the role or
	// ownership required.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable wraps transient storage failures. It is the only kind a
	// caller should retry.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrEmailExists is returned when registering a taken email.
	ErrEmailExists = errors.New("email already exists")
)

// MySQL server error numbers we react to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlNoReferencedRow = 1452
	mysqlServerGone      = 2006
	mysqlServerLost      = 2013
)

// classify maps driver failures onto the taxonomy. Transient conditions
// become ErrUnavailable; everything else passes through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlServerGone, mysqlServerLost:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == number
}
