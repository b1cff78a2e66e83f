package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func farFuture() time.Time { return time.Now().UTC().Add(24 * time.Hour) }

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, classify(fmt.Errorf("query: %w", driver.ErrBadConn)), ErrUnavailable)
	assert.ErrorIs(t, classify(mysql.ErrInvalidConn), ErrUnavailable)
	assert.ErrorIs(t, classify(context.DeadlineExceeded), ErrUnavailable)
	assert.ErrorIs(t, classify(fmt.Errorf("begin: %w", context.Canceled)), ErrUnavailable)
	assert.ErrorIs(t, classify(&mysql.MySQLError{Number: mysqlDeadlock}), ErrUnavailable)
	assert.ErrorIs(t, classify(&mysql.MySQLError{Number: mysqlLockWaitTimeout}), ErrUnavailable)

	other := errors.New("syntax")
	assert.Equal(t, other, classify(other))
	dup := &mysql.MySQLError{Number: mysqlDuplicateEntry}
	assert.False(t, errors.Is(classify(dup), ErrUnavailable))
	assert.True(t, isMySQLError(fmt.Errorf("wrap: %w", dup), mysqlDuplicateEntry))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now`, escapeLike("50% off_now"))
}
