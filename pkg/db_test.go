package pkg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolationError(t *testing.T) {
	uniqueErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "admins_email_key"}
	assert.True(t, IsUniqueViolationError(uniqueErr))
	assert.True(t, IsUniqueViolationError(fmt.Errorf("update admin: %w", uniqueErr)))
	assert.False(t, IsUniqueViolationError(errors.New("23505")))
	assert.False(t, IsUniqueViolationError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	assert.False(t, IsUniqueViolationError(nil))
}

func TestIsForeignKeyViolationError(t *testing.T) {
	fkErr := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}
	assert.True(t, IsForeignKeyViolationError(fmt.Errorf("insert session: %w", fkErr)))
	assert.False(t, IsForeignKeyViolationError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
}
