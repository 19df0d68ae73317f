//go:build integration_test || all_tests

package auth

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icheme/portfolio/internal/testinternals"
	"github.com/icheme/portfolio/pkg"
)

func TestCredentialStore(t *testing.T) {
	ctx := t.Context()
	credentials := NewCredentialStore(testinternals.NewTestDBPool(t, "admins"))

	hash, err := pkg.HashPassword("initial-pass")
	require.NoError(t, err)

	email := gofakeit.Email()
	admin, err := credentials.Create(ctx, email, hash, "Admin")
	require.NoError(t, err)
	assert.Positive(t, admin.ID)

	_, err = credentials.Create(ctx, email, hash, "Other")
	assert.ErrorIs(t, err, ErrEmailTaken)

	byEmail, err := credentials.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, byEmail.ID)
	assert.True(t, pkg.CheckPasswordHash("initial-pass", byEmail.PasswordHash))

	_, err = credentials.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrAdminNotFound)

	valid, err := credentials.VerifyPassword(ctx, admin.ID, "initial-pass")
	require.NoError(t, err)
	assert.True(t, valid)
	valid, err = credentials.VerifyPassword(ctx, admin.ID, "wrong-pass")
	require.NoError(t, err)
	assert.False(t, valid)

	// hashed by pgcrypto, still readable by bcrypt on login
	require.NoError(t, credentials.UpdatePassword(ctx, admin.ID, "changed-pass"))
	byID, err := credentials.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, pkg.CheckPasswordHash("changed-pass", byID.PasswordHash))

	otherEmail := gofakeit.Email()
	other, err := credentials.Create(ctx, otherEmail, hash, "")
	require.NoError(t, err)
	_, err = credentials.UpdateProfile(ctx, other.ID, "Other", email)
	assert.ErrorIs(t, err, ErrEmailTaken)

	updated, err := credentials.UpdateProfile(ctx, admin.ID, "Renamed", "renamed@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "renamed@example.com", updated.Email)

	adminID, err := credentials.SetPasswordHash(ctx, "renamed@example.com", hash)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, adminID)
	_, err = credentials.SetPasswordHash(ctx, "nobody@example.com", hash)
	assert.ErrorIs(t, err, ErrAdminNotFound)
}

func countSessions(t *testing.T, dbPool *pgxpool.Pool, adminID int) int {
	t.Helper()
	var count int
	require.NoError(t, dbPool.QueryRow(t.Context(),
		`SELECT COUNT(*) FROM admin_sessions WHERE admin_id = $1`, adminID,
	).Scan(&count))
	return count
}

func TestSessionStore(t *testing.T) {
	ctx := t.Context()
	dbPool := testinternals.NewTestDBPool(t, "admins")
	credentials := NewCredentialStore(dbPool)
	sessions := NewSessionStore(dbPool)

	hash, err := pkg.HashPassword("initial-pass")
	require.NoError(t, err)
	admin, err := credentials.Create(ctx, gofakeit.Email(), hash, "Admin")
	require.NoError(t, err)

	now := time.Now()
	newSession := func(token string, expiresAt time.Time) *Session {
		session, err := sessions.Create(ctx, &Session{
			AdminID:   admin.ID,
			Token:     token,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		})
		require.NoError(t, err)
		return session
	}

	current := newSession("token-current", now.Add(time.Hour))
	newSession("token-other-1", now.Add(time.Hour))
	newSession("token-other-2", now.Add(time.Hour))
	newSession("token-expired", now.Add(-time.Minute))

	_, err = sessions.Create(ctx, &Session{AdminID: admin.ID + 100, Token: "token-orphan", ExpiresAt: now})
	assert.ErrorIs(t, err, ErrAdminNotFound)

	assert.Equal(t, 4, countSessions(t, dbPool, admin.ID))

	found, err := sessions.GetByToken(ctx, current.Token)
	require.NoError(t, err)
	assert.Equal(t, current.ID, found.ID)
	assert.Equal(t, admin.ID, found.AdminID)

	_, err = sessions.GetByToken(ctx, "token-unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	expired, err := sessions.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	revoked, err := sessions.DeleteOthers(ctx, admin.ID, current.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	assert.Equal(t, 1, countSessions(t, dbPool, admin.ID))

	require.NoError(t, sessions.Delete(ctx, current.Token))
	assert.ErrorIs(t, sessions.Delete(ctx, current.Token), ErrSessionNotFound)
}

func TestResetPassword(t *testing.T) {
	ctx := t.Context()
	dbPool := testinternals.NewTestDBPool(t, "admins")
	credentials := NewCredentialStore(dbPool)
	sessions := NewSessionStore(dbPool)

	oldHash, err := pkg.HashPassword("lost-device-pass")
	require.NoError(t, err)
	email := gofakeit.Email()
	admin, err := credentials.Create(ctx, email, oldHash, "Admin")
	require.NoError(t, err)
	other, err := credentials.Create(ctx, gofakeit.Email(), oldHash, "Other")
	require.NoError(t, err)

	expiresAt := time.Now().Add(time.Hour)
	for _, s := range []*Session{
		{AdminID: admin.ID, Token: "token-laptop", ExpiresAt: expiresAt},
		{AdminID: admin.ID, Token: "token-phone", ExpiresAt: expiresAt},
		{AdminID: other.ID, Token: "token-other", ExpiresAt: expiresAt},
	} {
		_, err := sessions.Create(ctx, s)
		require.NoError(t, err)
	}

	newHash, err := pkg.HashPassword("fresh-pass-123")
	require.NoError(t, err)
	revoked, err := ResetPassword(ctx, credentials, sessions, email, newHash)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	assert.Zero(t, countSessions(t, dbPool, admin.ID))
	assert.Equal(t, 1, countSessions(t, dbPool, other.ID))

	_, err = sessions.GetByToken(ctx, "token-phone")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	reloaded, err := credentials.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, pkg.CheckPasswordHash("fresh-pass-123", reloaded.PasswordHash))

	_, err = ResetPassword(ctx, credentials, sessions, "nobody@example.com", newHash)
	assert.ErrorIs(t, err, ErrAdminNotFound)
}
