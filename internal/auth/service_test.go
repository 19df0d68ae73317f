package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/icheme/portfolio/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func testPasswordHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestService(t *testing.T) (*auth.Service, *MockcredentialStore, *MocksessionStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	credentials := NewMockcredentialStore(ctrl)
	sessions := NewMocksessionStore(ctrl)

	service := auth.NewService(credentials, sessions, auth.DefaultTTL)
	service.NowFunc = func() time.Time { return testNow }
	service.RandStringFunc = func(s int) (string, error) {
		assert.Equal(t, 32, s)
		return "test-token-0123456789", nil
	}

	return service, credentials, sessions
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	admin := &auth.Admin{ID: 7, Email: "a@x.com", PasswordHash: testPasswordHash(t, "correct")}

	t.Run("success", func(t *testing.T) {
		service, credentials, sessions := newTestService(t)
		credentials.EXPECT().GetByEmail(gomock.Any(), "a@x.com").Return(admin, nil)
		sessions.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, s *auth.Session) (*auth.Session, error) {
				assert.Equal(t, 7, s.AdminID)
				assert.Equal(t, "test-token-0123456789", s.Token)
				assert.Equal(t, testNow, s.CreatedAt)
				assert.Equal(t, testNow.Add(7*24*time.Hour), s.ExpiresAt)
				s.ID = 1
				return s, nil
			})

		session, err := service.Login(ctx, "a@x.com", "correct")
		require.NoError(t, err)
		assert.Equal(t, 1, session.ID)
		assert.Equal(t, 7, session.AdminID)
		assert.Equal(t, "test-token-0123456789", session.Token)
	})

	t.Run("wrong password creates no session", func(t *testing.T) {
		service, credentials, _ := newTestService(t)
		credentials.EXPECT().GetByEmail(gomock.Any(), "a@x.com").Return(admin, nil)

		session, err := service.Login(ctx, "a@x.com", "wrong")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Nil(t, session)
	})

	t.Run("unknown email looks like wrong password", func(t *testing.T) {
		service, credentials, _ := newTestService(t)
		credentials.EXPECT().GetByEmail(gomock.Any(), "nobody@x.com").Return(nil, auth.ErrAdminNotFound)

		_, err := service.Login(ctx, "nobody@x.com", "correct")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("missing fields", func(t *testing.T) {
		service, _, _ := newTestService(t)
		_, err := service.Login(ctx, "", "correct")
		var validationErr *auth.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "Missing fields", validationErr.Message)
	})

	t.Run("store failure", func(t *testing.T) {
		service, credentials, _ := newTestService(t)
		credentials.EXPECT().GetByEmail(gomock.Any(), "a@x.com").Return(nil, errors.New("conn refused"))

		_, err := service.Login(ctx, "a@x.com", "correct")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.NotErrorIs(t, err, auth.ErrCreateSession)
	})

	t.Run("session insert failure", func(t *testing.T) {
		service, credentials, sessions := newTestService(t)
		credentials.EXPECT().GetByEmail(gomock.Any(), "a@x.com").Return(admin, nil)
		sessions.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("insert failed"))

		_, err := service.Login(ctx, "a@x.com", "correct")
		assert.ErrorIs(t, err, auth.ErrCreateSession)
	})
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty token", func(t *testing.T) {
		service, _, _ := newTestService(t)
		_, err := service.Validate(ctx, "")
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("unknown token", func(t *testing.T) {
		service, _, sessions := newTestService(t)
		sessions.EXPECT().GetByToken(gomock.Any(), "nope").Return(nil, auth.ErrSessionNotFound)
		_, err := service.Validate(ctx, "nope")
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("expired token", func(t *testing.T) {
		service, _, sessions := newTestService(t)
		sessions.EXPECT().GetByToken(gomock.Any(), "old").Return(&auth.Session{
			AdminID:   7,
			Token:     "old",
			ExpiresAt: testNow,
		}, nil)
		_, err := service.Validate(ctx, "old")
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("valid token", func(t *testing.T) {
		service, _, sessions := newTestService(t)
		sessions.EXPECT().GetByToken(gomock.Any(), "live").Return(&auth.Session{
			AdminID:   7,
			Token:     "live",
			ExpiresAt: testNow.Add(time.Minute),
		}, nil)
		session, err := service.Validate(ctx, "live")
		require.NoError(t, err)
		assert.Equal(t, 7, session.AdminID)
	})

	t.Run("backend error is not unauthorized", func(t *testing.T) {
		service, _, sessions := newTestService(t)
		sessions.EXPECT().GetByToken(gomock.Any(), "tok").Return(nil, errors.New("db down"))
		_, err := service.Validate(ctx, "tok")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrUnauthorized)
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	session := &auth.Session{ID: 3, AdminID: 7, Token: "current-token"}

	t.Run("short new password is rejected before any store call", func(t *testing.T) {
		// no EXPECT set: any store call fails the test
		service, _, _ := newTestService(t)
		err := service.ChangePassword(ctx, session, "correct", "short")
		var validationErr *auth.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "New password must be at least 8 characters", validationErr.Message)
	})

	t.Run("missing passwords", func(t *testing.T) {
		service, _, _ := newTestService(t)
		err := service.ChangePassword(ctx, session, "", "long-enough-password")
		var validationErr *auth.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "Both passwords are required", validationErr.Message)
	})

	t.Run("no session", func(t *testing.T) {
		service, _, _ := newTestService(t)
		err := service.ChangePassword(ctx, nil, "correct", "long-enough-password")
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("wrong current password", func(t *testing.T) {
		service, credentials, _ := newTestService(t)
		credentials.EXPECT().VerifyPassword(gomock.Any(), 7, "wrong").Return(false, nil)
		err := service.ChangePassword(ctx, session, "wrong", "long-enough-password")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("persist failure", func(t *testing.T) {
		service, credentials, _ := newTestService(t)
		credentials.EXPECT().VerifyPassword(gomock.Any(), 7, "correct").Return(true, nil)
		credentials.EXPECT().UpdatePassword(gomock.Any(), 7, "long-enough-password").Return(errors.New("tx aborted"))
		err := service.ChangePassword(ctx, session, "correct", "long-enough-password")
		assert.ErrorIs(t, err, auth.ErrUpdatePassword)
	})

	t.Run("success revokes other sessions", func(t *testing.T) {
		service, credentials, sessions := newTestService(t)
		gomock.InOrder(
			credentials.EXPECT().VerifyPassword(gomock.Any(), 7, "correct").Return(true, nil),
			credentials.EXPECT().UpdatePassword(gomock.Any(), 7, "long-enough-password").Return(nil),
			sessions.EXPECT().DeleteOthers(gomock.Any(), 7, "current-token").Return(int64(2), nil),
		)
		require.NoError(t, service.ChangePassword(ctx, session, "correct", "long-enough-password"))
	})

	t.Run("revoke failure keeps the password change", func(t *testing.T) {
		service, credentials, sessions := newTestService(t)
		credentials.EXPECT().VerifyPassword(gomock.Any(), 7, "correct").Return(true, nil)
		credentials.EXPECT().UpdatePassword(gomock.Any(), 7, "long-enough-password").Return(nil)
		sessions.EXPECT().DeleteOthers(gomock.Any(), 7, "current-token").Return(int64(0), errors.New("timeout"))
		assert.NoError(t, service.ChangePassword(ctx, session, "correct", "long-enough-password"))
	})
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	service, _, sessions := newTestService(t)

	assert.NoError(t, service.Logout(ctx, ""))

	sessions.EXPECT().Delete(gomock.Any(), "gone").Return(auth.ErrSessionNotFound)
	assert.NoError(t, service.Logout(ctx, "gone"))

	sessions.EXPECT().Delete(gomock.Any(), "tok").Return(errors.New("db down"))
	assert.Error(t, service.Logout(ctx, "tok"))
}

func TestService_UpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid email", func(t *testing.T) {
		service, _, _ := newTestService(t)
		_, err := service.UpdateProfile(ctx, 7, "Ana", "not-an-email")
		var validationErr *auth.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "Valid email is required", validationErr.Message)
	})

	t.Run("email used by another admin", func(t *testing.T) {
		service, credentials, _ := newTestService(t)
		credentials.EXPECT().GetByEmail(gomock.Any(), "b@x.com").Return(&auth.Admin{ID: 8}, nil)
		_, err := service.UpdateProfile(ctx, 7, "Ana", " b@x.com ")
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})

	t.Run("same admin keeps email", func(t *testing.T) {
		service, credentials, _ := newTestService(t)
		credentials.EXPECT().GetByEmail(gomock.Any(), "a@x.com").Return(&auth.Admin{ID: 7}, nil)
		credentials.EXPECT().UpdateProfile(gomock.Any(), 7, "Ana", "a@x.com").
			Return(&auth.Admin{ID: 7, Name: "Ana", Email: "a@x.com"}, nil)
		admin, err := service.UpdateProfile(ctx, 7, "Ana", "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "Ana", admin.Name)
	})

	t.Run("new email", func(t *testing.T) {
		service, credentials, _ := newTestService(t)
		credentials.EXPECT().GetByEmail(gomock.Any(), "new@x.com").Return(nil, auth.ErrAdminNotFound)
		credentials.EXPECT().UpdateProfile(gomock.Any(), 7, "", "new@x.com").
			Return(&auth.Admin{ID: 7, Email: "new@x.com"}, nil)
		admin, err := service.UpdateProfile(ctx, 7, "", "new@x.com")
		require.NoError(t, err)
		assert.Equal(t, "new@x.com", admin.Email)
	})
}

func TestService_CleanExpired(t *testing.T) {
	service, _, sessions := newTestService(t)
	sessions.EXPECT().DeleteExpired(gomock.Any(), testNow).Return(int64(4), nil)

	removed, err := service.CleanExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}
