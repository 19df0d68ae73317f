package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/icheme/portfolio/internal/logging"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

//go:generate mockgen -source=$GOFILE -destination=service_mocks_test.go -package=auth_test

type credentialStore interface {
	GetByEmail(ctx context.Context, email string) (*Admin, error)
	GetByID(ctx context.Context, id int) (*Admin, error)
	VerifyPassword(ctx context.Context, adminID int, password string) (bool, error)
	UpdatePassword(ctx context.Context, adminID int, newPassword string) error
	UpdateProfile(ctx context.Context, adminID int, name, email string) (*Admin, error)
}

type sessionStore interface {
	Create(ctx context.Context, session *Session) (*Session, error)
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteOthers(ctx context.Context, adminID int, keepToken string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	credentials credentialStore
	sessions    sessionStore
	ttl         time.Duration

	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
	NowFunc        func() time.Time
}

func NewService(
	credentials credentialStore,
	sessions sessionStore,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		credentials:    credentials,
		sessions:       sessions,
		ttl:            ttl,
		RandStringFunc: pkg.GenerateRandomString,
		NowFunc:        time.Now,
	}
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Login checks the credentials and issues a new session.
// Unknown email and wrong password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authService.login")
	defer func() {
		if err != nil && !errors.Is(err, ErrInvalidCredentials) {
			tracing.EndSpanWithErrCheck(span, err)
			return
		}
		span.End()
	}()

	if email == "" || password == "" {
		return nil, &ValidationError{Message: "Missing fields"}
	}

	admin, err := s.credentials.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			log.Tracef("login: no admin for email [%s]", email)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}

	if !pkg.CheckPasswordHash(password, admin.PasswordHash) {
		log.Tracef("login: wrong password for admin [%d]", admin.ID)
		return nil, ErrInvalidCredentials
	}

	token, err := s.RandStringFunc(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: generate token: %w", ErrCreateSession, err)
	}

	now := s.NowFunc()
	session, err := s.sessions.Create(ctx, &Session{
		AdminID:   admin.ID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateSession, err)
	}

	span.SetAttributes(attribute.Int("admin.id", admin.ID))
	log.Debugf("admin [%d] logged in, session [%s]", admin.ID, logging.MaskToken(token))

	return session, nil
}

// Validate resolves a token to its live session. Expired sessions are treated as absent.
func (s *Service) Validate(ctx context.Context, token string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authService.validate")
	defer span.End()

	if token == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.ExpiredAt(s.NowFunc()) {
		log.Tracef("session [%s] expired at %s", logging.MaskToken(token), session.ExpiresAt)
		return nil, ErrUnauthorized
	}

	span.SetAttributes(attribute.Int("admin.id", session.AdminID))
	return session, nil
}

// RevokeOtherSessions deletes every session of the admin except keepToken.
func (s *Service) RevokeOtherSessions(ctx context.Context, adminID int, keepToken string) (int64, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authService.revokeOthers")
	defer span.End()

	return s.sessions.DeleteOthers(ctx, adminID, keepToken)
}

// ChangePassword runs the gates in order: input, current password, persist, revoke.
// Session revocation is best effort and never undoes the committed password.
func (s *Service) ChangePassword(ctx context.Context, session *Session, currentPassword, newPassword string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authService.changePassword")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if session == nil {
		return ErrUnauthorized
	}
	if currentPassword == "" || newPassword == "" {
		return &ValidationError{Message: "Both passwords are required"}
	}
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return &ValidationError{Message: fmt.Sprintf("New password must be at least %d characters", MinPasswordLength)}
	}

	valid, err := s.credentials.VerifyPassword(ctx, session.AdminID, currentPassword)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !valid {
		return ErrInvalidCredentials
	}

	if err := s.credentials.UpdatePassword(ctx, session.AdminID, newPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdatePassword, err)
	}

	revoked, err := s.RevokeOtherSessions(ctx, session.AdminID, session.Token)
	if err != nil {
		log.Errorf("password changed for admin [%d], but revoking other sessions failed: %s", session.AdminID, err)
		return nil
	}

	log.Infof("password changed for admin [%d], %d other sessions revoked", session.AdminID, revoked)
	return nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authService.logout")
	defer span.End()

	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

func (s *Service) GetAdmin(ctx context.Context, adminID int) (*Admin, error) {
	return s.credentials.GetByID(ctx, adminID)
}

func (s *Service) UpdateProfile(ctx context.Context, adminID int, name, email string) (_ *Admin, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authService.updateProfile")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ValidationError{Message: "Valid email is required"}
	}

	existing, err := s.credentials.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != adminID:
		return nil, ErrEmailTaken
	case err != nil && !errors.Is(err, ErrAdminNotFound):
		return nil, fmt.Errorf("check email: %w", err)
	}

	return s.credentials.UpdateProfile(ctx, adminID, name, email)
}

// CleanExpired removes sessions past their expiry.
func (s *Service) CleanExpired(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.NowFunc())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if removed > 0 {
		log.Infof("auth service: removed %d expired sessions", removed)
	}
	return removed, nil
}
