package auth

import (
	"context"
	"errors"
	"time"

	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// SessionStore keeps issued admin tokens in the admin_sessions table.
type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		db: db,
	}
}

func (s *SessionStore) Create(ctx context.Context, session *Session) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.create")
	span.SetAttributes(attribute.Int("admin.id", session.AdminID))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if session.Token == "" {
		return nil, errors.New("session token empty")
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO admin_sessions (admin_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`,
		session.AdminID, session.Token, session.CreatedAt, session.ExpiresAt,
	).Scan(&session.ID)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrAdminNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *SessionStore) GetByToken(ctx context.Context, token string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.getByToken")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	session := &Session{}
	err = s.db.QueryRow(ctx, `
		SELECT id, admin_id, token, created_at, expires_at
		FROM admin_sessions
		WHERE token = $1
	`, token).Scan(&session.ID, &session.AdminID, &session.Token, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := s.db.Exec(ctx, `DELETE FROM admin_sessions WHERE token = $1`, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteOthers removes every session of the admin except the one holding keepToken.
func (s *SessionStore) DeleteOthers(ctx context.Context, adminID int, keepToken string) (_ int64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.deleteOthers")
	span.SetAttributes(attribute.Int("admin.id", adminID))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := s.db.Exec(ctx, `
		DELETE FROM admin_sessions
		WHERE admin_id = $1 AND token <> $2
	`, adminID, keepToken)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("deleted", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// DeleteAll removes every session of the admin, e.g. after an out-of-band password reset.
func (s *SessionStore) DeleteAll(ctx context.Context, adminID int) (_ int64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.deleteAll")
	span.SetAttributes(attribute.Int("admin.id", adminID))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := s.db.Exec(ctx, `DELETE FROM admin_sessions WHERE admin_id = $1`, adminID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (_ int64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.deleteExpired")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := s.db.Exec(ctx, `DELETE FROM admin_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
