package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// CredentialStore keeps admin identities in the admins table.
type CredentialStore struct {
	db *pgxpool.Pool
}

func NewCredentialStore(db *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{
		db: db,
	}
}

const adminColumns = `id, email, password, COALESCE(name, ''), created_at`

func scanAdmin(row pgx.Row) (*Admin, error) {
	admin := &Admin{}
	if err := row.Scan(&admin.ID, &admin.Email, &admin.PasswordHash, &admin.Name, &admin.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, err
	}
	return admin, nil
}

func (s *CredentialStore) GetByEmail(ctx context.Context, email string) (_ *Admin, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.admins.getByEmail")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return scanAdmin(s.db.QueryRow(ctx, `
		SELECT `+adminColumns+`
		FROM admins
		WHERE email = $1
	`, email))
}

func (s *CredentialStore) GetByID(ctx context.Context, id int) (_ *Admin, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.admins.getByID")
	span.SetAttributes(attribute.Int("admin.id", id))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return scanAdmin(s.db.QueryRow(ctx, `
		SELECT `+adminColumns+`
		FROM admins
		WHERE id = $1
	`, id))
}

// VerifyPassword compares the attempt against the stored hash inside the database (pgcrypto).
func (s *CredentialStore) VerifyPassword(ctx context.Context, adminID int, password string) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.admins.verifyPassword")
	span.SetAttributes(attribute.Int("admin.id", adminID))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var valid bool
	if err := s.db.QueryRow(ctx,
		`SELECT verify_admin_password($1, $2)`,
		adminID, password,
	).Scan(&valid); err != nil {
		return false, fmt.Errorf("verify admin password: %w", err)
	}
	return valid, nil
}

// UpdatePassword stores the new password, hashed inside the database.
func (s *CredentialStore) UpdatePassword(ctx context.Context, adminID int, newPassword string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.admins.updatePassword")
	span.SetAttributes(attribute.Int("admin.id", adminID))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var updated bool
	if err := s.db.QueryRow(ctx,
		`SELECT update_admin_password($1, $2)`,
		adminID, newPassword,
	).Scan(&updated); err != nil {
		return fmt.Errorf("update admin password: %w", err)
	}
	if !updated {
		return ErrAdminNotFound
	}
	return nil
}

func (s *CredentialStore) UpdateProfile(ctx context.Context, adminID int, name, email string) (_ *Admin, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.admins.updateProfile")
	span.SetAttributes(attribute.Int("admin.id", adminID))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	admin, err := scanAdmin(s.db.QueryRow(ctx, `
		UPDATE admins SET name = NULLIF($2, ''), email = $3
		WHERE id = $1
		RETURNING `+adminColumns,
		adminID, name, email,
	))
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return admin, nil
}

// Create inserts a new admin with an already hashed password.
func (s *CredentialStore) Create(ctx context.Context, email, passwordHash, name string) (_ *Admin, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.admins.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	admin, err := scanAdmin(s.db.QueryRow(ctx, `
		INSERT INTO admins (email, password, name)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING `+adminColumns,
		email, passwordHash, name,
	))
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return admin, nil
}

// SetPasswordHash overwrites the stored hash of the admin with the given email
// and returns the admin id.
func (s *CredentialStore) SetPasswordHash(ctx context.Context, email, passwordHash string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.admins.setPasswordHash")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var adminID int
	err = s.db.QueryRow(ctx,
		`UPDATE admins SET password = $2 WHERE email = $1 RETURNING id`,
		email, passwordHash,
	).Scan(&adminID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAdminNotFound
		}
		return 0, err
	}
	return adminID, nil
}
