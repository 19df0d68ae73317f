package auth

import (
	"context"
	"fmt"
)

// ResetPassword replaces the password hash of the admin and signs out all of its
// sessions. It returns the number of revoked sessions.
func ResetPassword(
	ctx context.Context,
	credentials *CredentialStore,
	sessions *SessionStore,
	email, passwordHash string,
) (int64, error) {
	adminID, err := credentials.SetPasswordHash(ctx, email, passwordHash)
	if err != nil {
		return 0, err
	}

	revoked, err := sessions.DeleteAll(ctx, adminID)
	if err != nil {
		return 0, fmt.Errorf("password reset, revoke sessions of admin %d: %w", adminID, err)
	}
	return revoked, nil
}
