package messages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultDuplicateWindow = 10 * time.Minute

// RedisDuplicateGuard remembers recently submitted contact messages, so a double
// submitted form is stored and mailed only once.
type RedisDuplicateGuard struct {
	rdb    *redis.Client
	window time.Duration
}

func NewRedisDuplicateGuard(rdb *redis.Client, window time.Duration) *RedisDuplicateGuard {
	return &RedisDuplicateGuard{
		rdb:    rdb,
		window: window,
	}
}

func duplicateKey(email, message string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email) + "||" + message))
	return "contact-dedup||" + hex.EncodeToString(sum[:])
}

// Seen marks the message as submitted and reports whether it already was within the window.
func (g *RedisDuplicateGuard) Seen(ctx context.Context, email, message string) (bool, error) {
	firstTime, err := g.rdb.SetNX(ctx, duplicateKey(email, message), 1, g.window).Result()
	if err != nil {
		return false, err
	}
	return !firstTime, nil
}

// Forget drops the mark of a message that could not be stored, so a resend goes through.
func (g *RedisDuplicateGuard) Forget(ctx context.Context, email, message string) error {
	return g.rdb.Del(ctx, duplicateKey(email, message)).Err()
}
