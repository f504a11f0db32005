// Package otp issues and checks short-lived numeric verification codes.
//
// A Store holds at most one PendingVerification per identifier. Put replaces
// any previous entry, and Verify consumes the entry on success or when it has
// expired. A wrong code leaves the entry in place so the user can retry until
// the TTL runs out. Expiry is evaluated lazily on access; no sweeper runs.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopnest-api/internal/domain"
)

const (
	// CodeLength is the number of digits in a generated code.
	CodeLength = 6
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 10 * time.Minute
)

var codeSpace = big.NewInt(1_000_000)

// Generate returns a uniformly drawn 6-digit code, zero-padded so that
// 000000-999999 are all reachable.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Store persists pending verifications keyed by identifier.
//
// Verify returns domain.ErrCodeNotFound, domain.ErrCodeExpired or
// domain.ErrCodeMismatch for the three failure outcomes; any other error
// means the backing store itself failed.
type Store interface {
	Put(ctx context.Context, v *domain.PendingVerification) error
	Verify(ctx context.Context, identifier, code string) (*domain.PendingVerification, error)
	Peek(ctx context.Context, identifier string) (*domain.PendingVerification, error)
	Delete(ctx context.Context, identifier string) error
}

// Stamp sets CreatedAt, ExpiresAt and the TTL attribute on v.
func Stamp(v *domain.PendingVerification, now time.Time, ttl time.Duration) {
	v.CreatedAt = now
	v.ExpiresAt = now.Add(ttl)
	v.TTL = v.ExpiresAt.Unix()
}
