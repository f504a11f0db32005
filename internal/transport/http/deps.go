package http

import (
	"context"

	"github.com/shopnest-api/internal/domain"
	jwtinfra "github.com/shopnest-api/internal/infrastructure/jwt"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	// ScanPage returns a page of enabled users and the cursor for the next one.
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
}

// SessionRepository is the minimal interface the router requires from a session store.
type SessionRepository interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Disable(ctx context.Context, sessionID string) error
	GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error)
	RotateRefreshToken(ctx context.Context, sessionID, newToken string, newExpiry int64) error
}

// TokenProvider signs and verifies bearer tokens.
type TokenProvider interface {
	Sign(userID, role, sessionID string) (string, error)
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}
