package user

import (
	"context"

	"github.com/shopnest-api/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type Service interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
}

type service struct {
	repo userStore
}

func NewService(repo userStore) Service {
	return &service{repo: repo}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

// List returns one page of active users and the cursor for the next page,
// empty on the last page.
func (s *service) List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error) {
	switch {
	case limit < 1:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	return s.repo.ScanPage(ctx, int32(limit), cursor)
}
