package repositories

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"
)

// UserRepository loads users together with the assignments an access context is built from
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, offset, limit int) ([]*models.User, int64, error)
	ListByBusinessUnit(ctx context.Context, businessUnitID uint, offset, limit int) ([]*models.User, int64, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// RefreshTokenRepository persists refresh token hashes for rotation and revocation
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, userID uint, now time.Time) (int64, error)
}
