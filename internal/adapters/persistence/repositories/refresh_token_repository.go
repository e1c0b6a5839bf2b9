package repositories

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// refreshTokenRepository stores hashed refresh tokens. Revoked rows are kept
// until they expire so that a replayed token can be told apart from an unknown one.
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// FindByHash returns the token row, revoked or not
func (r *refreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// Revoke marks a live token revoked. It reports false when the token was
// already revoked, so two concurrent rotations of one token cannot both win.
func (r *refreshTokenRepository) Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		Update("revoked_at", at)
	return res.RowsAffected > 0, res.Error
}

// RevokeAllForUser revokes every live token of a user and returns how many
func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at)
	return res.RowsAffected, res.Error
}

// DeleteExpired removes tokens that expired before now
func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

// CountActive counts the unrevoked, unexpired tokens of a user
func (r *refreshTokenRepository) CountActive(ctx context.Context, userID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Count(&count).Error
	return count, err
}
