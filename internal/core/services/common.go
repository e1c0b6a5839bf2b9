package services

import (
	"context"
	"errors"
	"strconv"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// internalError passes domain errors through and logs anything else before
// hiding it behind a generic internal error
func internalError(log zerolog.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	log.Error().Err(err).Str("op", op).Msg("operation failed")
	return domain.Internal(err)
}

// notFoundOr maps gorm.ErrRecordNotFound to notFound and leaves other errors alone
func notFoundOr(err, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

// isDuplicate reports a unique constraint violation
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// audit appends an audit entry through repo, which may be bound to a transaction
func audit(ctx context.Context, repo *repositories.AuditRepository, ac *domain.AccessContext, businessUnitID *uint,
	action, entityType, entityID string, oldValue, newValue interface{}) error {
	entry := &models.AuditLog{
		BusinessUnitID: businessUnitID,
		UserID:         ac.UserID,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		OldValue:       models.Snapshot(oldValue),
		NewValue:       models.Snapshot(newValue),
	}
	return repo.Create(ctx, entry)
}

func uintPtr(v uint) *uint {
	return &v
}
