package services

import (
	"context"
	"strings"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"
	"propdesk/internal/pkg/pagination"
	"propdesk/internal/pkg/password"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// User service errors
var (
	ErrOldPasswordWrong = domain.NewError(domain.KindValidation, "old password is incorrect")
	ErrWeakPassword     = domain.NewError(domain.KindValidation, "password must be at least 8 characters and contain a letter and a digit")
	ErrCannotDeleteSelf = domain.NewError(domain.KindValidation, "cannot delete your own account")
)

// UserService handles back-office user management. Users are created by
// administrators; there is no self registration.
type UserService struct {
	db             *gorm.DB
	userRepo       repositories.UserRepository
	assignmentRepo *repositories.AssignmentRepository
	roleRepo       *repositories.RoleRepository
	auditRepo      *repositories.AuditRepository
	log            zerolog.Logger
}

// NewUserService creates a new user service
func NewUserService(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	assignmentRepo *repositories.AssignmentRepository,
	roleRepo *repositories.RoleRepository,
	auditRepo *repositories.AuditRepository,
) *UserService {
	return &UserService{
		db:             db,
		userRepo:       userRepo,
		assignmentRepo: assignmentRepo,
		roleRepo:       roleRepo,
		auditRepo:      auditRepo,
		log:            logger.New("user"),
	}
}

// CreateUserInput represents admin user creation. The user is assigned RoleID
// in BusinessUnitID.
type CreateUserInput struct {
	BusinessUnitID uint   `json:"business_unit_id" validate:"required"`
	RoleID         uint   `json:"role_id" validate:"required"`
	Username       string `json:"username" validate:"required,min=3,max=50"`
	Email          string `json:"email" validate:"required,email"`
	FullName       string `json:"full_name" validate:"max=150"`
	Password       string `json:"password" validate:"required,min=8"`
}

// ListUsersInput represents list users input
type ListUsersInput struct {
	BusinessUnitID uint
	Page           int
	Limit          int
}

// UpdateUserInput represents update user input (for admin)
type UpdateUserInput struct {
	BusinessUnitID uint    `json:"business_unit_id" validate:"required"`
	Email          *string `json:"email" validate:"omitempty,email"`
	FullName       *string `json:"full_name" validate:"omitempty,max=150"`
	IsActive       *bool   `json:"is_active"`
}

// ChangePasswordInput represents change password input
type ChangePasswordInput struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type userSnapshot struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
}

func snapshotUser(u *models.User) userSnapshot {
	return userSnapshot{Username: u.Username, Email: u.Email, FullName: u.FullName, IsActive: u.IsActive}
}

// Create creates a user and its first assignment
func (s *UserService) Create(ctx context.Context, ac *domain.AccessContext, input *CreateUserInput) (*models.User, error) {
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleUserManagement, domain.ActionCreate); err != nil {
		return nil, err
	}
	if !password.ValidatePassword(input.Password) {
		return nil, ErrWeakPassword
	}

	username := strings.TrimSpace(input.Username)
	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, internalError(s.log, "check username", err)
	}
	if exists {
		return nil, domain.ErrUserAlreadyExists
	}
	exists, err = s.userRepo.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return nil, internalError(s.log, "check email", err)
	}
	if exists {
		return nil, domain.ErrUserAlreadyExists
	}

	if _, err := s.roleRepo.GetByID(ctx, input.RoleID); err != nil {
		return nil, internalError(s.log, "get role", notFoundOr(err, domain.ErrRoleNotFound))
	}

	hashed, err := password.Hash(input.Password)
	if err != nil {
		return nil, internalError(s.log, "hash password", err)
	}

	user := &models.User{
		Username: username,
		Email:    input.Email,
		FullName: input.FullName,
		Password: hashed,
		IsActive: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repositories.NewUserRepository(tx).Create(ctx, user); err != nil {
			if isDuplicate(err) {
				return domain.ErrUserAlreadyExists
			}
			return err
		}
		if err := s.assignmentRepo.WithTx(tx).Create(ctx, &models.UserAssignment{
			UserID:         user.ID,
			BusinessUnitID: input.BusinessUnitID,
			RoleID:         input.RoleID,
		}); err != nil {
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(input.BusinessUnitID),
			domain.AuditCreate, domain.AuditEntityUser, idString(user.ID), nil, snapshotUser(user))
	})
	if err != nil {
		return nil, internalError(s.log, "create user", err)
	}

	s.log.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("user created")
	return s.userRepo.GetByID(ctx, user.ID)
}

// List lists the users assigned to a business unit
func (s *UserService) List(ctx context.Context, ac *domain.AccessContext, input *ListUsersInput) ([]*models.User, int64, *pagination.Params, error) {
	params := pagination.New(input.Page, input.Limit)
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleUserManagement, domain.ActionRead); err != nil {
		return nil, 0, params, err
	}

	users, total, err := s.userRepo.ListByBusinessUnit(ctx, input.BusinessUnitID, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, params, internalError(s.log, "list users", err)
	}
	return users, total, params, nil
}

// Get gets a user visible in a business unit
func (s *UserService) Get(ctx context.Context, ac *domain.AccessContext, businessUnitID, id uint) (*models.User, error) {
	if err := ac.Authorize(businessUnitID, domain.ModuleUserManagement, domain.ActionRead); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "get user", notFoundOr(err, domain.ErrUserNotFound))
	}
	return user, nil
}

// Update updates a user by admin
func (s *UserService) Update(ctx context.Context, ac *domain.AccessContext, id uint, input *UpdateUserInput) (*models.User, error) {
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleUserManagement, domain.ActionUpdate); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "get user", notFoundOr(err, domain.ErrUserNotFound))
	}
	before := snapshotUser(user)

	if input.Email != nil && *input.Email != user.Email {
		exists, err := s.userRepo.ExistsByEmail(ctx, *input.Email)
		if err != nil {
			return nil, internalError(s.log, "check email", err)
		}
		if exists {
			return nil, domain.ErrUserAlreadyExists
		}
		user.Email = *input.Email
	}
	if input.FullName != nil {
		user.FullName = *input.FullName
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repositories.NewUserRepository(tx).Update(ctx, user); err != nil {
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(input.BusinessUnitID),
			domain.AuditUpdate, domain.AuditEntityUser, idString(user.ID), before, snapshotUser(user))
	})
	if err != nil {
		return nil, internalError(s.log, "update user", err)
	}
	return user, nil
}

// Delete soft deletes a user
func (s *UserService) Delete(ctx context.Context, ac *domain.AccessContext, businessUnitID, id uint) error {
	if err := ac.Authorize(businessUnitID, domain.ModuleUserManagement, domain.ActionDelete); err != nil {
		return err
	}
	if id == ac.UserID {
		return ErrCannotDeleteSelf
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return internalError(s.log, "get user", notFoundOr(err, domain.ErrUserNotFound))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repositories.NewUserRepository(tx).Delete(ctx, id); err != nil {
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(businessUnitID),
			domain.AuditDelete, domain.AuditEntityUser, idString(id), snapshotUser(user), nil)
	})
	if err != nil {
		return internalError(s.log, "delete user", err)
	}
	return nil
}

// ChangePassword changes the caller's own password
func (s *UserService) ChangePassword(ctx context.Context, userID uint, input *ChangePasswordInput) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return internalError(s.log, "get user", notFoundOr(err, domain.ErrUserNotFound))
	}

	if !password.Verify(input.OldPassword, user.Password) {
		return ErrOldPasswordWrong
	}
	if !password.ValidatePassword(input.NewPassword) {
		return ErrWeakPassword
	}

	hashed, err := password.Hash(input.NewPassword)
	if err != nil {
		return internalError(s.log, "hash password", err)
	}

	user.Password = hashed
	if err := s.userRepo.Update(ctx, user); err != nil {
		return internalError(s.log, "change password", err)
	}
	return nil
}
