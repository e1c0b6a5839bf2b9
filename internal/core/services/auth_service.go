package services

import (
	"context"
	"errors"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/jwt"
	"propdesk/internal/pkg/logger"
	"propdesk/internal/pkg/password"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// AuthService handles authentication business logic
type AuthService struct {
	userRepo         repositories.UserRepository
	refreshTokenRepo repositories.RefreshTokenRepository
	cfg              config.JWTConfig
	log              zerolog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repositories.UserRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
	cfg config.JWTConfig,
) *AuthService {
	return &AuthService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		cfg:              cfg,
		log:              logger.New("auth"),
	}
}

// LoginInput represents login input
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshInput represents refresh and logout input
type RefreshInput struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User         *models.UserResponse `json:"user"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
}

// AccessContextFor projects a user's assignments into the session access context
func AccessContextFor(user *models.User) *domain.AccessContext {
	ac := &domain.AccessContext{
		UserID:      user.ID,
		Username:    user.Username,
		Assignments: make([]domain.Assignment, 0, len(user.Assignments)),
	}
	for _, a := range user.Assignments {
		if a.Role == nil {
			continue
		}
		grant := domain.RoleGrant{
			ID:          a.Role.ID,
			Name:        a.Role.Name,
			Level:       a.Role.Level,
			Permissions: make([]domain.PermissionSet, 0, len(a.Role.Permissions)),
		}
		for _, p := range a.Role.Permissions {
			grant.Permissions = append(grant.Permissions, domain.PermissionSet{
				Module:     domain.Module(p.Module),
				CanCreate:  p.CanCreate,
				CanRead:    p.CanRead,
				CanUpdate:  p.CanUpdate,
				CanDelete:  p.CanDelete,
				CanApprove: p.CanApprove,
			})
		}
		ac.Assignments = append(ac.Assignments, domain.Assignment{
			BusinessUnitID: a.BusinessUnitID,
			Role:           grant,
		})
	}
	return ac
}

// Login authenticates a user
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*AuthResponse, error) {
	// 1. Find user by username
	user, err := s.userRepo.GetByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, internalError(s.log, "login", err)
	}

	// 2. Check if user is active
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}

	// 3. Verify password
	if !password.Verify(input.Password, user.Password) {
		return nil, domain.ErrInvalidCredentials
	}

	// 4. Issue and store tokens
	resp, err := s.issue(ctx, user)
	if err != nil {
		return nil, internalError(s.log, "login", err)
	}

	s.log.Info().Str("username", user.Username).Int("assignments", len(user.Assignments)).Msg("user logged in")
	return resp, nil
}

// RefreshToken rotates a refresh token and issues a fresh access token
// carrying the user's current assignments
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	// 1. Validate refresh token JWT
	claims, err := jwt.ValidateRefreshToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}

	// 2. Find the stored token by hash
	tokenHash := password.HashToken(refreshToken)
	storedToken, err := s.refreshTokenRepo.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, internalError(s.log, "refresh token", err)
	}

	// 3. Check revoked and expired
	if storedToken.IsRevoked() {
		return nil, domain.ErrTokenRevoked
	}
	if storedToken.IsExpired() {
		return nil, domain.ErrTokenExpired
	}

	// 4. Load user with assignments
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, internalError(s.log, "refresh token", notFoundOr(err, domain.ErrUserNotFound))
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}

	// 5. Revoke old refresh token (rotation). Losing the race to a concurrent
	// refresh of the same token counts as reuse.
	revoked, err := s.refreshTokenRepo.Revoke(ctx, tokenHash, time.Now())
	if err != nil {
		return nil, internalError(s.log, "refresh token", err)
	}
	if !revoked {
		return nil, domain.ErrTokenRevoked
	}

	// 6. Issue and store new tokens
	resp, err := s.issue(ctx, user)
	if err != nil {
		return nil, internalError(s.log, "refresh token", err)
	}

	s.log.Debug().Str("username", user.Username).Msg("token refreshed")
	return resp, nil
}

// Logout revokes the refresh token
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if _, err := s.refreshTokenRepo.Revoke(ctx, password.HashToken(refreshToken), time.Now()); err != nil {
		return internalError(s.log, "logout", err)
	}
	return nil
}

// LogoutAll revokes all refresh tokens for a user
func (s *AuthService) LogoutAll(ctx context.Context, userID uint) error {
	n, err := s.refreshTokenRepo.RevokeAllForUser(ctx, userID, time.Now())
	if err != nil {
		return internalError(s.log, "logout all", err)
	}

	s.log.Info().Uint("user_id", userID).Int64("sessions", n).Msg("all sessions revoked")
	return nil
}

// ValidateAccessToken validates an access token
func (s *AuthService) ValidateAccessToken(accessToken string) (*jwt.Claims, error) {
	return jwt.ValidateAccessToken(accessToken, s.cfg.Secret)
}

// Me returns the caller's profile with current assignments
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, internalError(s.log, "me", notFoundOr(err, domain.ErrUserNotFound))
	}
	return user.ToResponse(), nil
}

// issue generates a token pair for user and stores the refresh token hash
func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResponse, error) {
	tokens, err := s.generateTokens(user)
	if err != nil {
		return nil, err
	}
	if err := s.storeRefreshToken(ctx, user.ID, tokens.RefreshToken); err != nil {
		return nil, err
	}
	return &AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

// generateTokens generates access and refresh tokens
func (s *AuthService) generateTokens(user *models.User) (*TokenPair, error) {
	accessToken, err := jwt.GenerateAccessToken(AccessContextFor(user), s.cfg.Secret, s.cfg.AccessTokenMins)
	if err != nil {
		return nil, err
	}

	refreshToken, err := jwt.GenerateRefreshToken(user.ID, uuid.New().String(), s.cfg.RefreshSecret, s.cfg.RefreshTokenDays)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// storeRefreshToken stores a refresh token in the database
func (s *AuthService) storeRefreshToken(ctx context.Context, userID uint, refreshToken string) error {
	token := &models.RefreshToken{
		UserID:    userID,
		TokenHash: password.HashToken(refreshToken),
		ExpiresAt: jwt.GetExpiryTime(s.cfg.RefreshTokenDays),
	}
	return s.refreshTokenRepo.Create(ctx, token)
}
