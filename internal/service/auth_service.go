package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/events"
	"github.com/spec-kit/grievance-portal/internal/notify"
	"github.com/spec-kit/grievance-portal/internal/registration"
	"github.com/spec-kit/grievance-portal/internal/repository"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

// AuthService coordinates the verified registration flow and login.
type AuthService struct {
	users      repository.UserRepository
	pending    *registration.Store
	resets     repository.PasswordResetRepository
	notifier   notify.Dispatcher
	dispatcher events.Dispatcher
	tokenMgr   *auth.TokenManager
	bcryptCost int
	resetTTL   time.Duration
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PendingStore      *registration.Store
	PasswordResetRepo repository.PasswordResetRepository
	Notifier          notify.Dispatcher
	Dispatcher        events.Dispatcher
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		pending:    deps.PendingStore,
		resets:     deps.PasswordResetRepo,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		resetTTL:   time.Duration(cfg.Auth.PasswordResetTTLMinutes) * time.Minute,
	}
}

// Register starts the email-verified signup flow: the account is held as a
// pending registration until the emailed code is confirmed. A repeat signup
// for the same address replaces the earlier attempt.
func (s *AuthService) Register(ctx context.Context, userID, email, password string) (registration.CreateResult, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return registration.CreateResult{}, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return registration.CreateResult{}, err
	}
	if _, err := s.users.GetByUserID(ctx, userID); err == nil {
		return registration.CreateResult{}, apperrors.NewConflict("user id already taken", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return registration.CreateResult{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return registration.CreateResult{}, err
	}
	return s.pending.Create(ctx, userID, email, hash)
}

// VerifyRegistration promotes a pending registration and logs the new user in.
func (s *AuthService) VerifyRegistration(ctx context.Context, email, code string) (*domain.User, string, time.Time, error) {
	user, err := s.pending.Verify(ctx, email, code)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventUserRegistered,
			ActorID:   user.ID,
			Timestamp: time.Now(),
			Payload:   events.UserRegisteredPayload{UserID: user.UserID, Role: user.Role},
		})
	}
	return user, token, exp, nil
}

// Login authenticates by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// RequestPasswordReset persists a reset token and emails it to the account.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (notify.DeliveryResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notify.DeliveryResult{}, apperrors.NewNotFound("account", map[string]any{"email": email})
		}
		return notify.DeliveryResult{}, err
	}

	token := &repository.PasswordResetToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return notify.DeliveryResult{}, err
	}

	return s.notifier.Send(ctx, user.Email, notify.TemplatePasswordReset, notify.Payload{
		"token":      token.Token,
		"expires_at": token.ExpiresAt.Format(time.RFC3339),
	})
}

// ConfirmPasswordReset validates the reset token and updates the password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	token, err := s.resets.GetByToken(ctx, tokenStr)
	if err != nil {
		return err
	}
	if token.UsedAt != nil || time.Now().After(token.ExpiresAt) {
		return apperrors.NewValidationError("token expired or used", nil)
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	return s.resets.MarkUsed(ctx, token.ID)
}

// ChangePassword verifies the current password before updating to a new hash.
func (s *AuthService) ChangePassword(ctx context.Context, user *domain.User, currentPassword, newPassword string) error {
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.users.Update(ctx, user)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
