package registration

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/notify"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

const keyPrefix = "pending_registration:"

// ErrNoRecord is returned by backends when a key is absent or expired.
var ErrNoRecord = errors.New("no pending registration")

// Backend is the keyed TTL storage under the store. Expiry is enforced
// server-side by the backend, so correctness never depends on process uptime.
type Backend interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
}

// UserCreator persists a promoted user.
type UserCreator interface {
	Create(ctx context.Context, user *domain.User) error
}

// CreateResult reports the generated code and its delivery outcome.
type CreateResult struct {
	Code     string
	Delivery notify.DeliveryResult
}

// Store holds unverified signups keyed by email address for a fixed TTL.
// Re-creating for the same address replaces the prior record and restarts the
// expiry window: only the latest signup attempt per address is completable.
type Store struct {
	backend    Backend
	users      UserCreator
	dispatcher notify.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewStore builds the store.
func NewStore(backend Backend, users UserCreator, dispatcher notify.Dispatcher, logger *zap.Logger) *Store {
	return &Store{
		backend:    backend,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Create records a pending registration and dispatches the verification code.
// A failed dispatch does not discard the record; the outcome is reported so
// the boundary can surface a warning.
func (s *Store) Create(ctx context.Context, userID, email, passwordHash string) (CreateResult, error) {
	code, err := generateCode()
	if err != nil {
		return CreateResult{}, err
	}

	record := domain.PendingRegistration{
		UserID:       userID,
		Email:        email,
		PasswordHash: passwordHash,
		Code:         code,
		CreatedAt:    s.now(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return CreateResult{}, err
	}
	if err := s.backend.Put(ctx, keyPrefix+email, raw, domain.PendingRegistrationTTL); err != nil {
		return CreateResult{}, err
	}

	delivery, err := s.dispatcher.Send(ctx, email, notify.TemplateVerificationCode, notify.Payload{
		"user_id": userID,
		"code":    code,
	})
	if err != nil {
		// The record is already stored; a rejected dispatch must not undo
		// the signup. Fold the error into the delivery outcome instead.
		delivery.Delivered = false
		if delivery.Reason == "" {
			delivery.Reason = err.Error()
		}
	}
	if !delivery.Delivered {
		s.logger.Warn("verification code delivery failed",
			zap.String("email", email),
			zap.String("reason", delivery.Reason))
	}
	return CreateResult{Code: code, Delivery: delivery}, nil
}

// Verify promotes a pending registration into a durable user. A wrong code
// leaves the record intact; a matching one consumes it atomically.
func (s *Store) Verify(ctx context.Context, email, code string) (*domain.User, error) {
	raw, err := s.backend.Get(ctx, keyPrefix+email)
	if errors.Is(err, ErrNoRecord) {
		return nil, apperrors.NewNotFound("pending registration", map[string]any{"email": email})
	}
	if err != nil {
		return nil, err
	}

	var record domain.PendingRegistration
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return nil, apperrors.NewCodeMismatch()
	}

	user := &domain.User{
		UserID:       record.UserID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Role:         domain.RoleStudent,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.backend.Del(ctx, keyPrefix+email); err != nil {
		s.logger.Warn("failed to discard consumed pending registration",
			zap.String("email", email), zap.Error(err))
	}
	return user, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
