package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/grievance-portal/internal/api/http"
	"github.com/spec-kit/grievance-portal/internal/api/http/handlers"
	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/notify"
	"github.com/spec-kit/grievance-portal/internal/observability"
	"github.com/spec-kit/grievance-portal/internal/registration"
	"github.com/spec-kit/grievance-portal/internal/repository"
	"github.com/spec-kit/grievance-portal/internal/service"
)

type memGrievanceRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Grievance
	seq  int
}

func (f *memGrievanceRepo) Create(_ context.Context, g *domain.Grievance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	g.ID = fmt.Sprintf("g-%d", f.seq)
	g.CreatedAt = time.Now()
	g.UpdatedAt = g.CreatedAt
	clone := *g
	f.byID[g.ID] = &clone
	return nil
}

func (f *memGrievanceRepo) Update(_ context.Context, g *domain.Grievance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[g.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *g
	f.byID[g.ID] = &clone
	return nil
}

func (f *memGrievanceRepo) GetByID(_ context.Context, id string) (*domain.Grievance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *g
	return &clone, nil
}

func (f *memGrievanceRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *memGrievanceRepo) ListWithFilter(_ context.Context, _ repository.GrievanceFilter) ([]domain.Grievance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Grievance
	for _, g := range f.byID {
		out = append(out, *g)
	}
	return out, nil
}

func (f *memGrievanceRepo) ClaimReminder(_ context.Context, id string, now, next time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.byID[id]
	if !ok || g.Status.IsTerminal() {
		return false, nil
	}
	if g.RemindAfter != nil && g.RemindAfter.After(now) {
		return false, nil
	}
	claimed := next
	g.RemindAfter = &claimed
	if g.Status == domain.StatusPending {
		g.Status = domain.StatusUnderReview
	}
	return true, nil
}

type memResponseRepo struct{}

func (memResponseRepo) Create(_ context.Context, r *domain.Response) error {
	r.ID = "r-1"
	return nil
}

func (memResponseRepo) ListByGrievance(context.Context, string) ([]domain.Response, error) {
	return nil, nil
}

func (memResponseRepo) DeleteByGrievance(context.Context, string) error { return nil }

type memUserRepo struct {
	byID map[string]*domain.User
}

func (f *memUserRepo) Create(_ context.Context, u *domain.User) error {
	f.byID[u.ID] = u
	return nil
}

func (f *memUserRepo) Update(_ context.Context, u *domain.User) error {
	f.byID[u.ID] = u
	return nil
}

func (f *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (f *memUserRepo) GetByUserID(context.Context, string) (*domain.User, error) {
	return nil, pgx.ErrNoRows
}

func (f *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memResetRepo struct {
	byToken map[string]*repository.PasswordResetToken
	seq     int
}

func (f *memResetRepo) Create(_ context.Context, token *repository.PasswordResetToken) error {
	f.seq++
	token.ID = fmt.Sprintf("pr-%d", f.seq)
	token.CreatedAt = time.Now()
	f.byToken[token.Token] = token
	return nil
}

func (f *memResetRepo) GetByToken(_ context.Context, tokenStr string) (*repository.PasswordResetToken, error) {
	token, ok := f.byToken[tokenStr]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return token, nil
}

func (f *memResetRepo) MarkUsed(_ context.Context, id string) error {
	for _, token := range f.byToken {
		if token.ID == id {
			now := time.Now()
			token.UsedAt = &now
		}
	}
	return nil
}

type memKVBackend struct {
	values map[string][]byte
}

func (b *memKVBackend) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.values[key] = value
	return nil
}

func (b *memKVBackend) Get(_ context.Context, key string) ([]byte, error) {
	raw, ok := b.values[key]
	if !ok {
		return nil, registration.ErrNoRecord
	}
	return raw, nil
}

func (b *memKVBackend) Del(_ context.Context, key string) error {
	delete(b.values, key)
	return nil
}

type memInboxRepo struct {
	mu   sync.Mutex
	msgs []*domain.CorrespondenceMessage
	seq  int
}

func (f *memInboxRepo) Create(_ context.Context, msg *domain.CorrespondenceMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	msg.ID = fmt.Sprintf("m-%d", f.seq)
	clone := *msg
	f.msgs = append(f.msgs, &clone)
	return nil
}

func (f *memInboxRepo) Update(_ context.Context, msg *domain.CorrespondenceMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.msgs {
		if existing.ID == msg.ID {
			clone := *msg
			f.msgs[i] = &clone
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *memInboxRepo) GetByID(_ context.Context, id string) (*domain.CorrespondenceMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.msgs {
		if msg.ID == id {
			clone := *msg
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *memInboxRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, msg := range f.msgs {
		if msg.ID == id {
			f.msgs = append(f.msgs[:i], f.msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *memInboxRepo) ListWithFilter(_ context.Context, filter repository.InboxFilter) ([]domain.CorrespondenceMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CorrespondenceMessage
	for _, msg := range f.msgs {
		if filter.UnreadOnly && msg.Read {
			continue
		}
		if filter.StarredOnly && !msg.Starred {
			continue
		}
		if filter.SentFrom != nil && msg.SentAt.Before(*filter.SentFrom) {
			continue
		}
		if filter.SentTo != nil && msg.SentAt.After(*filter.SentTo) {
			continue
		}
		if filter.LinkedGrievanceID != nil &&
			(msg.LinkedGrievanceID == nil || *msg.LinkedGrievanceID != *filter.LinkedGrievanceID) {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

type okNotifier struct{}

func (okNotifier) Send(context.Context, string, notify.Template, notify.Payload) (notify.DeliveryResult, error) {
	return notify.DeliveryResult{Delivered: true, Attempts: 1}, nil
}

type testApp struct {
	app          *fiber.App
	studentToken string
	staffToken   string
	inbox        *memInboxRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	student := &domain.User{ID: "u-1", UserID: "stu42", Email: "stu42@university.edu", Role: domain.RoleStudent}
	staff := &domain.User{ID: "u-2", UserID: "clerk1", Email: "clerk@university.edu", Role: domain.RoleClerk}
	users := &memUserRepo{byID: map[string]*domain.User{student.ID: student, staff.ID: staff}}

	grievances := service.NewGrievanceService(service.GrievanceDependencies{
		GrievanceRepo: &memGrievanceRepo{byID: make(map[string]*domain.Grievance)},
		ResponseRepo:  memResponseRepo{},
		UserRepo:      users,
		Notifier:      okNotifier{},
		AdminAddress:  "dsw@university.edu",
		Logger:        zap.NewNop(),
		Metrics:       observability.NewMetrics(),
	})

	inbox := &memInboxRepo{}
	correspondence := service.NewCorrespondenceService(service.CorrespondenceDependencies{
		InboxRepo:    inbox,
		GrievanceSvc: grievances,
		Notifier:     okNotifier{},
		SelfAddress:  "grievance-cell@university.edu",
		Logger:       zap.NewNop(),
	})

	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:               "test-secret",
		AccessTokenTTLMinutes:   60,
		PasswordResetTTLMinutes: 30,
		BcryptCost:              4,
	}}
	pending := registration.NewStore(&memKVBackend{values: make(map[string][]byte)}, users, okNotifier{}, zap.NewNop())
	authSvc := service.NewAuthService(cfg, service.AuthDependencies{
		UserRepo:          users,
		PendingStore:      pending,
		PasswordResetRepo: &memResetRepo{byToken: make(map[string]*repository.PasswordResetToken)},
		Notifier:          okNotifier{},
	})

	tokens := authSvc.TokenManager()
	studentToken, _, err := tokens.GenerateToken(student.ID, student.Role)
	require.NoError(t, err)
	staffToken, _, err := tokens.GenerateToken(staff.ID, staff.Role)
	require.NoError(t, err)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("test", "dev", nil, nil),
		Auth:           handlers.NewAuthHandler(authSvc, "university.edu"),
		Grievances:     handlers.NewGrievancesHandler(grievances),
		Inbox:          handlers.NewInboxHandler(correspondence),
		Attachments:    handlers.NewAttachmentsHandler(nil),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, users),
	})
	return &testApp{app: app, studentToken: studentToken, staffToken: staffToken, inbox: inbox}
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestSubmitValidationOverHTTP(t *testing.T) {
	tc := newTestApp(t)

	resp, body := doJSON(t, tc.app, http.MethodPost, "/api/v1/grievances", tc.studentToken, fiber.Map{
		"title":       "Hostel water supply",
		"description": "too short",
		"category":    "INFRASTRUCTURE",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_FAILED", errBody["code"])

	resp, body = doJSON(t, tc.app, http.MethodPost, "/api/v1/grievances", tc.studentToken, fiber.Map{
		"title":       "Hostel water supply",
		"description": strings.Repeat("x", 60),
		"category":    "INFRASTRUCTURE",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	grievance, ok := data["grievance"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PENDING", grievance["status"])
}

func TestReminderCooldownOverHTTP(t *testing.T) {
	tc := newTestApp(t)

	_, body := doJSON(t, tc.app, http.MethodPost, "/api/v1/grievances", tc.studentToken, fiber.Map{
		"title":       "Mess food quality",
		"description": strings.Repeat("x", 60),
		"category":    "OTHER",
	})
	grievanceID := body["data"].(map[string]any)["grievance"].(map[string]any)["id"].(string)

	resp, body := doJSON(t, tc.app, http.MethodPost, "/api/v1/grievances/"+grievanceID+"/reminder", tc.studentToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	ack := body["data"].(map[string]any)
	assert.Equal(t, true, ack["delivered"])
	assert.Equal(t, "UNDER_REVIEW", ack["status"])

	resp, body = doJSON(t, tc.app, http.MethodPost, "/api/v1/grievances/"+grievanceID+"/reminder", tc.studentToken, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "COOLDOWN_ACTIVE", errBody["code"])
	details := errBody["details"].(map[string]any)
	assert.Equal(t, float64(48), details["hours_remaining"])
}

func TestAuthRequiredOverHTTP(t *testing.T) {
	tc := newTestApp(t)

	resp, body := doJSON(t, tc.app, http.MethodGet, "/api/v1/grievances", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "UNAUTHORIZED", errBody["code"])
}

func TestStaffGuardOverHTTP(t *testing.T) {
	tc := newTestApp(t)

	resp, body := doJSON(t, tc.app, http.MethodPatch, "/api/v1/grievances/g-1/status", tc.studentToken, fiber.Map{
		"status": "RESOLVED",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "FORBIDDEN", errBody["code"])
}

func TestPasswordResetUniformForUnknownAddress(t *testing.T) {
	tc := newTestApp(t)

	known, knownBody := doJSON(t, tc.app, http.MethodPost, "/api/v1/auth/password/reset/request", "", fiber.Map{
		"email": "stu42@university.edu",
	})
	unknown, unknownBody := doJSON(t, tc.app, http.MethodPost, "/api/v1/auth/password/reset/request", "", fiber.Map{
		"email": "nobody@university.edu",
	})

	// The response must not reveal whether the address has an account.
	assert.Equal(t, http.StatusAccepted, known.StatusCode)
	assert.Equal(t, http.StatusAccepted, unknown.StatusCode)
	assert.Equal(t, knownBody, unknownBody)
}

func TestInboxDateRangeOverHTTP(t *testing.T) {
	tc := newTestApp(t)

	for i, sentAt := range []time.Time{
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
	} {
		require.NoError(t, tc.inbox.Create(context.Background(), &domain.CorrespondenceMessage{
			Subject: fmt.Sprintf("Complaint %d", i+1),
			From:    "parent@example.com",
			To:      []string{"grievance-cell@university.edu"},
			SentAt:  sentAt,
		}))
	}

	resp, body := doJSON(t, tc.app, http.MethodGet,
		"/api/v1/inbox/messages?from=2026-03-02T00:00:00Z&to=2026-03-08T00:00:00Z", tc.staffToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "Complaint 2", data[0].(map[string]any)["subject"])

	resp, body = doJSON(t, tc.app, http.MethodGet,
		"/api/v1/inbox/messages?from=yesterday", tc.staffToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", errBody["code"])
}

func TestHealthLive(t *testing.T) {
	tc := newTestApp(t)

	resp, body := doJSON(t, tc.app, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alive", body["status"])
}
