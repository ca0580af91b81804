package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/events"
	"github.com/spec-kit/grievance-portal/internal/notify"
	"github.com/spec-kit/grievance-portal/internal/observability"
	"github.com/spec-kit/grievance-portal/internal/repository"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

const adminAddress = "dsw@university.edu"

type grievanceRepoFake struct {
	mu   sync.Mutex
	byID map[string]*domain.Grievance
	seq  int
	now  func() time.Time
}

func newGrievanceRepoFake(now func() time.Time) *grievanceRepoFake {
	return &grievanceRepoFake{byID: make(map[string]*domain.Grievance), now: now}
}

func (f *grievanceRepoFake) Create(_ context.Context, g *domain.Grievance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	g.ID = fmt.Sprintf("g-%d", f.seq)
	g.CreatedAt = f.now()
	g.UpdatedAt = f.now()
	clone := *g
	f.byID[g.ID] = &clone
	return nil
}

func (f *grievanceRepoFake) Update(_ context.Context, g *domain.Grievance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[g.ID]; !ok {
		return pgx.ErrNoRows
	}
	g.UpdatedAt = f.now()
	clone := *g
	f.byID[g.ID] = &clone
	return nil
}

func (f *grievanceRepoFake) GetByID(_ context.Context, id string) (*domain.Grievance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *g
	return &clone, nil
}

func (f *grievanceRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.byID, id)
	return nil
}

func (f *grievanceRepoFake) ListWithFilter(_ context.Context, filter repository.GrievanceFilter) ([]domain.Grievance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Grievance
	for _, g := range f.byID {
		if filter.UserID != nil && g.UserID != *filter.UserID {
			continue
		}
		out = append(out, *g)
	}
	return out, nil
}

// ClaimReminder mirrors the conditional UPDATE: the check and the write hold
// one lock, so concurrent claims cannot both succeed.
func (f *grievanceRepoFake) ClaimReminder(_ context.Context, id string, now, next time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	if g.Status.IsTerminal() {
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
	g.UpdatedAt = now
	return true, nil
}

type responseRepoFake struct {
	mu        sync.Mutex
	responses []domain.Response
	seq       int
}

func (f *responseRepoFake) Create(_ context.Context, r *domain.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r.ID = fmt.Sprintf("r-%d", f.seq)
	r.CreatedAt = time.Now()
	f.responses = append(f.responses, *r)
	return nil
}

func (f *responseRepoFake) ListByGrievance(_ context.Context, grievanceID string) ([]domain.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Response
	for _, r := range f.responses {
		if r.GrievanceID == grievanceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *responseRepoFake) DeleteByGrievance(_ context.Context, grievanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.responses[:0]
	for _, r := range f.responses {
		if r.GrievanceID != grievanceID {
			kept = append(kept, r)
		}
	}
	f.responses = kept
	return nil
}

type userRepoFake struct {
	byID map[string]*domain.User
}

func (f *userRepoFake) Create(_ context.Context, u *domain.User) error {
	f.byID[u.ID] = u
	return nil
}

func (f *userRepoFake) Update(_ context.Context, u *domain.User) error {
	f.byID[u.ID] = u
	return nil
}

func (f *userRepoFake) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (f *userRepoFake) GetByUserID(_ context.Context, userID string) (*domain.User, error) {
	for _, u := range f.byID {
		if u.UserID == userID {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *userRepoFake) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type sentNotification struct {
	Recipient string
	Template  notify.Template
	Payload   notify.Payload
}

type notifierFake struct {
	mu        sync.Mutex
	delivered bool
	sent      []sentNotification
}

func (f *notifierFake) Send(_ context.Context, recipient string, template notify.Template, payload notify.Payload) (notify.DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{Recipient: recipient, Template: template, Payload: payload})
	if !f.delivered {
		return notify.DeliveryResult{Delivered: false, Attempts: 3, Reason: "relay unavailable"}, nil
	}
	return notify.DeliveryResult{Delivered: true, Attempts: 1}, nil
}

type grievanceFixture struct {
	svc       *GrievanceService
	repo      *grievanceRepoFake
	responses *responseRepoFake
	users     *userRepoFake
	notifier  *notifierFake
	now       *time.Time
	student   *domain.User
	staff     *domain.User
}

func newGrievanceFixture(t *testing.T) *grievanceFixture {
	t.Helper()
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := &current
	clock := func() time.Time { return *now }

	student := &domain.User{ID: "u-1", UserID: "stu42", Email: "stu42@university.edu", Role: domain.RoleStudent}
	staff := &domain.User{ID: "u-2", UserID: "dsw01", Email: "dsw01@university.edu", Role: domain.RoleDSW}

	repo := newGrievanceRepoFake(clock)
	responses := &responseRepoFake{}
	users := &userRepoFake{byID: map[string]*domain.User{student.ID: student, staff.ID: staff}}
	notifier := &notifierFake{delivered: true}

	svc := NewGrievanceService(GrievanceDependencies{
		GrievanceRepo: repo,
		ResponseRepo:  responses,
		UserRepo:      users,
		Notifier:      notifier,
		Dispatcher:    events.NewInMemoryDispatcher(),
		AdminAddress:  adminAddress,
		Logger:        zap.NewNop(),
		Metrics:       observability.NewMetrics(),
	})
	svc.now = clock

	return &grievanceFixture{
		svc:       svc,
		repo:      repo,
		responses: responses,
		users:     users,
		notifier:  notifier,
		now:       now,
		student:   student,
		staff:     staff,
	}
}

func (fx *grievanceFixture) submit(t *testing.T) *domain.Grievance {
	t.Helper()
	result, err := fx.svc.Submit(context.Background(), fx.student, SubmitInput{
		Title:       "Hostel water supply",
		Description: strings.Repeat("x", domain.MinDescriptionLength),
		Category:    domain.CategoryInfrastructure,
	})
	require.NoError(t, err)
	return result.Grievance
}

func TestSubmitDescriptionBoundary(t *testing.T) {
	fx := newGrievanceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Submit(ctx, fx.student, SubmitInput{
		Title:       "Hostel water supply",
		Description: strings.Repeat("x", 49),
		Category:    domain.CategoryInfrastructure,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	result, err := fx.svc.Submit(ctx, fx.student, SubmitInput{
		Title:       "Hostel water supply",
		Description: strings.Repeat("x", 50),
		Category:    domain.CategoryInfrastructure,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, result.Grievance.Status)
	assert.Empty(t, result.Warning)

	require.Len(t, fx.notifier.sent, 1)
	assert.Equal(t, fx.student.Email, fx.notifier.sent[0].Recipient)
	assert.Equal(t, notify.TemplateGrievanceConfirmation, fx.notifier.sent[0].Template)
}

func TestSubmitSucceedsWithWarningWhenConfirmationUndelivered(t *testing.T) {
	fx := newGrievanceFixture(t)
	fx.notifier.delivered = false

	result, err := fx.svc.Submit(context.Background(), fx.student, SubmitInput{
		Title:       "Mess food quality",
		Description: strings.Repeat("x", 60),
		Category:    domain.CategoryOther,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, result.Grievance.Status)
	assert.NotEmpty(t, result.Warning)

	stored, err := fx.repo.GetByID(context.Background(), result.Grievance.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	fx := newGrievanceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Submit(ctx, fx.student, SubmitInput{
		Title:       "  ",
		Description: strings.Repeat("x", 60),
		Category:    domain.CategoryAcademic,
	})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = fx.svc.Submit(ctx, fx.student, SubmitInput{
		Title:       "Valid title",
		Description: strings.Repeat("x", 60),
		Category:    domain.GrievanceCategory("COSMIC"),
	})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestRequestReminderAdvancesPendingAndSetsCooldown(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)

	ack, err := fx.svc.RequestReminder(context.Background(), g.ID, fx.student)
	require.NoError(t, err)
	assert.True(t, ack.Delivered)
	assert.Nil(t, ack.Fallback)
	assert.Equal(t, domain.StatusUnderReview, ack.Status)
	assert.Equal(t, fx.now.Add(domain.ReminderCooldown), ack.RemindAfter)

	stored, err := fx.repo.GetByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderReview, stored.Status)
	require.NotNil(t, stored.RemindAfter)

	// The reminder goes to the administrative address.
	last := fx.notifier.sent[len(fx.notifier.sent)-1]
	assert.Equal(t, adminAddress, last.Recipient)
	assert.Equal(t, notify.TemplateReminder, last.Template)
}

func TestRequestReminderWithinCooldownRejected(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)
	ctx := context.Background()

	_, err := fx.svc.RequestReminder(ctx, g.ID, fx.student)
	require.NoError(t, err)

	*fx.now = fx.now.Add(30 * time.Minute)
	_, err = fx.svc.RequestReminder(ctx, g.ID, fx.student)
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "COOLDOWN_ACTIVE", domainErr.Code)
	hours, ok := domainErr.Details["hours_remaining"].(int)
	require.True(t, ok)
	assert.Greater(t, hours, 0)
	assert.LessOrEqual(t, hours, 48)
}

func TestRequestReminderAfterCooldownLapses(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)
	ctx := context.Background()

	first, err := fx.svc.RequestReminder(ctx, g.ID, fx.student)
	require.NoError(t, err)

	*fx.now = first.RemindAfter
	second, err := fx.svc.RequestReminder(ctx, g.ID, fx.student)
	require.NoError(t, err)
	assert.Equal(t, fx.now.Add(domain.ReminderCooldown), second.RemindAfter)
}

func TestRequestReminderTerminalGrievance(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)
	ctx := context.Background()

	_, err := fx.svc.SetStatus(ctx, g.ID, domain.StatusResolved, fx.staff)
	require.NoError(t, err)

	_, err = fx.svc.RequestReminder(ctx, g.ID, fx.student)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "TERMINAL_STATE"))
}

func TestRequestReminderAcksWithFallbackOnDeliveryFailure(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)
	fx.notifier.delivered = false

	ack, err := fx.svc.RequestReminder(context.Background(), g.ID, fx.student)
	require.NoError(t, err)
	assert.False(t, ack.Delivered)
	require.NotNil(t, ack.Fallback)
	assert.Equal(t, adminAddress, ack.Fallback.To)
	assert.Contains(t, ack.Fallback.Body, g.Title)

	// The state change is committed despite the failed delivery.
	stored, err := fx.repo.GetByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderReview, stored.Status)
	require.NotNil(t, stored.RemindAfter)
}

func TestRequestReminderForeignGrievance(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)

	intruder := &domain.User{ID: "u-9", UserID: "stu99", Email: "stu99@university.edu", Role: domain.RoleStudent}
	_, err := fx.svc.RequestReminder(context.Background(), g.ID, intruder)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestConcurrentRemindersClaimOnlyOnce(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = fx.svc.RequestReminder(ctx, g.ID, fx.student)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperrors.IsCode(err, "COOLDOWN_ACTIVE"))
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestSetStatusDirectResolveFromPending(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)

	updated, err := fx.svc.SetStatus(context.Background(), g.ID, domain.StatusResolved, fx.staff)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, updated.Status)
}

func TestSetStatusTerminalAbsorbs(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)
	ctx := context.Background()

	_, err := fx.svc.SetStatus(ctx, g.ID, domain.StatusRejected, fx.staff)
	require.NoError(t, err)

	for _, next := range []domain.GrievanceStatus{domain.StatusPending, domain.StatusInProgress, domain.StatusResolved} {
		_, err = fx.svc.SetStatus(ctx, g.ID, next, fx.staff)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "TERMINAL_STATE"))
	}
}

func TestSetStatusRequiresStaff(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)

	_, err := fx.svc.SetStatus(context.Background(), g.ID, domain.StatusResolved, fx.student)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestAssignSetsAssigneeAndStatus(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)

	updated, err := fx.svc.Assign(context.Background(), g.ID, fx.staff.ID, fx.staff)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, fx.staff.ID, *updated.AssignedTo)
	assert.Equal(t, domain.StatusInProgress, updated.Status)
}

func TestAddResponseNotifiesOwner(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)

	response, err := fx.svc.AddResponse(context.Background(), g.ID, fx.staff, "We are looking into it.")
	require.NoError(t, err)
	assert.Equal(t, fx.staff.ID, response.AdminID)

	last := fx.notifier.sent[len(fx.notifier.sent)-1]
	assert.Equal(t, fx.student.Email, last.Recipient)
	assert.Equal(t, notify.TemplateResponseNotice, last.Template)
}

func TestDeleteOwnerOnlyRemovesResponses(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)
	ctx := context.Background()

	_, err := fx.svc.AddResponse(ctx, g.ID, fx.staff, "Noted.")
	require.NoError(t, err)

	err = fx.svc.Delete(ctx, g.ID, fx.staff)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	require.NoError(t, fx.svc.Delete(ctx, g.ID, fx.student))
	_, err = fx.repo.GetByID(ctx, g.ID)
	require.Error(t, err)

	remaining, err := fx.responses.ListByGrievance(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestFeedbackOnlyAfterConclusion(t *testing.T) {
	fx := newGrievanceFixture(t)
	g := fx.submit(t)
	ctx := context.Background()

	_, err := fx.svc.SetFeedback(ctx, g.ID, fx.student, "thanks")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = fx.svc.SetStatus(ctx, g.ID, domain.StatusResolved, fx.staff)
	require.NoError(t, err)

	updated, err := fx.svc.SetFeedback(ctx, g.ID, fx.student, "resolved quickly, thanks")
	require.NoError(t, err)
	require.NotNil(t, updated.Feedback)
	assert.Equal(t, "resolved quickly, thanks", *updated.Feedback)
}

func TestListScopesStudentsToOwnGrievances(t *testing.T) {
	fx := newGrievanceFixture(t)
	fx.submit(t)

	other := &domain.User{ID: "u-3", UserID: "stu77", Email: "stu77@university.edu", Role: domain.RoleStudent}
	fx.users.byID[other.ID] = other
	_, err := fx.svc.Submit(context.Background(), other, SubmitInput{
		Title:       "Library hours",
		Description: strings.Repeat("y", 60),
		Category:    domain.CategoryAdministrative,
	})
	require.NoError(t, err)

	mine, err := fx.svc.List(context.Background(), fx.student, repository.GrievanceFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, fx.student.ID, mine[0].UserID)

	all, err := fx.svc.List(context.Background(), fx.staff, repository.GrievanceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
