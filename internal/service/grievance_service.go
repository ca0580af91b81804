package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/events"
	"github.com/spec-kit/grievance-portal/internal/notify"
	"github.com/spec-kit/grievance-portal/internal/observability"
	"github.com/spec-kit/grievance-portal/internal/repository"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

// GrievanceService owns the grievance status lifecycle and the reminder
// cooldown clock.
type GrievanceService struct {
	grievances   repository.GrievanceRepository
	responses    repository.ResponseRepository
	users        repository.UserRepository
	notifier     notify.Dispatcher
	dispatcher   events.Dispatcher
	adminAddress string
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

// GrievanceDependencies bundles collaborators for the grievance service.
type GrievanceDependencies struct {
	GrievanceRepo repository.GrievanceRepository
	ResponseRepo  repository.ResponseRepository
	UserRepo      repository.UserRepository
	Notifier      notify.Dispatcher
	Dispatcher    events.Dispatcher
	AdminAddress  string
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// SubmitInput describes a grievance submission.
type SubmitInput struct {
	Title       string
	Description string
	Category    domain.GrievanceCategory
	Documents   []string
}

// SubmitResult carries the created grievance plus a secondary warning when the
// confirmation notification could not be delivered.
type SubmitResult struct {
	Grievance *domain.Grievance
	Warning   string
}

// ComposeFallback is a prefilled manual compose action offered when the
// automated reminder could not be delivered, so the user is never blocked
// from reaching the administrative address.
type ComposeFallback struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ReminderAck acknowledges an accepted reminder. The state change is committed
// even when delivery failed; Fallback is set only in that case.
type ReminderAck struct {
	GrievanceID string
	Status      domain.GrievanceStatus
	RemindAfter time.Time
	Delivered   bool
	Fallback    *ComposeFallback
}

// NewGrievanceService constructs the service.
func NewGrievanceService(deps GrievanceDependencies) *GrievanceService {
	return &GrievanceService{
		grievances:   deps.GrievanceRepo,
		responses:    deps.ResponseRepo,
		users:        deps.UserRepo,
		notifier:     deps.Notifier,
		dispatcher:   deps.Dispatcher,
		adminAddress: deps.AdminAddress,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		now:          time.Now,
	}
}

// Submit validates and records a new grievance in PENDING state, then makes a
// best-effort attempt to confirm by email. Delivery failure never fails the
// submission; it is surfaced as a warning.
func (s *GrievanceService) Submit(ctx context.Context, submitter *domain.User, input SubmitInput) (*SubmitResult, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	if utf8.RuneCountInString(input.Description) < domain.MinDescriptionLength {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("description must be at least %d characters", domain.MinDescriptionLength),
			map[string]any{"min_length": domain.MinDescriptionLength})
	}
	if !input.Category.IsValid() {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": string(input.Category)})
	}

	grievance := &domain.Grievance{
		UserID:      submitter.ID,
		Title:       title,
		Description: input.Description,
		Category:    input.Category,
		Status:      domain.StatusPending,
		Documents:   input.Documents,
	}
	if err := s.grievances.Create(ctx, grievance); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:        events.EventGrievanceSubmitted,
		GrievanceID: grievance.ID,
		ActorID:     submitter.ID,
		Payload: events.GrievanceSubmittedPayload{
			Title:    grievance.Title,
			Category: grievance.Category,
		},
	})

	result := &SubmitResult{Grievance: grievance}
	delivery, err := s.notifier.Send(ctx, submitter.Email, notify.TemplateGrievanceConfirmation, notify.Payload{
		"grievance_id": grievance.ID,
		"title":        grievance.Title,
		"category":     string(grievance.Category),
		"status":       string(grievance.Status),
		"submitted_at": grievance.CreatedAt.Format(time.RFC3339),
	})
	if err != nil || !delivery.Delivered {
		result.Warning = "grievance recorded, but the confirmation email could not be sent"
	}
	return result, nil
}

// RequestReminder nudges the administrative address about a grievance. The
// cooldown check and the new expiry are claimed atomically in the durable
// store, so two concurrent calls cannot both send. Once the claim succeeds
// the operation is committed: a failed delivery still acks, with a prefilled
// compose fallback.
func (s *GrievanceService) RequestReminder(ctx context.Context, grievanceID string, requester *domain.User) (*ReminderAck, error) {
	grievance, err := s.grievances.GetByID(ctx, grievanceID)
	if err != nil {
		return nil, err
	}
	if grievance.UserID != requester.ID && !requester.Role.IsStaff() {
		return nil, apperrors.NewForbidden("not your grievance")
	}
	if grievance.Status.IsTerminal() {
		return nil, apperrors.NewTerminalState(string(grievance.Status))
	}

	now := s.now()
	if permitted := grievance.ReminderPermittedAt(); now.Before(permitted) {
		s.metrics.RecordReminderOutcome("cooldown")
		return nil, apperrors.NewCooldownActive(ceilHours(permitted.Sub(now)))
	}

	next := now.Add(domain.ReminderCooldown)
	claimed, err := s.grievances.ClaimReminder(ctx, grievanceID, now, next)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost a race or the row changed underneath us; re-read to report why.
		fresh, err := s.grievances.GetByID(ctx, grievanceID)
		if err != nil {
			return nil, err
		}
		if fresh.Status.IsTerminal() {
			return nil, apperrors.NewTerminalState(string(fresh.Status))
		}
		s.metrics.RecordReminderOutcome("cooldown")
		remaining := domain.ReminderCooldown
		if fresh.RemindAfter != nil {
			remaining = fresh.RemindAfter.Sub(now)
		}
		return nil, apperrors.NewCooldownActive(ceilHours(remaining))
	}

	status := grievance.Status
	if status == domain.StatusPending {
		status = domain.StatusUnderReview
	}

	delivery, sendErr := s.notifier.Send(ctx, s.adminAddress, notify.TemplateReminder, notify.Payload{
		"grievance_id": grievance.ID,
		"title":        grievance.Title,
		"status":       string(status),
		"requester":    requester.UserID,
	})
	delivered := sendErr == nil && delivery.Delivered

	ack := &ReminderAck{
		GrievanceID: grievance.ID,
		Status:      status,
		RemindAfter: next,
		Delivered:   delivered,
	}
	if !delivered {
		ack.Fallback = &ComposeFallback{
			To:      s.adminAddress,
			Subject: fmt.Sprintf("Reminder: grievance %s awaits action", grievance.ID),
			Body: fmt.Sprintf("Dear administrator,\n\nThis is a reminder regarding my grievance %q (ID %s), currently %s. I would appreciate an update.\n\nRegards,\n%s\n",
				grievance.Title, grievance.ID, status, requester.UserID),
		}
		s.logger.Warn("reminder delivery failed, offering manual fallback",
			zap.String("grievance_id", grievance.ID))
	}

	s.metrics.RecordReminderOutcome("ack")
	s.publishEvent(ctx, events.Event{
		Type:        events.EventReminderRequested,
		GrievanceID: grievance.ID,
		ActorID:     requester.ID,
		Payload: events.ReminderRequestedPayload{
			Delivered:   delivered,
			RemindAfter: next,
		},
	})
	return ack, nil
}

// SetStatus moves a grievance to a new lifecycle state. Terminal grievances
// accept no transition.
func (s *GrievanceService) SetStatus(ctx context.Context, grievanceID string, newStatus domain.GrievanceStatus, actor *domain.User) (*domain.Grievance, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if !newStatus.IsValid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(newStatus)})
	}
	grievance, err := s.grievances.GetByID(ctx, grievanceID)
	if err != nil {
		return nil, err
	}
	if grievance.Status.IsTerminal() {
		return nil, apperrors.NewTerminalState(string(grievance.Status))
	}
	if !isValidTransition(grievance.Status, newStatus) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": string(grievance.Status),
			"to":   string(newStatus),
		})
	}

	oldStatus := grievance.Status
	grievance.Status = newStatus
	if err := s.grievances.Update(ctx, grievance); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:        events.EventGrievanceStatusChanged,
		GrievanceID: grievance.ID,
		ActorID:     actor.ID,
		Payload: events.StatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return grievance, nil
}

// Assign stores the assignee and moves the grievance to IN_PROGRESS.
func (s *GrievanceService) Assign(ctx context.Context, grievanceID, staffID string, actor *domain.User) (*domain.Grievance, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	grievance, err := s.grievances.GetByID(ctx, grievanceID)
	if err != nil {
		return nil, err
	}
	if grievance.Status.IsTerminal() {
		return nil, apperrors.NewTerminalState(string(grievance.Status))
	}

	grievance.AssignedTo = &staffID
	if grievance.Status != domain.StatusInProgress {
		grievance.Status = domain.StatusInProgress
	}
	if err := s.grievances.Update(ctx, grievance); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:        events.EventGrievanceAssigned,
		GrievanceID: grievance.ID,
		ActorID:     actor.ID,
		Payload:     events.AssignedPayload{AssignedTo: staffID},
	})
	return grievance, nil
}

// AddResponse appends an admin response and notifies the grievance owner.
func (s *GrievanceService) AddResponse(ctx context.Context, grievanceID string, admin *domain.User, text string) (*domain.Response, error) {
	if !admin.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("response text is required", nil)
	}
	grievance, err := s.grievances.GetByID(ctx, grievanceID)
	if err != nil {
		return nil, err
	}

	response := &domain.Response{
		GrievanceID: grievance.ID,
		AdminID:     admin.ID,
		Text:        strings.TrimSpace(text),
	}
	if err := s.responses.Create(ctx, response); err != nil {
		return nil, err
	}

	if owner, err := s.users.GetByID(ctx, grievance.UserID); err == nil {
		_, _ = s.notifier.Send(ctx, owner.Email, notify.TemplateResponseNotice, notify.Payload{
			"grievance_id": grievance.ID,
			"title":        grievance.Title,
			"response":     response.Text,
		})
	}

	s.publishEvent(ctx, events.Event{
		Type:        events.EventResponseAdded,
		GrievanceID: grievance.ID,
		ActorID:     admin.ID,
		Payload: events.ResponseAddedPayload{
			ResponseID: response.ID,
			AdminID:    admin.ID,
		},
	})
	return response, nil
}

// SetFeedback records the owner's feedback on a concluded grievance.
func (s *GrievanceService) SetFeedback(ctx context.Context, grievanceID string, owner *domain.User, feedback string) (*domain.Grievance, error) {
	grievance, err := s.grievances.GetByID(ctx, grievanceID)
	if err != nil {
		return nil, err
	}
	if grievance.UserID != owner.ID {
		return nil, apperrors.NewForbidden("not your grievance")
	}
	if !grievance.Status.IsTerminal() {
		return nil, apperrors.NewValidationError("feedback is accepted only after the grievance concludes", nil)
	}
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, apperrors.NewValidationError("feedback text is required", nil)
	}
	grievance.Feedback = &feedback
	if err := s.grievances.Update(ctx, grievance); err != nil {
		return nil, err
	}
	return grievance, nil
}

// Delete removes a grievance and its responses. Only the owner may delete.
func (s *GrievanceService) Delete(ctx context.Context, grievanceID string, requester *domain.User) error {
	grievance, err := s.grievances.GetByID(ctx, grievanceID)
	if err != nil {
		return err
	}
	if grievance.UserID != requester.ID {
		return apperrors.NewForbidden("only the owner may delete a grievance")
	}
	if err := s.responses.DeleteByGrievance(ctx, grievanceID); err != nil {
		return err
	}
	if err := s.grievances.Delete(ctx, grievanceID); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:        events.EventGrievanceDeleted,
		GrievanceID: grievanceID,
		ActorID:     requester.ID,
	})
	return nil
}

// Get fetches a grievance with its responses, enforcing access.
func (s *GrievanceService) Get(ctx context.Context, grievanceID string, actor *domain.User) (*domain.Grievance, []domain.Response, error) {
	grievance, err := s.grievances.GetByID(ctx, grievanceID)
	if err != nil {
		return nil, nil, err
	}
	if grievance.UserID != actor.ID && !actor.Role.IsStaff() {
		return nil, nil, apperrors.NewForbidden("not your grievance")
	}
	responses, err := s.responses.ListByGrievance(ctx, grievanceID)
	if err != nil {
		return nil, nil, err
	}
	return grievance, responses, nil
}

// List returns grievances scoped to the actor: students see their own, staff
// see everything the filter matches.
func (s *GrievanceService) List(ctx context.Context, actor *domain.User, filter repository.GrievanceFilter) ([]domain.Grievance, error) {
	if !actor.Role.IsStaff() {
		filter.UserID = &actor.ID
	}
	return s.grievances.ListWithFilter(ctx, filter)
}

func (s *GrievanceService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// ceilHours converts a remaining duration to whole hours, rounded up.
func ceilHours(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours()))
}

var allowedTransitions = map[domain.GrievanceStatus][]domain.GrievanceStatus{
	domain.StatusPending:     {domain.StatusUnderReview, domain.StatusInProgress, domain.StatusResolved, domain.StatusRejected},
	domain.StatusUnderReview: {domain.StatusInProgress, domain.StatusResolved, domain.StatusRejected},
	domain.StatusInProgress:  {domain.StatusUnderReview, domain.StatusResolved, domain.StatusRejected},
	domain.StatusResolved:    {},
	domain.StatusRejected:    {},
}

func isValidTransition(current, next domain.GrievanceStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
