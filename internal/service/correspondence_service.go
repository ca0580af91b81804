package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/events"
	"github.com/spec-kit/grievance-portal/internal/notify"
	"github.com/spec-kit/grievance-portal/internal/repository"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

// CorrespondenceService manages the admin inbox and its reply/forward chains.
// Outbound messages are always persisted; when dispatch fails they are kept as
// drafts so an operator can retry manually.
type CorrespondenceService struct {
	inbox       repository.CorrespondenceRepository
	grievanceSv *GrievanceService
	notifier    notify.Dispatcher
	dispatcher  events.Dispatcher
	selfAddress string
	logger      *zap.Logger
	now         func() time.Time
}

// CorrespondenceDependencies bundles collaborators.
type CorrespondenceDependencies struct {
	InboxRepo    repository.CorrespondenceRepository
	GrievanceSvc *GrievanceService
	Notifier     notify.Dispatcher
	Dispatcher   events.Dispatcher
	SelfAddress  string
	Logger       *zap.Logger
}

// NewCorrespondenceService constructs the service.
func NewCorrespondenceService(deps CorrespondenceDependencies) *CorrespondenceService {
	return &CorrespondenceService{
		inbox:       deps.InboxRepo,
		grievanceSv: deps.GrievanceSvc,
		notifier:    deps.Notifier,
		dispatcher:  deps.Dispatcher,
		selfAddress: deps.SelfAddress,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// List returns inbox messages matching the filter. Pure read.
func (s *CorrespondenceService) List(ctx context.Context, filter repository.InboxFilter) ([]domain.CorrespondenceMessage, error) {
	return s.inbox.ListWithFilter(ctx, filter)
}

// CreateInbound records a message received from outside (mail poller or the
// inbound webhook).
func (s *CorrespondenceService) CreateInbound(ctx context.Context, msg *domain.CorrespondenceMessage) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	msg.Delivery = domain.DeliveryInbound
	return s.inbox.Create(ctx, msg)
}

// MarkRead flags a message as read.
func (s *CorrespondenceService) MarkRead(ctx context.Context, id string) (*domain.CorrespondenceMessage, error) {
	msg, err := s.inbox.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	msg.Read = true
	if err := s.inbox.Update(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ToggleStar flips the starred flag.
func (s *CorrespondenceService) ToggleStar(ctx context.Context, id string) (*domain.CorrespondenceMessage, error) {
	msg, err := s.inbox.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	msg.Starred = !msg.Starred
	if err := s.inbox.Update(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete removes a message from the inbox.
func (s *CorrespondenceService) Delete(ctx context.Context, id string) error {
	return s.inbox.Delete(ctx, id)
}

// Reply sends a threaded reply to the original sender.
func (s *CorrespondenceService) Reply(ctx context.Context, id, body string) (*domain.CorrespondenceMessage, error) {
	orig, err := s.inbox.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sendThreaded(ctx, orig, prefixSubject("Re:", orig.Subject), body, []string{orig.From}, nil, nil)
}

// ReplyAll replies to the original sender plus everyone on the original to/cc
// lists, deduplicated and excluding our own outgoing address.
func (s *CorrespondenceService) ReplyAll(ctx context.Context, id, body string) (*domain.CorrespondenceMessage, error) {
	orig, err := s.inbox.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	recipients := replyAllRecipients(orig, s.selfAddress)
	if len(recipients) == 0 {
		return nil, apperrors.NewValidationError("no recipients besides ourselves", nil)
	}
	return s.sendThreaded(ctx, orig, prefixSubject("Re:", orig.Subject), body, recipients, nil, nil)
}

// Forward sends the original message on to a new recipient list with an
// optional covering note.
func (s *CorrespondenceService) Forward(ctx context.Context, id string, to, cc, bcc []string, note string) (*domain.CorrespondenceMessage, error) {
	if len(to) == 0 {
		return nil, apperrors.NewValidationError("at least one recipient is required", nil)
	}
	orig, err := s.inbox.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var body strings.Builder
	if strings.TrimSpace(note) != "" {
		body.WriteString(strings.TrimSpace(note))
		body.WriteString("\n\n")
	}
	body.WriteString("---------- Forwarded message ----------\n")
	fmt.Fprintf(&body, "From: %s\nSubject: %s\nDate: %s\n\n", orig.From, orig.Subject, orig.SentAt.Format(time.RFC1123))
	body.WriteString(orig.Body)

	return s.sendThreaded(ctx, orig, prefixSubject("Fwd:", orig.Subject), body.String(), to, cc, bcc)
}

// ResolveLinkedGrievance resolves the grievance linked to a message, moving it
// to RESOLVED directly from whatever non-terminal state it is in.
func (s *CorrespondenceService) ResolveLinkedGrievance(ctx context.Context, id string, actor *domain.User) (*domain.Grievance, error) {
	orig, err := s.inbox.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if orig.LinkedGrievanceID == nil {
		return nil, apperrors.NewValidationError("message is not linked to a grievance", nil)
	}
	return s.grievanceSv.SetStatus(ctx, *orig.LinkedGrievanceID, domain.StatusResolved, actor)
}

// AssignLinkedGrievance assigns the linked grievance to a staff member,
// moving it to IN_PROGRESS.
func (s *CorrespondenceService) AssignLinkedGrievance(ctx context.Context, id, staffID string, actor *domain.User) (*domain.Grievance, error) {
	orig, err := s.inbox.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if orig.LinkedGrievanceID == nil {
		return nil, apperrors.NewValidationError("message is not linked to a grievance", nil)
	}
	return s.grievanceSv.Assign(ctx, *orig.LinkedGrievanceID, staffID, actor)
}

// sendThreaded builds the outgoing message, dispatches it to every recipient
// and persists it regardless of the dispatch outcome.
func (s *CorrespondenceService) sendThreaded(ctx context.Context, orig *domain.CorrespondenceMessage, subject, body string, to, cc, bcc []string) (*domain.CorrespondenceMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("body is required", nil)
	}

	delivered := s.dispatchToAll(ctx, subject, body, concat(to, cc, bcc))

	msg := &domain.CorrespondenceMessage{
		Subject:           subject,
		From:              s.selfAddress,
		To:                to,
		CC:                cc,
		BCC:               bcc,
		Body:              body,
		SentAt:            s.now(),
		Read:              true,
		Delivery:          domain.DeliverySent,
		OriginalMessageID: &orig.ID,
		LinkedGrievanceID: orig.LinkedGrievanceID,
	}
	if !delivered {
		msg.Delivery = domain.DeliveryDraft
		s.logger.Warn("outgoing correspondence kept as draft after failed dispatch",
			zap.String("subject", subject))
	}
	if err := s.inbox.Create(ctx, msg); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventCorrespondenceSent,
			Timestamp: s.now(),
			Payload: events.CorrespondenceSentPayload{
				MessageID: msg.ID,
				Delivery:  msg.Delivery,
				Subject:   msg.Subject,
			},
		})
	}
	return msg, nil
}

// dispatchToAll sends one message per recipient. Independent recipients are
// dispatched in parallel; each send retries internally per the dispatcher's
// policy.
func (s *CorrespondenceService) dispatchToAll(ctx context.Context, subject, body string, recipients []string) bool {
	if len(recipients) == 0 {
		return false
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0

	for _, recipient := range recipients {
		wg.Add(1)
		go func(recipient string) {
			defer wg.Done()
			result, err := s.notifier.Send(ctx, recipient, notify.TemplateCorrespondence, notify.Payload{
				"subject": subject,
				"body":    body,
			})
			if err != nil || !result.Delivered {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(recipient)
	}
	wg.Wait()
	return failures == 0
}

// prefixSubject prepends the marker unless the subject already carries it,
// case-insensitively, so chains never accumulate "Re: Re:".
func prefixSubject(marker, subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(marker)) {
		return trimmed
	}
	return marker + " " + trimmed
}

// replyAllRecipients is the union of the original sender, to and cc lists,
// deduplicated, with our own outgoing address removed.
func replyAllRecipients(orig *domain.CorrespondenceMessage, self string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" || strings.EqualFold(addr, self) {
			return
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}

	add(orig.From)
	for _, addr := range orig.To {
		add(addr)
	}
	for _, addr := range orig.CC {
		add(addr)
	}
	return out
}

func concat(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		out = append(out, list...)
	}
	return out
}
