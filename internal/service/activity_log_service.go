package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/events"
)

// ActivityLogService records domain events as a structured activity trail.
type ActivityLogService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewActivityLogService creates the service.
func NewActivityLogService(dispatcher events.Dispatcher, logger *zap.Logger) *ActivityLogService {
	return &ActivityLogService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to every event type worth trailing.
func (a *ActivityLogService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventGrievanceSubmitted,
		events.EventGrievanceStatusChanged,
		events.EventGrievanceAssigned,
		events.EventGrievanceDeleted,
		events.EventReminderRequested,
		events.EventResponseAdded,
		events.EventCorrespondenceSent,
		events.EventUserRegistered,
	} {
		a.dispatcher.Subscribe(eventType, a.handle)
	}
}

func (a *ActivityLogService) handle(_ context.Context, event events.Event) error {
	a.logger.Info("activity",
		zap.String("event", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("grievance_id", event.GrievanceID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	return nil
}
