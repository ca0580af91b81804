package notify

import (
	"context"
	"net/mail"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/observability"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

// DispatchTimeout bounds a whole Send call, retries and backoff included.
const DispatchTimeout = 10 * time.Second

// EmailDispatcher renders templates and delivers them through a Transport,
// retrying transient failures per its RetryPolicy.
type EmailDispatcher struct {
	transport Transport
	policy    RetryPolicy
	from      string
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewEmailDispatcher builds a dispatcher.
func NewEmailDispatcher(transport Transport, policy RetryPolicy, from string, logger *zap.Logger, metrics *observability.Metrics) *EmailDispatcher {
	return &EmailDispatcher{
		transport: transport,
		policy:    policy,
		from:      from,
		logger:    logger,
		metrics:   metrics,
	}
}

// Send implements Dispatcher. Invalid recipients and incomplete payloads fail
// immediately without retry; transient transport failures are retried per the
// policy. Exhausted retries surface through the result, not the error.
func (d *EmailDispatcher) Send(ctx context.Context, recipient string, tmpl Template, payload Payload) (DeliveryResult, error) {
	if _, err := mail.ParseAddress(recipient); err != nil {
		return DeliveryResult{}, apperrors.NewValidationError("invalid recipient address", map[string]any{"recipient": recipient})
	}

	subject, body, err := render(tmpl, payload)
	if err != nil {
		return DeliveryResult{}, apperrors.NewValidationError(err.Error(), nil)
	}

	msg := OutboundMessage{
		From:    d.from,
		To:      []string{recipient},
		Subject: subject,
		Body:    body,
	}

	ctx, cancel := context.WithTimeout(ctx, DispatchTimeout)
	defer cancel()

	attempts, err := d.policy.Execute(ctx, func(ctx context.Context) error {
		return d.transport.Deliver(ctx, msg)
	})

	result := DeliveryResult{Delivered: err == nil, Attempts: attempts}
	if err != nil {
		result.Reason = err.Error()
		d.logger.Warn("notification delivery failed",
			zap.String("template", string(tmpl)),
			zap.String("recipient", recipient),
			zap.Int("attempts", attempts),
			zap.Error(err))
	} else {
		d.logger.Debug("notification delivered",
			zap.String("template", string(tmpl)),
			zap.String("recipient", recipient),
			zap.Int("attempts", attempts))
	}
	d.metrics.RecordNotification(string(tmpl), result.Delivered)

	if err != nil && !IsTransient(err) {
		// Permanent transport rejection, surfaced as an error so callers can
		// distinguish it from retry exhaustion.
		return result, apperrors.NewDeliveryFailure(err.Error())
	}
	return result, nil
}
