package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/observability"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util"
)

type scriptedTransport struct {
	errs  []error
	calls int
	sent  []OutboundMessage
}

func (t *scriptedTransport) Deliver(_ context.Context, msg OutboundMessage) error {
	t.calls++
	t.sent = append(t.sent, msg)
	if t.calls <= len(t.errs) {
		return t.errs[t.calls-1]
	}
	return nil
}

func newTestDispatcher(transport Transport, slept *[]time.Duration) (*EmailDispatcher, *observability.Metrics) {
	policy := DefaultRetryPolicy()
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	metrics := observability.NewMetrics()
	return NewEmailDispatcher(transport, policy, "grievance-cell@university.edu", zap.NewNop(), metrics), metrics
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	transport := &scriptedTransport{}
	var slept []time.Duration
	d, metrics := newTestDispatcher(transport, &slept)

	result, err := d.Send(context.Background(), "student@university.edu", TemplateVerificationCode, Payload{
		"user_id": "stu42",
		"code":    "123456",
	})
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, slept)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, []string{"student@university.edu"}, transport.sent[0].To)
	assert.Contains(t, transport.sent[0].Body, "123456")
	assert.EqualValues(t, 1, metrics.NotificationCount(string(TemplateVerificationCode), true))
	assert.Zero(t, metrics.NotificationCount(string(TemplateVerificationCode), false))
}

func TestSendRetriesTransientWithBackoffSchedule(t *testing.T) {
	transport := &scriptedTransport{errs: []error{
		Transient(errors.New("timeout")),
		Transient(errors.New("relay returned 503")),
	}}
	var slept []time.Duration
	d, _ := newTestDispatcher(transport, &slept)

	result, err := d.Send(context.Background(), "student@university.edu", TemplateVerificationCode, Payload{
		"user_id": "stu42",
		"code":    "123456",
	})
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestSendExhaustedRetriesReturnsFailureResultNotError(t *testing.T) {
	transport := &scriptedTransport{errs: []error{
		Transient(errors.New("down")),
		Transient(errors.New("down")),
		Transient(errors.New("down")),
	}}
	var slept []time.Duration
	d, metrics := newTestDispatcher(transport, &slept)

	result, err := d.Send(context.Background(), "student@university.edu", TemplateReminder, Payload{
		"grievance_id": "g-1",
		"title":        "Broken projector",
		"status":       "PENDING",
		"requester":    "stu42",
	})
	require.NoError(t, err)
	assert.False(t, result.Delivered)
	assert.Equal(t, 3, result.Attempts)
	assert.NotEmpty(t, result.Reason)
	assert.Equal(t, 3, transport.calls)
	assert.EqualValues(t, 1, metrics.NotificationCount(string(TemplateReminder), false))
	assert.Zero(t, metrics.NotificationCount(string(TemplateReminder), true))
}

func TestSendPermanentTransportFailureNoRetry(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errors.New("relay rejected message with 400")}}
	var slept []time.Duration
	d, _ := newTestDispatcher(transport, &slept)

	result, err := d.Send(context.Background(), "student@university.edu", TemplateVerificationCode, Payload{
		"user_id": "stu42",
		"code":    "123456",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "DELIVERY_FAILED"))
	assert.False(t, result.Delivered)
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, slept)
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	transport := &scriptedTransport{}
	var slept []time.Duration
	d, _ := newTestDispatcher(transport, &slept)

	_, err := d.Send(context.Background(), "not-an-address", TemplateVerificationCode, Payload{
		"user_id": "stu42",
		"code":    "123456",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	assert.Zero(t, transport.calls)
}

func TestSendRejectsMissingRequiredField(t *testing.T) {
	transport := &scriptedTransport{}
	var slept []time.Duration
	d, _ := newTestDispatcher(transport, &slept)

	_, err := d.Send(context.Background(), "student@university.edu", TemplateGrievanceConfirmation, Payload{
		"grievance_id": "g-1",
		"title":        "Broken projector",
		// category, status, submitted_at missing
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	assert.Zero(t, transport.calls)
}
