package notify

import (
	"context"
	"errors"
	"fmt"
)

// Payload carries the template fields for a single send.
type Payload map[string]string

// DeliveryResult reports the outcome of a dispatch attempt chain.
type DeliveryResult struct {
	Delivered bool
	Attempts  int
	Reason    string
}

// Dispatcher sends one templated message to one recipient. Implementations own
// the retry, backoff and timeout policy. A returned error means the call was
// rejected outright (bad recipient, incomplete payload); exhausted retries are
// reported through DeliveryResult so callers can treat them as non-fatal.
type Dispatcher interface {
	Send(ctx context.Context, recipient string, template Template, payload Payload) (DeliveryResult, error)
}

// OutboundMessage is the rendered message handed to a Transport.
type OutboundMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	CC      []string `json:"cc,omitempty"`
	BCC     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Transport performs the actual delivery of a rendered message.
type Transport interface {
	Deliver(ctx context.Context, msg OutboundMessage) error
}

// TransientError marks a failure worth retrying (timeout, 5xx, rate limit).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delivery failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
