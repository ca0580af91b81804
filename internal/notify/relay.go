package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/config"
)

// RelayTransport delivers rendered messages by POSTing them as JSON to the
// institutional mail relay.
type RelayTransport struct {
	url    string
	token  string
	client *http.Client
	logger *zap.Logger
}

// NewRelayTransport builds the relay transport. The client timeout is a
// per-attempt bound; the dispatcher owns the whole-call deadline.
func NewRelayTransport(cfg config.NotifierConfig, logger *zap.Logger) *RelayTransport {
	return &RelayTransport{
		url:    cfg.RelayURL,
		token:  cfg.RelayToken,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Deliver implements Transport. Network errors, timeouts, 5xx and 429 are
// reported as transient; other non-2xx statuses are permanent.
func (t *RelayTransport) Deliver(ctx context.Context, msg OutboundMessage) error {
	if t.url == "" {
		t.logger.Warn("mail relay not configured; dropping outbound message",
			zap.String("subject", msg.Subject))
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// Connection failures and timeouts are all worth a retry.
		return Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return Transient(fmt.Errorf("relay returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("relay rejected message with %d", resp.StatusCode)
	}
}
