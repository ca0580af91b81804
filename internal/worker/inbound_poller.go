package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/service"
)

// InboundMail is one message fetched from the institutional mailbox.
type InboundMail struct {
	Subject           string    `json:"subject"`
	From              string    `json:"from"`
	To                []string  `json:"to"`
	CC                []string  `json:"cc"`
	Body              string    `json:"body"`
	SentAt            time.Time `json:"sent_at"`
	LinkedGrievanceID *string   `json:"linked_grievance_id,omitempty"`
}

// MailSource fetches new inbound mail. Implementations must only return each
// message once.
type MailSource interface {
	Fetch(ctx context.Context) ([]InboundMail, error)
}

// HTTPMailSource pulls pending messages from the relay's inbox endpoint.
type HTTPMailSource struct {
	url    string
	client *http.Client
}

// NewHTTPMailSource builds a source against the given inbox URL.
func NewHTTPMailSource(url string) *HTTPMailSource {
	return &HTTPMailSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch retrieves and decodes pending messages.
func (s *HTTPMailSource) Fetch(ctx context.Context) ([]InboundMail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inbox fetch returned status %d", resp.StatusCode)
	}

	var messages []InboundMail
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode inbox payload: %w", err)
	}
	return messages, nil
}

// InboundPoller periodically drains the mail source into the correspondence
// inbox. Fetch errors are logged and retried on the next tick.
type InboundPoller struct {
	source         MailSource
	correspondence *service.CorrespondenceService
	interval       time.Duration
	logger         *zap.Logger
	stop           chan struct{}
	done           chan struct{}
}

// NewInboundPoller constructs the poller.
func NewInboundPoller(source MailSource, correspondence *service.CorrespondenceService, interval time.Duration, logger *zap.Logger) *InboundPoller {
	return &InboundPoller{
		source:         source,
		correspondence: correspondence,
		interval:       interval,
		logger:         logger,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or the context ends.
func (p *InboundPoller) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for the current poll to finish.
func (p *InboundPoller) Stop() {
	close(p.stop)
	<-p.done
}

func (p *InboundPoller) poll(ctx context.Context) {
	messages, err := p.source.Fetch(ctx)
	if err != nil {
		p.logger.Warn("inbound mail fetch failed", zap.Error(err))
		return
	}

	for _, m := range messages {
		msg := &domain.CorrespondenceMessage{
			Subject:           m.Subject,
			From:              m.From,
			To:                m.To,
			CC:                m.CC,
			Body:              m.Body,
			SentAt:            m.SentAt,
			LinkedGrievanceID: m.LinkedGrievanceID,
		}
		if err := p.correspondence.CreateInbound(ctx, msg); err != nil {
			p.logger.Error("failed to record inbound mail",
				zap.String("subject", m.Subject), zap.Error(err))
			continue
		}
	}
	if len(messages) > 0 {
		p.logger.Info("inbound mail recorded", zap.Int("count", len(messages)))
	}
}
