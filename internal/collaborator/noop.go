package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/config"
)

// HTTPMailDispatcher posts finalized letters to the physical-mail provider.
type HTTPMailDispatcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPMailDispatcher builds the dispatcher. When unconfigured it logs
// instead of sending, which keeps development environments mail-free.
func NewHTTPMailDispatcher(cfg config.CollaboratorConfig, logger *zap.Logger) *HTTPMailDispatcher {
	return &HTTPMailDispatcher{
		baseURL: cfg.MailDispatchURL,
		apiKey:  cfg.MailDispatchKey,
		client:  &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

func (d *HTTPMailDispatcher) RequestDispatch(ctx context.Context, ticketID, letterID, body string) error {
	if d.baseURL == "" {
		d.logger.Info("mail dispatch (dry run)",
			zap.String("ticket_id", ticketID),
			zap.String("letter_id", letterID),
			zap.Int("body_bytes", len(body)))
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"ticket_id": ticketID,
		"letter_id": letterID,
		"body":      body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/dispatch", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail dispatch returned %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier logs notifications instead of delivering them. Stands in for
// the email/SMS providers outside production.
type LogNotifier struct {
	logger *zap.Logger
	from   string
}

// NewLogNotifier builds the notifier.
func NewLogNotifier(cfg config.NotificationConfig, logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger, from: cfg.EmailFrom}
}

func (n *LogNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	n.logger.Info("email notification",
		zap.String("from", n.from),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)))
	return nil
}

func (n *LogNotifier) SendSMS(ctx context.Context, to, body string) error {
	n.logger.Info("sms notification",
		zap.String("to", to),
		zap.Int("body_bytes", len(body)))
	return nil
}

// NullBlobStore rejects every fetch; attachment bytes are optional signals
// and intake degrades to metadata-only when the store is absent.
type NullBlobStore struct{}

func (NullBlobStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("blob store not configured")
}
