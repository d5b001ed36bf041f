// Package service hosts event-driven fan-out that sits outside the
// lifecycle machine. User-facing sends are owned by the machine; this layer
// covers operational notifications only.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/config"
	"github.com/parkfair/contest-service/internal/events"
)

// NotificationService mirrors lifecycle events to the operations channel.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	client     *http.Client
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketDetected, n.handle)
	n.dispatcher.Subscribe(events.EventEvidenceReceived, n.handle)
	n.dispatcher.Subscribe(events.EventApprovalRequested, n.handle)
	n.dispatcher.Subscribe(events.EventTicketMailed, n.handle)
	n.dispatcher.Subscribe(events.EventTicketDismissed, n.handle)
	n.dispatcher.Subscribe(events.EventTicketSkipped, n.handle)
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info("lifecycle event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("account_id", event.AccountID),
		zap.String("actor", event.Actor))
	n.sendOpsWebhook(ctx, event)
	return nil
}

// sendOpsWebhook posts the event to the ops channel. Failures are logged and
// dropped; operational mirroring never affects the lifecycle.
func (n *NotificationService) sendOpsWebhook(ctx context.Context, event events.Event) {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return
	}

	body, err := json.Marshal(map[string]any{
		"event_type": event.Type,
		"ticket_id":  event.TicketID,
		"account_id": event.AccountID,
		"actor":      event.Actor,
		"payload":    event.Payload,
		"occurred":   event.Timestamp,
	})
	if err != nil {
		n.logger.Warn("ops webhook marshal failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("ops webhook request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("ops webhook delivery failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("ops webhook rejected", zap.Int("status", resp.StatusCode))
	}
}
