// Package alerts delivers operational notifications in response to domain
// events. It subscribes to the event bus so the engine never has to know
// where alerts go; delivery failures are logged and dropped.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nurture_backend/internal/events"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"
)

// Notifier posts alert payloads to the configured webhook.
type Notifier struct {
	webhookURL string
	http       *http.Client
	log        *logger.Logger
}

func NewNotifier(cfg config.AlertConfig, log *logger.Logger) *Notifier {
	if cfg.GetAlertWebhookURL() == "" {
		return nil
	}
	return &Notifier{
		webhookURL: cfg.GetAlertWebhookURL(),
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Register subscribes the notifier to the events it cares about. A nil
// notifier registers nothing, so alerting stays optional.
func (n *Notifier) Register(bus events.Bus) {
	if n == nil {
		return
	}
	bus.Subscribe(events.EscalationRaised{}.EventName(), events.HandlerFunc(n.handleEscalation))
	bus.Subscribe(events.LeadsOverdue{}.EventName(), events.HandlerFunc(n.handleOverdue))
}

func (n *Notifier) handleEscalation(ctx context.Context, event events.Event) error {
	e, ok := event.(events.EscalationRaised)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return n.post(ctx, map[string]any{
		"type":     "escalation",
		"leadId":   e.LeadID.String(),
		"leadName": e.LeadName,
		"reason":   e.Reason,
		"at":       e.OccurredAt().UTC(),
	})
}

func (n *Notifier) handleOverdue(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadsOverdue)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return n.post(ctx, map[string]any{
		"type":         "leads_overdue",
		"count":        e.Count,
		"oldestReview": e.OldestReview.UTC(),
		"at":           e.OccurredAt().UTC(),
	})
}

func (n *Notifier) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("alert webhook request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alert webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	n.log.Info("alert delivered", "type", payload["type"])
	return nil
}
