package channels

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/phone"
)

// SMSGateway sends text messages through the external SMS gateway service.
type SMSGateway struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gatewayRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func NewSMSGateway(cfg config.GatewayConfig, log *logger.Logger) *SMSGateway {
	if cfg.GetGatewayURL() == "" {
		return nil
	}

	return &SMSGateway{
		baseURL:  strings.TrimRight(cfg.GetGatewayURL(), "/"),
		apiKey:   cfg.GetGatewayKey(),
		deviceID: cfg.GetGatewayDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (c *SMSGateway) Channel() domain.Channel { return domain.ChannelSMS }

func (c *SMSGateway) Send(ctx context.Context, lead domain.Lead, message string) error {
	normalized := strings.TrimPrefix(phone.NormalizeE164(lead.Phone), "+")

	body, err := json.Marshal(gatewayRequest{Phone: normalized, Message: message})
	if err != nil {
		return fmt.Errorf("marshal gateway payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// 451 is the gateway's signal that the recipient texted STOP.
	if resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return ErrConsentRevoked
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("sms sent via gateway", "phone", normalized)
	return nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
