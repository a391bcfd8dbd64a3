package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/veritoken/veritoken/pkg/domain"
)

// SMSConfig holds settings for the SMS gateway. GatewayURL receives a JSON
// POST per message; Token is sent as a bearer credential when set.
type SMSConfig struct {
	GatewayURL string
	Token      string
}

// SMSSender delivers messages through an HTTP SMS gateway.
type SMSSender struct {
	config SMSConfig
	client *http.Client
}

// NewSMSSender creates an SMS sender.
func NewSMSSender(config SMSConfig) *SMSSender {
	return &SMSSender{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Send posts the message text to the gateway addressed to the user's phone.
func (s *SMSSender) Send(ctx context.Context, user domain.User, msg Message) error {
	body, err := json.Marshal(smsPayload{To: user.Phone, Text: msg.Text})
	if err != nil {
		return fmt.Errorf("failed to encode sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
