// Package notify holds outbound message delivery clients.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agromarket/internal/util"

	"go.uber.org/zap"
)

// WhatsAppClient posts OTP messages to an external WhatsApp gateway.
type WhatsAppClient struct {
	apiURL   string
	apiToken string
	client   *http.Client
	logger   *zap.Logger
}

func NewWhatsAppClient(apiURL, apiToken string) *WhatsAppClient {
	return &WhatsAppClient{
		apiURL:   apiURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   util.GetLogger(),
	}
}

type whatsAppMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendOTP delivers a login code to a phone number.
func (w *WhatsAppClient) SendOTP(ctx context.Context, phone, code string) error {
	msg := whatsAppMessage{
		To:   phone,
		Body: fmt.Sprintf("Your verification code is %s. It expires in a few minutes.", code),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiToken)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway returned status %d", resp.StatusCode)
	}

	w.logger.Debug("OTP message sent", zap.String("to", phone))
	return nil
}
