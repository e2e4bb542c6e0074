package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agromarket/internal/models"

	"github.com/shopspring/decimal"
)

// Stripe signs events with HMAC-SHA256 over "<timestamp>.<body>", delivered
// in a multi-part Stripe-Signature header (t=...,v1=...[,v1=...]).
type Stripe struct {
	apiKey          string
	signingSecret   string
	endpoint        string
	redirectBaseURL string
	client          *http.Client
}

func NewStripe(apiKey, signingSecret, endpoint, redirectBaseURL string) *Stripe {
	return &Stripe{
		apiKey:          apiKey,
		signingSecret:   signingSecret,
		endpoint:        endpoint,
		redirectBaseURL: redirectBaseURL,
		client:          &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *Stripe) Name() string { return models.GatewayStripe }

type stripeSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (s *Stripe) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	// checkout amounts are in the smallest currency unit
	unitAmount := req.Amount.Mul(decimal.NewFromInt(100)).IntPart()

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", FormatReference(req.TransactionID))
	form.Set("success_url", s.redirectBaseURL+"/success")
	form.Set("cancel_url", s.redirectBaseURL+"/failure")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", unitAmount))
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("Order #%d", req.OrderID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(s.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe returned status %d", resp.StatusCode)
	}

	var session stripeSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("stripe response decode failed: %w", err)
	}

	return &PaymentSession{
		PaymentURL:           session.URL,
		Token:                session.ID,
		GatewayTransactionID: session.ID,
	}, nil
}

func (s *Stripe) VerifySignature(payload []byte, signatureHeader string) bool {
	var timestamp string
	var candidates [][]byte

	for _, part := range strings.Split(signatureHeader, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			if sig, err := hex.DecodeString(value); err == nil {
				candidates = append(candidates, sig)
			}
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.signingSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		if hmac.Equal(expected, candidate) {
			return true
		}
	}
	return false
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string `json:"id"`
			ClientReferenceID string `json:"client_reference_id"`
			AmountTotal       int64  `json:"amount_total"`
		} `json:"object"`
	} `json:"data"`
}

func (s *Stripe) ParseWebhook(payload []byte) (*Event, error) {
	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("malformed stripe event: %w", err)
	}

	txID, err := ParseReference(ev.Data.Object.ClientReferenceID)
	if err != nil {
		return nil, err
	}

	event := &Event{
		TransactionID:        txID,
		GatewayTransactionID: ev.Data.Object.ID,
		Amount:               decimal.New(ev.Data.Object.AmountTotal, -2),
	}

	switch ev.Type {
	case "checkout.session.completed":
		event.IsSuccess = true
	case "checkout.session.expired", "payment_intent.payment_failed":
		event.IsFailed = true
	}
	return event, nil
}
