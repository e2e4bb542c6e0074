package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agromarket/internal/models"

	"github.com/shopspring/decimal"
)

// Xendit signs callbacks with HMAC-SHA256 over the raw body, keyed by the
// account's callback token, delivered in the x-callback-signature header.
type Xendit struct {
	apiKey          string
	callbackToken   string
	endpoint        string
	redirectBaseURL string
	client          *http.Client
}

func NewXendit(apiKey, callbackToken, endpoint, redirectBaseURL string) *Xendit {
	return &Xendit{
		apiKey:          apiKey,
		callbackToken:   callbackToken,
		endpoint:        endpoint,
		redirectBaseURL: redirectBaseURL,
		client:          &http.Client{Timeout: 15 * time.Second},
	}
}

func (x *Xendit) Name() string { return models.GatewayXendit }

type xenditInvoiceRequest struct {
	ExternalID         string  `json:"external_id"`
	Amount             float64 `json:"amount"`
	SuccessRedirectURL string  `json:"success_redirect_url"`
	FailureRedirectURL string  `json:"failure_redirect_url"`
}

type xenditInvoiceResponse struct {
	ID         string `json:"id"`
	InvoiceURL string `json:"invoice_url"`
}

func (x *Xendit) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	amount, _ := req.Amount.Float64()
	body := xenditInvoiceRequest{
		ExternalID:         FormatReference(req.TransactionID),
		Amount:             amount,
		SuccessRedirectURL: x.redirectBaseURL + "/success",
		FailureRedirectURL: x.redirectBaseURL + "/failure",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(x.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("xendit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("xendit returned status %d", resp.StatusCode)
	}

	var invoice xenditInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return nil, fmt.Errorf("xendit response decode failed: %w", err)
	}

	return &PaymentSession{
		PaymentURL:           invoice.InvoiceURL,
		Token:                invoice.ID,
		GatewayTransactionID: invoice.ID,
	}, nil
}

func (x *Xendit) VerifySignature(payload []byte, signatureHeader string) bool {
	mac := hmac.New(sha256.New, []byte(x.callbackToken))
	mac.Write(payload)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

type xenditCallback struct {
	ID         string  `json:"id"`
	ExternalID string  `json:"external_id"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"`
	PaidAmount float64 `json:"paid_amount"`
}

func (x *Xendit) ParseWebhook(payload []byte) (*Event, error) {
	var cb xenditCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("malformed xendit callback: %w", err)
	}

	txID, err := ParseReference(cb.ExternalID)
	if err != nil {
		return nil, err
	}

	amount := cb.Amount
	if cb.PaidAmount > 0 {
		amount = cb.PaidAmount
	}

	event := &Event{
		TransactionID:        txID,
		GatewayTransactionID: cb.ID,
		Amount:               decimal.NewFromFloat(amount),
	}

	switch cb.Status {
	case "PAID", "SETTLED":
		event.IsSuccess = true
	case "EXPIRED", "FAILED":
		event.IsFailed = true
	}
	return event, nil
}
