package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agromarket/internal/models"

	"github.com/shopspring/decimal"
)

// Midtrans signs notifications with HMAC-SHA512 over the concatenated
// order reference, status code, and gross amount.
type Midtrans struct {
	serverKey       string
	endpoint        string
	redirectBaseURL string
	client          *http.Client
}

func NewMidtrans(serverKey, endpoint, redirectBaseURL string) *Midtrans {
	return &Midtrans{
		serverKey:       serverKey,
		endpoint:        endpoint,
		redirectBaseURL: redirectBaseURL,
		client:          &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *Midtrans) Name() string { return models.GatewayMidtrans }

type midtransSnapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount string `json:"gross_amount"`
	} `json:"transaction_details"`
	Callbacks struct {
		Finish string `json:"finish"`
	} `json:"callbacks"`
}

type midtransSnapResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

func (m *Midtrans) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	var body midtransSnapRequest
	body.TransactionDetails.OrderID = FormatReference(req.TransactionID)
	body.TransactionDetails.GrossAmount = req.Amount.StringFixed(2)
	body.Callbacks.Finish = m.redirectBaseURL + "/success"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(m.serverKey, "")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("midtrans request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("midtrans returned status %d", resp.StatusCode)
	}

	var snap midtransSnapResponse
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("midtrans response decode failed: %w", err)
	}

	return &PaymentSession{
		PaymentURL: snap.RedirectURL,
		Token:      snap.Token,
	}, nil
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// VerifySignature checks the signature_key carried in the notification
// body; midtrans does not use a signature header.
func (m *Midtrans) VerifySignature(payload []byte, _ string) bool {
	var n midtransNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(m.serverKey))
	mac.Write([]byte(n.OrderID + n.StatusCode + n.GrossAmount))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(n.SignatureKey)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func (m *Midtrans) ParseWebhook(payload []byte) (*Event, error) {
	var n midtransNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("malformed midtrans notification: %w", err)
	}

	txID, err := ParseReference(n.OrderID)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(n.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("malformed midtrans gross_amount: %w", err)
	}

	event := &Event{
		TransactionID:        txID,
		GatewayTransactionID: n.TransactionID,
		Amount:               amount,
	}

	switch n.TransactionStatus {
	case "settlement":
		event.IsSuccess = true
	case "capture":
		event.IsSuccess = n.FraudStatus == "" || n.FraudStatus == "accept"
		event.IsFailed = n.FraudStatus == "deny"
	case "deny", "cancel", "expire", "failure":
		event.IsFailed = true
	}
	return event, nil
}
