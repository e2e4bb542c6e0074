// Package gateway holds the per-provider payment adapters. Each adapter
// builds provider payment sessions, verifies webhook signatures in constant
// time, and normalizes provider payloads into a canonical event.
package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Event is the gateway-agnostic webhook result. Exactly one of IsSuccess
// and IsFailed is true for a terminal event; both false means an
// intermediate notification the caller should acknowledge and ignore.
type Event struct {
	TransactionID        int64
	GatewayTransactionID string
	Amount               decimal.Decimal
	IsSuccess            bool
	IsFailed             bool
}

// PaymentRequest carries what an adapter needs to open a provider session.
type PaymentRequest struct {
	TransactionID int64
	OrderID       int64
	Amount        decimal.Decimal
}

// PaymentSession is the provider-side handle returned to the client.
type PaymentSession struct {
	PaymentURL           string
	Token                string
	GatewayTransactionID string
}

// Adapter is the per-provider capability set.
type Adapter interface {
	Name() string
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error)
	VerifySignature(payload []byte, signatureHeader string) bool
	ParseWebhook(payload []byte) (*Event, error)
}

// Registry selects an adapter once at the boundary by gateway name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// FormatReference builds the provider-side reference for a transaction.
func FormatReference(transactionID int64) string {
	return fmt.Sprintf("TRX-%d", transactionID)
}

// ParseReference extracts the transaction ID from a provider reference.
func ParseReference(ref string) (int64, error) {
	idStr, ok := strings.CutPrefix(ref, "TRX-")
	if !ok {
		return 0, fmt.Errorf("unrecognized transaction reference: %q", ref)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized transaction reference: %q", ref)
	}
	return id, nil
}
