package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceRoundTrip(t *testing.T) {
	ref := FormatReference(42)
	assert.Equal(t, "TRX-42", ref)

	id, err := ParseReference(ref)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = ParseReference("INV-42")
	assert.Error(t, err)
	_, err = ParseReference("TRX-abc")
	assert.Error(t, err)
}

func midtransPayload(serverKey, orderID, statusCode, grossAmount, status string) []byte {
	mac := hmac.New(sha512.New, []byte(serverKey))
	mac.Write([]byte(orderID + statusCode + grossAmount))
	sig := hex.EncodeToString(mac.Sum(nil))

	return []byte(fmt.Sprintf(
		`{"order_id":%q,"status_code":%q,"gross_amount":%q,"signature_key":%q,"transaction_id":"mt-1","transaction_status":%q}`,
		orderID, statusCode, grossAmount, sig, status))
}

func TestMidtransVerifySignature(t *testing.T) {
	m := NewMidtrans("server-key", "", "")

	payload := midtransPayload("server-key", "TRX-7", "200", "150.00", "settlement")
	assert.True(t, m.VerifySignature(payload, ""))

	tampered := midtransPayload("wrong-key", "TRX-7", "200", "150.00", "settlement")
	assert.False(t, m.VerifySignature(tampered, ""))

	assert.False(t, m.VerifySignature([]byte(`not json`), ""))
}

func TestMidtransParseWebhook(t *testing.T) {
	m := NewMidtrans("server-key", "", "")

	cases := []struct {
		status  string
		success bool
		failed  bool
	}{
		{"settlement", true, false},
		{"capture", true, false},
		{"deny", false, true},
		{"cancel", false, true},
		{"expire", false, true},
		{"failure", false, true},
		{"pending", false, false},
	}

	for _, tc := range cases {
		payload := midtransPayload("server-key", "TRX-7", "200", "150.00", tc.status)
		event, err := m.ParseWebhook(payload)
		require.NoError(t, err, tc.status)
		assert.Equal(t, int64(7), event.TransactionID, tc.status)
		assert.Equal(t, tc.success, event.IsSuccess, tc.status)
		assert.Equal(t, tc.failed, event.IsFailed, tc.status)
		assert.True(t, event.Amount.Equal(decimal.RequireFromString("150.00")))
	}
}

func xenditSignature(token string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestXenditVerifySignature(t *testing.T) {
	x := NewXendit("api-key", "callback-token", "", "")

	payload := []byte(`{"id":"inv-1","external_id":"TRX-3","status":"PAID","paid_amount":75.5}`)
	assert.True(t, x.VerifySignature(payload, xenditSignature("callback-token", payload)))
	assert.False(t, x.VerifySignature(payload, xenditSignature("other-token", payload)))
	assert.False(t, x.VerifySignature(payload, "not-hex"))
}

func TestXenditParseWebhook(t *testing.T) {
	x := NewXendit("api-key", "callback-token", "", "")

	event, err := x.ParseWebhook([]byte(`{"id":"inv-1","external_id":"TRX-3","status":"PAID","amount":80,"paid_amount":75.5}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), event.TransactionID)
	assert.Equal(t, "inv-1", event.GatewayTransactionID)
	assert.True(t, event.IsSuccess)
	// paid_amount wins over the invoice amount
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("75.5")))

	event, err = x.ParseWebhook([]byte(`{"id":"inv-2","external_id":"TRX-3","status":"EXPIRED","amount":80}`))
	require.NoError(t, err)
	assert.True(t, event.IsFailed)

	event, err = x.ParseWebhook([]byte(`{"id":"inv-3","external_id":"TRX-3","status":"PENDING","amount":80}`))
	require.NoError(t, err)
	assert.False(t, event.IsSuccess)
	assert.False(t, event.IsFailed)
}

func stripeHeader(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifySignature(t *testing.T) {
	s := NewStripe("api-key", "whsec_test", "", "")

	payload := []byte(`{"type":"checkout.session.completed"}`)
	header := stripeHeader("whsec_test", "1700000000", payload)
	assert.True(t, s.VerifySignature(payload, header))

	assert.False(t, s.VerifySignature(payload, stripeHeader("whsec_other", "1700000000", payload)))
	assert.False(t, s.VerifySignature(payload, "t=1700000000"))
	assert.False(t, s.VerifySignature(payload, ""))

	// extra v1 candidates are accepted if any matches
	multi := header + ",v1=" + hex.EncodeToString([]byte("garbage-signature-bytes----"))
	assert.True(t, s.VerifySignature(payload, multi))
}

func TestStripeParseWebhook(t *testing.T) {
	s := NewStripe("api-key", "whsec_test", "", "")

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","client_reference_id":"TRX-9","amount_total":12345}}}`)
	event, err := s.ParseWebhook(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(9), event.TransactionID)
	assert.Equal(t, "cs_1", event.GatewayTransactionID)
	assert.True(t, event.IsSuccess)
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("123.45")))

	payload = []byte(`{"type":"checkout.session.expired","data":{"object":{"id":"cs_2","client_reference_id":"TRX-9","amount_total":12345}}}`)
	event, err = s.ParseWebhook(payload)
	require.NoError(t, err)
	assert.True(t, event.IsFailed)

	payload = []byte(`{"type":"charge.updated","data":{"object":{"id":"cs_3","client_reference_id":"TRX-9"}}}`)
	event, err = s.ParseWebhook(payload)
	require.NoError(t, err)
	assert.False(t, event.IsSuccess)
	assert.False(t, event.IsFailed)
}
