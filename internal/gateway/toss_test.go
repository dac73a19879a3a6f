package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/httpclient"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToss(t *testing.T, handler http.HandlerFunc) *TossClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.GatewayConfig{BaseURL: srv.URL, SecretKey: "test_sk", Timeout: 2 * time.Second}
	client := httpclient.NewDefaultClient(httpclient.ClientConfig{Timeout: 2 * time.Second}, logger.NewNoopLogger())
	return NewTossClient(cfg, client, logger.NewNoopLogger())
}

func TestToss_Charge(t *testing.T) {
	toss := newTestToss(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/billing/bk_123", r.URL.Path)
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("test_sk:")), r.Header.Get("Authorization"))
		assert.Equal(t, "ord-1", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 43839, body["amount"])
		assert.Equal(t, "ord-1", body["orderId"])

		_, _ = w.Write([]byte(`{
			"paymentKey": "pk_1", "orderId": "ord-1", "status": "DONE", "method": "card",
			"totalAmount": 43839, "approvedAt": "2024-03-06T10:00:00+09:00",
			"card": {"company": "Shinhan", "number": "4330****1234", "cardType": "credit", "ownerType": "personal"},
			"receipt": {"url": "https://receipt/pk_1"}
		}`))
	})

	res, err := toss.Charge(context.Background(), &ChargeRequest{
		BillingKey: "bk_123", CustomerKey: "cust-1", Amount: 43839, OrderID: "ord-1", OrderName: "Business plan",
	})
	require.NoError(t, err)
	assert.Equal(t, "pk_1", res.PaymentKey)
	assert.Equal(t, types.PaymentStatusDone, res.Status)
	assert.Equal(t, "Shinhan", res.CardInfo.Company)
	assert.Equal(t, "https://receipt/pk_1", res.ReceiptURL)
	assert.False(t, res.ApprovedAt.IsZero())
}

func TestToss_ChargeDeclined(t *testing.T) {
	toss := newTestToss(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"REJECT_CARD_COMPANY","message":"card rejected"}`))
	})

	_, err := toss.Charge(context.Background(), &ChargeRequest{BillingKey: "bk", Amount: 100, OrderID: "o"})
	require.Error(t, err)
	assert.True(t, ierr.IsGateway(err))
	assert.False(t, ierr.IsRetryable(err))

	gwErr, ok := ierr.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, "REJECT_CARD_COMPANY", gwErr.Code)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Equal(t, http.StatusBadGateway, ierr.HTTPStatusFromErr(err))
}

func TestToss_GetPaymentRemaining(t *testing.T) {
	toss := newTestToss(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pk_1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"paymentKey": "pk_1", "status": "PARTIAL_CANCELED", "totalAmount": 99000,
			"cancels": [{"cancelAmount": 10000}, {"cancelAmount": 5000}]
		}`))
	})

	details, err := toss.GetPayment(context.Background(), "pk_1")
	require.NoError(t, err)
	assert.Equal(t, int64(99000), details.TotalAmount)
	assert.Len(t, details.Cancels, 2)
	assert.Equal(t, int64(84000), details.RemainingAmount())
}

func TestToss_RefundSendsIdempotencyKey(t *testing.T) {
	toss := newTestToss(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pk_1/cancel", r.URL.Path)
		assert.Equal(t, "refund-key", r.Header.Get("Idempotency-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 26419, body["cancelAmount"])
		_, _ = w.Write([]byte(`{"paymentKey":"pk_1","status":"PARTIAL_CANCELED","totalAmount":39000}`))
	})

	res, err := toss.Refund(context.Background(), &RefundRequest{
		PaymentKey: "pk_1", Reason: "plan change", Amount: 26419, IdempotencyKey: "refund-key",
	})
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusDone, res.Status)
	assert.Equal(t, int64(26419), res.CanceledAmount)
}

func TestToss_IssueBillingKey(t *testing.T) {
	toss := newTestToss(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/billing/authorizations/issue", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"billingKey": "bk_new", "customerKey": "cust-1", "cardCompany": "Hyundai",
			"card": {"number": "5365****7777", "cardType": "credit", "ownerType": "corporate"}
		}`))
	})

	res, err := toss.IssueBillingKey(context.Background(), &IssueBillingKeyRequest{AuthKey: "auth", CustomerKey: "cust-1"})
	require.NoError(t, err)
	assert.Equal(t, "bk_new", res.BillingKey)
	assert.Equal(t, "Hyundai", res.CardInfo.Company)
	assert.Equal(t, "5365****7777", res.CardInfo.Number)
}

func TestInstrument_TimeoutIsRetryableGatewayError(t *testing.T) {
	toss := newTestToss(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	gw := Instrument(toss, 50*time.Millisecond, nil, logger.NewNoopLogger())

	_, err := gw.GetPayment(context.Background(), "pk_1")
	require.Error(t, err)
	gwErr, ok := ierr.AsGatewayError(err)
	require.True(t, ok)
	assert.True(t, gwErr.Timeout)
	assert.True(t, ierr.IsRetryable(err))
}
