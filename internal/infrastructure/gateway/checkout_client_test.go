package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Fatal(msg string, keysAndValues ...interface{}) {}

func TestCreateCheckoutSession(t *testing.T) {
	expires := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "settle:auction-1:winner-1", r.Header.Get("Idempotency-Key"))

		var req createSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 150.0, req.Amount)
		assert.Equal(t, "usd", req.Currency)
		assert.Equal(t, "order-1", req.Metadata["order_id"])

		json.NewEncoder(w).Encode(createSessionResponse{
			SessionID: "sess-1",
			URL:       "https://checkout.example.com/pay/sess-1",
			ExpiresAt: expires,
		})
	}))
	defer srv.Close()

	client := NewCheckoutClient(srv.URL, "sk_test", 5*time.Second, nopLogger{})

	session, err := client.CreateCheckoutSession(context.Background(), domain.CheckoutRequest{
		Amount:         150,
		Currency:       "usd",
		SuccessURL:     "https://shop.example.com/payment/success",
		CancelURL:      "https://shop.example.com/payment/cancel",
		Metadata:       map[string]string{"order_id": "order-1"},
		IdempotencyKey: "settle:auction-1:winner-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", session.SessionID)
	assert.Equal(t, "https://checkout.example.com/pay/sess-1", session.PaymentURL)
	assert.True(t, session.ExpiresAt.Equal(expires))
}

func TestCreateCheckoutSessionGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewCheckoutClient(srv.URL, "sk_test", 5*time.Second, nopLogger{})

	_, err := client.CreateCheckoutSession(context.Background(), domain.CheckoutRequest{
		Amount:   150,
		Currency: "usd",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
