package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// CheckoutClient talks to the hosted-checkout payment gateway. Charging
// itself is asynchronous; the gateway reports the outcome via webhook.
type CheckoutClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	log        logger.Logger
}

func NewCheckoutClient(baseURL, secret string, timeout time.Duration, log logger.Logger) *CheckoutClient {
	return &CheckoutClient{
		baseURL: baseURL,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type createSessionRequest struct {
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *CheckoutClient) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.PaymentSession, error) {
	body, err := json.Marshal(createSessionRequest{
		Amount:     req.Amount,
		Currency:   req.Currency,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)
	// The gateway dedupes on this key, so our retries cannot create a
	// second charge for the same auction/winner pair.
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("Gateway rejected session creation",
			"status", resp.StatusCode, "idempotency_key", req.IdempotencyKey)
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var sessionResp createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sessionResp); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	return &domain.PaymentSession{
		SessionID:  sessionResp.SessionID,
		PaymentURL: sessionResp.URL,
		ExpiresAt:  sessionResp.ExpiresAt,
	}, nil
}
