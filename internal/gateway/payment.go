package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mino1214/juncom-server/pkg/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// PaymentResult is the gateway's view of a transaction.
type PaymentResult struct {
	TID     string `json:"tid"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

// PaymentClient talks to the payment gateway's merchant API. All calls carry
// Basic auth with the merchant credentials.
type PaymentClient struct {
	http       HTTPDoer
	baseURL    string
	merchantID string
	apiKey     string
	logger     *slog.Logger
}

// NewPaymentClient creates a payment gateway client.
func NewPaymentClient(httpClient HTTPDoer, baseURL, merchantID, apiKey string, logger *slog.Logger) *PaymentClient {
	return &PaymentClient{
		http:       httpClient,
		baseURL:    baseURL,
		merchantID: merchantID,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// GetResult looks up the settled state of a transaction. Used to
// double-check a webhook against the gateway's own record.
func (c *PaymentClient) GetResult(ctx context.Context, tid string) (*PaymentResult, error) {
	reqBody := struct {
		TID        string `json:"tid"`
		MerchantID string `json:"merchant_id"`
	}{TID: tid, MerchantID: c.merchantID}

	return c.post(ctx, "/payments/result", reqBody)
}

// Cancel asks the gateway to cancel or refund a transaction.
func (c *PaymentClient) Cancel(ctx context.Context, tid, reason string, amount int64) (*PaymentResult, error) {
	reqBody := struct {
		TID        string `json:"tid"`
		MerchantID string `json:"merchant_id"`
		Reason     string `json:"reason"`
		Amount     int64  `json:"amount"`
	}{TID: tid, MerchantID: c.merchantID, Reason: reason, Amount: amount}

	result, err := c.post(ctx, "/payments/cancel", reqBody)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "gateway cancellation requested",
		slog.String("tid", tid),
		slog.String("reason", reason),
	)

	return result, nil
}

func (c *PaymentClient) post(ctx context.Context, path string, reqBody any) (*PaymentResult, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.merchantID, c.apiKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "payment-gateway")
	}

	var result PaymentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	return &result, nil
}
