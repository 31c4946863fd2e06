package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"phixall-server/config"
)

// PaymentResult is the gateway's answer to a settlement request.
type PaymentResult struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
	ErrorCode string `json:"error_code"`
}

// PaymentGateway settles the final amount for a job. A transport error or a
// timeout is treated exactly like a declined settlement by the caller.
type PaymentGateway interface {
	Settle(ctx context.Context, jobID uint, amount float64) (*PaymentResult, error)
}

// HTTPPaymentGateway talks to the external gateway over HTTP with a bounded
// timeout from config.
type HTTPPaymentGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPPaymentGateway(cfg config.PaymentConfig) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type settleRequest struct {
	JobID  uint    `json:"job_id"`
	Amount float64 `json:"amount"`
}

func (g *HTTPPaymentGateway) Settle(ctx context.Context, jobID uint, amount float64) (*PaymentResult, error) {
	payload, err := json.Marshal(settleRequest{JobID: jobID, Amount: amount})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/settlements", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var result PaymentResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("invalid payment gateway response: %w", err)
	}
	return &result, nil
}
