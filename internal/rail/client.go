package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
)

// Client is the outbound settlement rail. Calls happen outside any database
// transaction; a failed call must leave no ledger effect behind.
type Client interface {
	// VerifyBeneficiary resolves the payout destination into a short-lived
	// verification token. Tokens are single-attempt and must never be
	// cached across retries.
	VerifyBeneficiary(ctx context.Context, dest domain.PayoutDestination) (*Verification, error)
	// Transfer moves settlement-currency funds to a verified beneficiary.
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// Verification is the rail's confirmation that a destination exists.
type Verification struct {
	Token       string `json:"token"`
	AccountName string `json:"account_name"`
}

// TransferRequest carries one outbound payout attempt.
type TransferRequest struct {
	Token       string
	Destination domain.PayoutDestination
	Amount      decimal.Decimal
	Currency    string
	Reference   string
}

// TransferResult is the rail's verdict on one attempt.
type TransferResult struct {
	StatusCode     int    `json:"-"`
	ResponseCode   string `json:"response_code"`
	TransferStatus string `json:"status"`
	RailReference  string `json:"reference"`
	Message        string `json:"message,omitempty"`
}

// Succeeded reports whether the rail accepted the transfer. All three
// signals must agree; anything else is treated as a failed attempt.
func (r *TransferResult) Succeeded() bool {
	return r.StatusCode == http.StatusOK && r.ResponseCode == "00" && r.TransferStatus == "success"
}

// HTTPClient talks to the settlement rail over its JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) VerifyBeneficiary(ctx context.Context, dest domain.PayoutDestination) (*Verification, error) {
	body := map[string]any{"method": dest.Method}
	switch dest.Method {
	case domain.PayoutMethodBank:
		body["account_number"] = dest.Bank.AccountNumber
		body["bank_code"] = dest.Bank.BankCode
	case domain.PayoutMethodCrypto:
		body["address"] = dest.Crypto.Address
		body["network"] = dest.Crypto.Network
	default:
		return nil, fmt.Errorf("unsupported payout method %q", dest.Method)
	}

	var verification Verification
	status, err := c.post(ctx, "/beneficiaries/verify", body, &verification)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || verification.Token == "" {
		return nil, fmt.Errorf("beneficiary verification rejected with status %d", status)
	}
	return &verification, nil
}

func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	body := map[string]any{
		"token":     req.Token,
		"amount":    req.Amount.String(),
		"currency":  req.Currency,
		"reference": req.Reference,
	}

	var result TransferResult
	status, err := c.post(ctx, "/transfers", body, &result)
	if err != nil {
		return nil, err
	}
	result.StatusCode = status
	return &result, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode rail request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build rail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call rail: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read rail response: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode rail response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
