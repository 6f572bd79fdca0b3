package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/repository"
	"github.com/spinforge/settlement/internal/service"
)

const testHMACKey = "webhook-test-key-0123456789abcdef"

func newWebhookFixture(t *testing.T) (*repository.MemStore, *WebhookHandler, uuid.UUID) {
	t.Helper()
	store := repository.NewMemStore()
	deposits := service.NewDepositService(store, service.NewLedgerService(store), domain.Rates{
		Deposit:    decimal.NewFromInt(1500),
		Withdrawal: decimal.NewFromInt(1450),
	})
	h := NewWebhookHandler(deposits, testHMACKey, false)

	account := &models.Account{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Username:    "webhook-user",
		CashBalance: decimal.Zero,
	}
	require.NoError(t, store.Queries().CreateAccount(context.Background(), account))
	return store, h, account.ID
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testHMACKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postDeposit(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/deposit", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.HandleDeposit(rec, req)
	return rec
}

func TestHandleDepositAppliesSignedNotification(t *testing.T) {
	store, h, accountID := newWebhookFixture(t)

	body, err := json.Marshal(map[string]any{
		"reference":         fmt.Sprintf("deposit_%s_1724800000", accountID),
		"amount":            "15000",
		"currency":          "NGN",
		"status":            "successful",
		"payment_reference": "pay_webhook_1",
	})
	require.NoError(t, err)

	rec := postDeposit(h, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "applied", resp["status"])
	require.Equal(t, "10.00", resp["credited"])

	account, err := store.Queries().GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, account.CashBalance.Equal(decimal.NewFromInt(10)))
}

func TestHandleDepositRejectsBadSignature(t *testing.T) {
	_, h, accountID := newWebhookFixture(t)

	body := []byte(fmt.Sprintf(`{"reference":"deposit_%s_1","amount":"500","status":"successful","payment_reference":"pay_sig"}`, accountID))

	rec := postDeposit(h, body, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = postDeposit(h, body, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleDepositReplayReturnsOriginal(t *testing.T) {
	store, h, accountID := newWebhookFixture(t)

	body, err := json.Marshal(map[string]any{
		"reference":         fmt.Sprintf("deposit_%s_1724800000", accountID),
		"amount":            "15000",
		"status":            "successful",
		"payment_reference": "pay_webhook_replay",
	})
	require.NoError(t, err)
	sig := signBody(body)

	first := postDeposit(h, body, sig)
	require.Equal(t, http.StatusOK, first.Code)
	var applied map[string]string
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &applied))

	second := postDeposit(h, body, sig)
	require.Equal(t, http.StatusOK, second.Code)
	var replay map[string]string
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &replay))
	require.Equal(t, "duplicate", replay["status"])
	require.Equal(t, applied["transaction_id"], replay["transaction_id"])

	account, err := store.Queries().GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, account.CashBalance.Equal(decimal.NewFromInt(10)))
}

func TestHandleDepositIgnoresFailedStatus(t *testing.T) {
	_, h, accountID := newWebhookFixture(t)

	body := []byte(fmt.Sprintf(`{"reference":"deposit_%s_1","amount":"500","status":"failed"}`, accountID))

	rec := postDeposit(h, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ignored", resp["status"])
}
