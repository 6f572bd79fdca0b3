package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/observability"
	"github.com/spinforge/settlement/internal/service"
)

// WebhookHandler receives settlement-rail callbacks.
type WebhookHandler struct {
	svc     *service.DepositService
	hmacKey []byte
	skipSig bool
}

// NewWebhookHandler creates a WebhookHandler. skipSignature disables HMAC
// verification for local development only.
func NewWebhookHandler(svc *service.DepositService, hmacKey string, skipSignature bool) *WebhookHandler {
	return &WebhookHandler{
		svc:     svc,
		hmacKey: []byte(hmacKey),
		skipSig: skipSignature,
	}
}

// HandleDeposit handles POST /v1/webhooks/deposit. It verifies the HMAC
// signature and reconciles the deposit; replays return the original
// transaction with a duplicate marker.
func (h *WebhookHandler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	if !h.verifyHMAC(body, r.Header.Get("X-Webhook-Signature")) {
		observability.IncrementWebhookOutcome("bad_signature")
		RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
		return
	}

	var notification service.DepositNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		observability.IncrementWebhookOutcome("bad_payload")
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid webhook payload")
		return
	}

	outcome, err := h.svc.Reconcile(r.Context(), notification)
	if err != nil {
		observability.IncrementWebhookOutcome("error")
		zap.L().Error("deposit reconciliation failed",
			zap.Error(err),
			zap.String("reference", notification.ExternalReference))
		respondDomainError(w, r, err)
		return
	}

	switch {
	case outcome.Ignored:
		observability.IncrementWebhookOutcome("ignored")
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	case outcome.Duplicate:
		observability.IncrementWebhookOutcome("duplicate")
		RespondJSON(w, http.StatusOK, map[string]string{
			"status":         "duplicate",
			"transaction_id": outcome.TransactionID.String(),
		})
	default:
		observability.IncrementWebhookOutcome("applied")
		RespondJSON(w, http.StatusOK, map[string]string{
			"status":         "applied",
			"transaction_id": outcome.TransactionID.String(),
			"credited":       outcome.CreditedAmount.StringFixed(2),
		})
	}
}

func (h *WebhookHandler) verifyHMAC(payload []byte, signature string) bool {
	if h.skipSig {
		return true
	}
	if len(h.hmacKey) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.hmacKey)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
