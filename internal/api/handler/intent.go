package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/service"
)

type IntentHandler struct {
	svc *service.IntentService
}

func NewIntentHandler(svc *service.IntentService) *IntentHandler {
	return &IntentHandler{svc: svc}
}

// Create handles POST /v1/deposits/crypto/intents.
func (h *IntentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Asset  string          `json:"asset"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.Asset == "" || !req.Amount.IsPositive() {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-intent", "asset and a positive amount are required")
		return
	}

	intent, err := h.svc.CreateIntent(r.Context(), actorID, req.Asset, req.Amount)
	if err != nil {
		zap.L().Error("create deposit intent failed", zap.Error(err), zap.String("user_id", actorID.String()))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, intent)
}

// Confirm handles POST /v1/deposits/crypto/intents/{id}/confirm. Called by
// the chain watcher once the payment reaches finality.
func (h *IntentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	intentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-intent-id", "Invalid intent ID")
		return
	}

	var req struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.TxHash == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-tx-hash", "tx_hash is required")
		return
	}

	outcome, err := h.svc.ConfirmIntent(r.Context(), intentID, req.TxHash)
	if err != nil {
		zap.L().Warn("confirm deposit intent failed", zap.Error(err), zap.String("intent_id", intentID.String()))
		respondDomainError(w, r, err)
		return
	}

	if outcome.Duplicate {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":         "applied",
		"transaction_id": outcome.TransactionID.String(),
		"credited":       outcome.Credited.StringFixed(2),
	})
}
