package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/service"
)

type LockHandler struct {
	ledger   *service.LedgerService
	accounts *service.AccountService
}

func NewLockHandler(ledger *service.LedgerService, accounts *service.AccountService) *LockHandler {
	return &LockHandler{ledger: ledger, accounts: accounts}
}

// Lock handles POST /v1/accounts/me/locks.
func (h *LockHandler) Lock(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Amount       decimal.Decimal `json:"amount"`
		DurationDays int             `json:"duration_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if !req.Amount.IsPositive() || req.DurationDays <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-lock", "amount and duration_days must be positive")
		return
	}

	account, err := h.accounts.GetByUser(r.Context(), actorID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	tx, err := h.ledger.LockFunds(r.Context(), account.ID, req.Amount, req.DurationDays)
	if err != nil {
		zap.L().Error("lock funds failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}

// Unlock handles DELETE /v1/accounts/me/locks.
func (h *LockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	account, err := h.accounts.GetByUser(r.Context(), actorID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	tx, err := h.ledger.UnlockFunds(r.Context(), account.ID)
	if err != nil {
		zap.L().Error("unlock funds failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}
