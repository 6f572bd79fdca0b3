package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/service"
)

// AdminHandler exposes the operator surface: approval queue actions, manual
// retries, and the stuck-withdrawals view.
type AdminHandler struct {
	withdrawals    *service.WithdrawalService
	reconciliation *service.ReconciliationService
}

func NewAdminHandler(withdrawals *service.WithdrawalService, reconciliation *service.ReconciliationService) *AdminHandler {
	return &AdminHandler{withdrawals: withdrawals, reconciliation: reconciliation}
}

func transactionIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// Approve handles POST /v1/admin/withdrawals/{id}/approve.
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil || !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	txID, ok := transactionIDParam(r)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transaction-id", "Invalid transaction ID")
		return
	}

	tx, err := h.withdrawals.Approve(r.Context(), txID, actorID)
	if err != nil {
		zap.L().Error("withdrawal approval failed", zap.Error(err), zap.String("transaction_id", txID.String()))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// Reject handles POST /v1/admin/withdrawals/{id}/reject. The debited amount
// plus fee is returned to the account.
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil || !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	txID, ok := transactionIDParam(r)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transaction-id", "Invalid transaction ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	tx, err := h.withdrawals.Reject(r.Context(), txID, actorID, req.Reason)
	if err != nil {
		zap.L().Error("withdrawal rejection failed", zap.Error(err), zap.String("transaction_id", txID.String()))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// Retry handles POST /v1/admin/withdrawals/{id}/retry.
func (h *AdminHandler) Retry(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil || !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	txID, ok := transactionIDParam(r)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transaction-id", "Invalid transaction ID")
		return
	}

	tx, err := h.withdrawals.Retry(r.Context(), txID, actorID)
	if err != nil {
		zap.L().Error("withdrawal retry failed", zap.Error(err), zap.String("transaction_id", txID.String()))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// StuckWithdrawals handles GET /v1/admin/withdrawals/stuck.
func (h *AdminHandler) StuckWithdrawals(w http.ResponseWriter, r *http.Request) {
	if _, isAdmin, err := requestActor(r); err != nil || !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	stuck, err := h.reconciliation.StuckWithdrawals(r.Context(), 100)
	if err != nil {
		zap.L().Error("stuck withdrawal listing failed", zap.Error(err))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, stuck)
}
