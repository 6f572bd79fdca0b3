package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/service"
)

type WithdrawalHandler struct {
	svc *service.WithdrawalService
}

func NewWithdrawalHandler(svc *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: svc}
}

type withdrawalResponse struct {
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	Amount           string `json:"amount"`
	Fee              string `json:"fee"`
	SettlementAmount string `json:"settlement_amount"`
	NewBalance       string `json:"new_balance"`
}

// Request handles POST /v1/withdrawals. The response status is soft: a rail
// failure after the debit reads as "processing".
func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Method string          `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if !req.Amount.IsPositive() {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be positive")
		return
	}

	result, err := h.svc.Request(r.Context(), actorID, req.Amount, req.Method)
	if err != nil {
		zap.L().Error("withdrawal request failed", zap.Error(err), zap.String("user_id", actorID.String()))
		respondDomainError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusAccepted, withdrawalResponse{
		TransactionID:    result.Transaction.ID.String(),
		Status:           result.Status,
		Amount:           domain.FormatAmount(result.Transaction.Amount),
		Fee:              domain.FormatAmount(result.Fee),
		SettlementAmount: domain.FormatAmount(result.SettlementAmount),
		NewBalance:       domain.FormatAmount(result.Transaction.BalanceAfter),
	})
}
