package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/service"
)

type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

// Transfer handles POST /v1/transfers. Recipient is an account id or a
// username.
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Recipient string          `json:"recipient"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if !req.Amount.IsPositive() {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be positive")
		return
	}

	result, err := h.svc.Transfer(r.Context(), actorID, req.Recipient, req.Amount)
	if err != nil {
		zap.L().Error("transfer failed", zap.Error(err), zap.String("user_id", actorID.String()))
		respondDomainError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"transaction_id": result.DebitTransaction.ID.String(),
		"recipient":      result.Recipient,
		"amount":         domain.FormatAmount(req.Amount),
		"new_balance":    domain.FormatAmount(result.NewBalance),
	})
}
