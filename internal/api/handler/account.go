package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/api/middleware"
	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/service"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// Provision handles POST /v1/accounts. Idempotent: a second call for the
// same user returns the existing account.
func (h *AccountHandler) Provision(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	username := middleware.UsernameFromContext(r.Context())
	var req struct {
		Username string `json:"username"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Username != "" {
		username = req.Username
	}
	if username == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-username", "username is required")
		return
	}

	account, err := h.svc.Provision(r.Context(), actorID, username)
	if err != nil {
		zap.L().Error("provision account failed", zap.Error(err), zap.String("user_id", actorID.String()))
		respondDomainError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, account)
}

// Me handles GET /v1/accounts/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	account, err := h.svc.GetByUser(r.Context(), actorID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// SetDestination handles PUT /v1/accounts/me/destination.
func (h *AccountHandler) SetDestination(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var dest domain.PayoutDestination
	if err := json.NewDecoder(r.Body).Decode(&dest); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if err := dest.Validate(); err != nil {
		RespondError(w, r, http.StatusBadRequest, "destination/invalid", err.Error())
		return
	}

	account, err := h.svc.SetDestination(r.Context(), actorID, dest)
	if err != nil {
		zap.L().Error("set destination failed", zap.Error(err), zap.String("user_id", actorID.String()))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// Statement handles GET /v1/accounts/me/statement.
func (h *AccountHandler) Statement(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	account, err := h.svc.GetByUser(r.Context(), actorID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	entries, err := h.svc.Statement(r.Context(), account.ID, page, pageSize)
	if err != nil {
		zap.L().Error("get statement failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		respondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}
