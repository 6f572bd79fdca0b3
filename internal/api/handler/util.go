package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spinforge/settlement/internal/api/middleware"
	"github.com/spinforge/settlement/internal/api/problem"
	"github.com/spinforge/settlement/internal/domain"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == "admin", nil
}

// respondDomainError maps ledger sentinels onto problem responses. Anything
// it does not recognize falls through to a 500.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownAccount):
		RespondError(w, r, http.StatusNotFound, "account/not-found", "account not found")
	case errors.Is(err, domain.ErrTransactionMissing):
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "transaction not found")
	case errors.Is(err, domain.ErrInsufficientFunds):
		RespondError(w, r, http.StatusUnprocessableEntity, "funds/insufficient", "insufficient funds")
	case errors.Is(err, domain.ErrNoDestination):
		RespondError(w, r, http.StatusBadRequest, "withdrawal/no-destination", "no payout destination configured")
	case errors.Is(err, domain.ErrMethodMismatch):
		RespondError(w, r, http.StatusBadRequest, "withdrawal/method-mismatch", err.Error())
	case errors.Is(err, domain.ErrBelowMinimum):
		RespondError(w, r, http.StatusBadRequest, "withdrawal/below-minimum", err.Error())
	case errors.Is(err, domain.ErrInvalidRecipient):
		RespondError(w, r, http.StatusBadRequest, "transfer/invalid-recipient", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		RespondError(w, r, http.StatusConflict, "transaction/invalid-transition", err.Error())
	case errors.Is(err, domain.ErrRetryUnavailable):
		RespondError(w, r, http.StatusConflict, "withdrawal/not-retryable", err.Error())
	case errors.Is(err, domain.ErrDuplicateReference):
		RespondError(w, r, http.StatusConflict, "reference/duplicate", "reference already recorded")
	case errors.Is(err, domain.ErrQuoteExpired):
		RespondError(w, r, http.StatusGone, "intent/quote-expired", "crypto quote has expired")
	case errors.Is(err, domain.ErrAlreadyLocked):
		RespondError(w, r, http.StatusConflict, "lock/already-locked", "account already has an active lock")
	case errors.Is(err, domain.ErrNoActiveLock):
		RespondError(w, r, http.StatusConflict, "lock/none-active", "no active lock on account")
	case errors.Is(err, domain.ErrFundsLocked):
		RespondError(w, r, http.StatusConflict, "lock/not-expired", "lock has not expired yet")
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
