package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dvloznov/financio/internal/api/middleware"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/logger"
)

// CreditStore reads and provisions credit balances. Satisfied by *credits.Ledger.
type CreditStore interface {
	Status(ctx context.Context, userID string) (credits.Status, error)
	Provision(ctx context.Context, userID string, paid bool) (credits.Status, bool, error)
}

// CreditsHandler handles credit endpoints.
type CreditsHandler struct {
	ledger CreditStore
}

// NewCreditsHandler creates a new credits handler.
func NewCreditsHandler(ledger CreditStore) *CreditsHandler {
	return &CreditsHandler{ledger: ledger}
}

// GetCredits handles GET /api/credits/{userId}
func (h *CreditsHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := strings.TrimSpace(r.PathValue("userId"))

	status, err := h.ledger.Status(ctx, userID)
	if errors.Is(err, credits.ErrNotInitialized) {
		middleware.WriteErrorCode(w, http.StatusNotFound, "Rate limit not initialized. Please refresh the page.", CodeNotInitialized)
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to read credits")
		middleware.WriteErrorCode(w, http.StatusInternalServerError, "Database error", CodeStoreError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, status)
}

// ProvisionCredits handles POST /api/credits/{userId}. Existing balances
// are returned unchanged.
func (h *CreditsHandler) ProvisionCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := strings.TrimSpace(r.PathValue("userId"))

	status, created, err := h.ledger.Provision(ctx, userID, false)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to provision credits")
		middleware.WriteErrorCode(w, http.StatusInternalServerError, "Database error", CodeStoreError)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	middleware.WriteJSON(w, code, status)
}
