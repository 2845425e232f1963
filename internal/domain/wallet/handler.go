package wallet

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchly/ledger-api/internal/middleware"
	"github.com/dispatchly/ledger-api/internal/pkg/errorhandler"
	"github.com/dispatchly/ledger-api/internal/pkg/response"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// Balance returns the caller's spendable and pending balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	ref, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	wlt, err := h.ledger.Balance(r.Context(), ref)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			response.NotFound(w, "wallet not found")
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
		return
	}

	response.OK(w, wlt)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.Balance)
	return r
}
