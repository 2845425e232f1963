package paymentmethod

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dispatchly/ledger-api/internal/middleware"
	"github.com/dispatchly/ledger-api/internal/pkg/errorhandler"
	"github.com/dispatchly/ledger-api/internal/pkg/response"
)

var errorMappings = []errorhandler.Mapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Code: "PAYMENT_METHOD_NOT_FOUND", Message: "Payment method not found"},
	{Err: ErrCannotDeleteDefault, Status: http.StatusConflict, Code: "CANNOT_DELETE_DEFAULT", Message: "Choose a replacement before deleting the default payment method"},
	{Err: ErrInvalidReplacement, Status: http.StatusBadRequest, Code: "INVALID_REPLACEMENT", Message: "Replacement payment method not found"},
}

type Handler struct {
	vault *Vault
}

func NewHandler(vault *Vault) *Handler {
	return &Handler{vault: vault}
}

// List handles GET /payment-methods
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	items, err := h.vault.List(r.Context(), owner)
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	if items == nil {
		items = []*PaymentMethod{}
	}
	response.OK(w, items)
}

// SetDefault handles PUT /payment-methods/{id}/default
func (h *Handler) SetDefault(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid payment method ID")
		return
	}

	m, err := h.vault.SetDefault(r.Context(), owner, id)
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, m)
}

// Delete handles DELETE /payment-methods/{id}?replacement_id=
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid payment method ID")
		return
	}

	var replacement *uuid.UUID
	if raw := r.URL.Query().Get("replacement_id"); raw != "" {
		rid, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid replacement_id")
			return
		}
		replacement = &rid
	}

	if err := h.vault.Delete(r.Context(), owner, id, replacement); err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	response.NoContent(w)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	r.Put("/{id}/default", h.SetDefault)
	r.Delete("/{id}", h.Delete)
	return r
}
