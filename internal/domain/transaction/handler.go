package transaction

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchly/ledger-api/internal/middleware"
	"github.com/dispatchly/ledger-api/internal/pkg/errorhandler"
	"github.com/dispatchly/ledger-api/internal/pkg/response"
)

// Handler serves an entity's own transaction history.
type Handler struct {
	registrar *Registrar
}

func NewHandler(registrar *Registrar) *Handler {
	return &Handler{registrar: registrar}
}

// List handles GET /transactions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	q := r.URL.Query()
	f := ListFilter{
		Type:   Type(q.Get("type")),
		Status: Status(q.Get("status")),
	}
	if f.Type != "" && !f.Type.Valid() {
		response.ValidationError(w, map[string]string{"type": "Invalid transaction type"})
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		response.ValidationError(w, map[string]string{"status": "Invalid status"})
		return
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	f = f.Normalize()

	items, total, err := h.registrar.List(r.Context(), owner, f)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
		return
	}
	if items == nil {
		items = []*Transaction{}
	}

	response.WithMeta(w, items, response.NewMeta(total, f.Limit, f.Offset))
}

// Get handles GET /transactions/{reference}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	t, err := h.registrar.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
		return
	}
	if t == nil || !t.OwnedBy(owner) {
		response.Error(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "Transaction not found")
		return
	}

	response.OK(w, t)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	r.Get("/{reference}", h.Get)
	return r
}
