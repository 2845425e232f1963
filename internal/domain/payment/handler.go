package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchly/ledger-api/internal/domain/paymentmethod"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
	"github.com/dispatchly/ledger-api/internal/middleware"
	"github.com/dispatchly/ledger-api/internal/pkg/errorhandler"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
	"github.com/dispatchly/ledger-api/internal/pkg/response"
	"github.com/dispatchly/ledger-api/internal/pkg/validator"
)

const maxWebhookBody = 1 << 20

var errorMappings = []errorhandler.Mapping{
	{Err: ErrTransactionNotFound, Status: http.StatusNotFound, Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found"},
	{Err: ErrPaymentNotSuccessful, Status: http.StatusPaymentRequired, Code: "PAYMENT_NOT_SUCCESSFUL", Message: "Payment was not successful"},
	{Err: ErrAmountMismatch, Status: http.StatusConflict, Code: "AMOUNT_MISMATCH", Message: "Amount does not match"},
	{Err: ErrReferenceMismatch, Status: http.StatusConflict, Code: "REFERENCE_MISMATCH", Message: "Provider reference does not match"},
	{Err: ErrUnsupportedType, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Transaction type cannot be paid through the gateway"},
	{Err: transaction.ErrRegistrationMismatch, Status: http.StatusConflict, Code: "REGISTRATION_MISMATCH", Message: "Reference is registered to another account"},
	{Err: transaction.ErrDuplicateReference, Status: http.StatusConflict, Code: "DUPLICATE_REFERENCE", Message: "Reference already exists"},
	{Err: transaction.ErrInvalidReference, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Invalid reference"},
	{Err: transaction.ErrInvalidAmount, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Amount must be greater than zero"},
	{Err: wallet.ErrInvalidAmount, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Amount must be greater than zero"},
	{Err: wallet.ErrAmountPrecision, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Amount may have at most two decimal places"},
	{Err: paymentmethod.ErrNotFound, Status: http.StatusNotFound, Code: "PAYMENT_METHOD_NOT_FOUND", Message: "Payment method not found"},
}

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Initialize handles POST /payments/initialize
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var body InitializeBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&body); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	session, err := h.engine.InitializeFunding(r.Context(), owner, middleware.GetEmail(r.Context()), body.Amount)
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	response.Created(w, session)
}

// Register handles POST /payments/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var body RegisterBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&body); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	t, created, err := h.engine.RegisterFrontendPayment(r.Context(), RegisterParams{
		Reference:      body.Reference,
		Owner:          owner,
		Amount:         body.Amount,
		Purpose:        body.Purpose,
		Type:           transaction.Type(body.Type),
		ExpectedAmount: body.ExpectedAmount,
	})
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	if created {
		response.Created(w, t)
		return
	}
	response.OK(w, t)
}

// Verify handles GET /payments/verify/{reference}
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	res, err := h.engine.VerifyForOwner(r.Context(), owner, chi.URLParam(r, "reference"))
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, res)
}

// ChargeSaved handles POST /payments/charge-saved
func (h *Handler) ChargeSaved(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var body ChargeSavedBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&body); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	res, err := h.engine.ChargeSavedMethod(r.Context(), owner, middleware.GetEmail(r.Context()), body.PaymentMethodID, body.Amount)
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	if res.Pending {
		response.Accepted(w, res)
		return
	}
	response.OK(w, res)
}

// PaystackWebhook handles POST /webhooks/paystack. The provider only gets
// an acknowledgement back, never payment data.
func (h *Handler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Invalid body")
		return
	}

	err = h.engine.HandleWebhook(r.Context(), raw, r.Header.Get(paystack.SignatureHeader))
	switch {
	case err == nil:
		response.Ack(w)
	case errors.Is(err, ErrSignatureInvalid):
		response.Unauthorized(w, "invalid signature")
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Webhook processing failed", err)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/initialize", h.Initialize)
	r.Post("/register", h.Register)
	r.Get("/verify/{reference}", h.Verify)
	r.Post("/charge-saved", h.ChargeSaved)
	return r
}

// WebhookRoutes are mounted without authentication; the signature is the
// only credential.
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/paystack", h.PaystackWebhook)
	return r
}
