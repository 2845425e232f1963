package withdrawal

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
	"github.com/dispatchly/ledger-api/internal/middleware"
	"github.com/dispatchly/ledger-api/internal/pkg/errorhandler"
	"github.com/dispatchly/ledger-api/internal/pkg/response"
	"github.com/dispatchly/ledger-api/internal/pkg/validator"
)

var errorMappings = []errorhandler.Mapping{
	{Err: wallet.ErrInsufficientBalance, Status: http.StatusConflict, Code: "INSUFFICIENT_BALANCE", Message: "Insufficient wallet balance"},
	{Err: wallet.ErrInvalidAmount, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Amount must be greater than zero"},
	{Err: wallet.ErrAmountPrecision, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Amount may have at most two decimal places"},
	{Err: wallet.ErrWalletNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "Wallet not found"},
	{Err: ErrInvalidAccount, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Account number and bank code are required"},
	{Err: ErrTransactionNotFound, Status: http.StatusNotFound, Code: "TRANSACTION_NOT_FOUND", Message: "Withdrawal not found"},
	{Err: ErrOTPNotFound, Status: http.StatusNotFound, Code: "OTP_NOT_FOUND", Message: "No pending verification code for this withdrawal"},
	{Err: ErrOTPExpired, Status: http.StatusBadRequest, Code: "OTP_EXPIRED", Message: "Verification code has expired"},
	{Err: ErrOTPMaxAttempts, Status: http.StatusTooManyRequests, Code: "OTP_MAX_ATTEMPTS", Message: "Too many incorrect attempts"},
	{Err: ErrOTPInvalid, Status: http.StatusBadRequest, Code: "INVALID_CODE", Message: "Invalid verification code"},
	{Err: ErrOTPTooSoon, Status: http.StatusTooManyRequests, Code: "OTP_TOO_SOON", Message: "Please wait before requesting a new code"},
	{Err: transaction.ErrInvalidTransition, Status: http.StatusConflict, Code: "WITHDRAWAL_CLOSED", Message: "Withdrawal can no longer be confirmed"},
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /withdrawals
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var body WithdrawBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&body); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	result, err := h.service.Withdraw(r.Context(), WithdrawRequest{
		Owner:         owner,
		Amount:        body.Amount,
		AccountNumber: body.AccountNumber,
		BankCode:      body.BankCode,
		AccountName:   body.AccountName,
		Reason:        body.Reason,
		Email:         middleware.GetEmail(r.Context()),
	})
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}

	response.Created(w, result)
}

// ConfirmOTP handles POST /withdrawals/{reference}/otp
func (h *Handler) ConfirmOTP(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var body OTPBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&body); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	t, err := h.service.FinalizeOTP(r.Context(), owner, chi.URLParam(r, "reference"), body.Code)
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, t)
}

// ResendOTP handles POST /withdrawals/{reference}/otp/resend
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetEntity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	challenge, err := h.service.ResendOTP(r.Context(), owner, chi.URLParam(r, "reference"))
	if err != nil {
		errorhandler.Write(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, challenge)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Post("/{reference}/otp", h.ConfirmOTP)
	r.Post("/{reference}/otp/resend", h.ResendOTP)
	return r
}
