package paystack

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Charge statuses reported by transaction/verify and charge_authorization.
const (
	ChargeSuccess   = "success"
	ChargeFailed    = "failed"
	ChargeAbandoned = "abandoned"
	ChargeReversed  = "reversed"
)

// Transfer statuses reported by transfer creation.
const (
	TransferPending = "pending"
	TransferSuccess = "success"
	TransferOTP     = "otp"
	TransferFailed  = "failed"
)

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type InitializeRequest struct {
	Email       string            `json:"email"`
	AmountMinor int64             `json:"amount"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Authorization is a reusable card token returned with a successful charge.
type Authorization struct {
	AuthorizationCode string `json:"authorization_code"`
	CardType          string `json:"card_type"`
	Last4             string `json:"last4"`
	ExpMonth          string `json:"exp_month"`
	ExpYear           string `json:"exp_year"`
	Bank              string `json:"bank"`
	Brand             string `json:"brand"`
	Signature         string `json:"signature"`
	Channel           string `json:"channel"`
	Reusable          bool   `json:"reusable"`
}

type Customer struct {
	Email string `json:"email"`
}

// Charge is the provider's view of one payment.
type Charge struct {
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	AmountMinor     int64           `json:"amount"`
	Currency        string          `json:"currency"`
	GatewayResponse string          `json:"gateway_response"`
	PaidAt          *time.Time      `json:"paid_at"`
	Authorization   *Authorization  `json:"authorization"`
	Customer        *Customer       `json:"customer"`
	Raw             json.RawMessage `json:"-"`
}

// Amount returns the charged amount in major units.
func (c *Charge) Amount() decimal.Decimal {
	return FromMinor(c.AmountMinor)
}

func (c *Charge) Successful() bool {
	return c.Status == ChargeSuccess
}

// ReusableAuthorization returns the card token if it can be charged again.
func (c *Charge) ReusableAuthorization() *Authorization {
	if c.Authorization == nil || !c.Authorization.Reusable || c.Authorization.AuthorizationCode == "" {
		return nil
	}
	return c.Authorization
}

type ChargeAuthorizationRequest struct {
	AuthorizationCode string            `json:"authorization_code"`
	Email             string            `json:"email"`
	AmountMinor       int64             `json:"amount"`
	Reference         string            `json:"reference"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type recipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type recipientResponse struct {
	RecipientCode string `json:"recipient_code"`
}

type transferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"reference"`
}

type Transfer struct {
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Reference    string `json:"reference"`
}
