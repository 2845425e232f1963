package ledgertest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
)

// TransferCall records one CreateTransfer request.
type TransferCall struct {
	RecipientCode string
	AmountMinor   int64
	Reference     string
	Reason        string
}

// Gateway is a scripted payment provider. Charges maps references to the
// outcome VerifyCharge reports; unknown references fail with a 404
// provider error, as the real API does.
type Gateway struct {
	mu sync.Mutex

	charges   map[string]paystack.Charge
	calls     map[string]int
	transfers []TransferCall

	InitializeErr  error
	VerifyErr      error
	ChargeAuthErr  error
	RecipientErr   error
	TransferErr    error
	ChargeAuthWith string // status returned by ChargeAuthorization, success when empty
}

func NewGateway() *Gateway {
	return &Gateway{charges: make(map[string]paystack.Charge), calls: make(map[string]int)}
}

// SetCharge scripts the provider's answer for reference.
func (g *Gateway) SetCharge(reference, status string, amount decimal.Decimal, auth *paystack.Authorization) {
	g.mu.Lock()
	defer g.mu.Unlock()
	raw, _ := json.Marshal(map[string]interface{}{
		"reference": reference,
		"status":    status,
		"amount":    paystack.ToMinor(amount),
	})
	g.charges[reference] = paystack.Charge{
		Status:        status,
		Reference:     reference,
		AmountMinor:   paystack.ToMinor(amount),
		Currency:      "NGN",
		Authorization: auth,
		Raw:           raw,
	}
}

// Calls returns how often op was invoked.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *Gateway) Transfers() []TransferCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]TransferCall(nil), g.transfers...)
}

func (g *Gateway) count(op string) {
	g.mu.Lock()
	g.calls[op]++
	g.mu.Unlock()
}

func (g *Gateway) InitializeCharge(_ context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error) {
	g.count("initialize")
	if g.InitializeErr != nil {
		return nil, g.InitializeErr
	}
	return &paystack.InitializeResponse{
		AuthorizationURL: "https://checkout.paystack.test/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *Gateway) VerifyCharge(_ context.Context, reference string) (*paystack.Charge, error) {
	g.count("verify")
	if g.VerifyErr != nil {
		return nil, g.VerifyErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.charges[reference]
	if !ok {
		return nil, &paystack.Error{Op: "verify", StatusCode: http.StatusNotFound, Message: "Transaction reference not found"}
	}
	return &c, nil
}

func (g *Gateway) ChargeAuthorization(_ context.Context, req paystack.ChargeAuthorizationRequest) (*paystack.Charge, error) {
	g.count("charge_authorization")
	if g.ChargeAuthErr != nil {
		return nil, g.ChargeAuthErr
	}
	status := g.ChargeAuthWith
	if status == "" {
		status = paystack.ChargeSuccess
	}
	g.SetCharge(req.Reference, status, paystack.FromMinor(req.AmountMinor), nil)

	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.charges[req.Reference]
	return &c, nil
}

func (g *Gateway) CreateTransferRecipient(_ context.Context, accountNumber, _, _ string) (string, error) {
	g.count("recipient")
	if g.RecipientErr != nil {
		return "", g.RecipientErr
	}
	return "RCP_" + accountNumber, nil
}

func (g *Gateway) CreateTransfer(_ context.Context, recipientCode string, amountMinor int64, reference, reason string) (*paystack.Transfer, error) {
	g.count("transfer")
	if g.TransferErr != nil {
		return nil, g.TransferErr
	}
	g.mu.Lock()
	g.transfers = append(g.transfers, TransferCall{
		RecipientCode: recipientCode,
		AmountMinor:   amountMinor,
		Reference:     reference,
		Reason:        reason,
	})
	g.mu.Unlock()
	return &paystack.Transfer{TransferCode: "TRF_" + reference, Status: paystack.TransferPending, Reference: reference}, nil
}
