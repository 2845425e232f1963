// Package paystack is a minimal client for the Paystack REST API.
// Amounts cross this boundary in kobo; callers convert with ToMinor and
// FromMinor and never persist minor units.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dispatchly/ledger-api/internal/pkg/metrics"
)

const defaultTimeout = 30 * time.Second

// Config holds Paystack API configuration
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client represents the Paystack gateway client
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates new Paystack API client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// SecretKey is also the webhook signing secret.
func (c *Client) SecretKey() string {
	return c.config.SecretKey
}

// InitializeCharge opens a hosted checkout for the given reference.
func (c *Client) InitializeCharge(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if req.AmountMinor <= 0 {
		return nil, &Error{Op: "initialize", Message: "amount must be > 0"}
	}
	if strings.TrimSpace(req.Reference) == "" || strings.TrimSpace(req.Email) == "" {
		return nil, &Error{Op: "initialize", Message: "reference and email are required"}
	}

	var out InitializeResponse
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCharge asks the provider for the authoritative state of a charge.
func (c *Client) VerifyCharge(ctx context.Context, reference string) (*Charge, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, &Error{Op: "verify", Message: "reference is required"}
	}

	var out Charge
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, "verify", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChargeAuthorization debits a stored card token.
func (c *Client) ChargeAuthorization(ctx context.Context, req ChargeAuthorizationRequest) (*Charge, error) {
	if req.AmountMinor <= 0 || req.AuthorizationCode == "" {
		return nil, &Error{Op: "charge_authorization", Message: "amount and authorization code are required"}
	}

	var out Charge
	if err := c.do(ctx, "charge_authorization", http.MethodPost, "/transaction/charge_authorization", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTransferRecipient registers a NUBAN bank account and returns its recipient code.
func (c *Client) CreateTransferRecipient(ctx context.Context, accountNumber, bankCode, name string) (string, error) {
	req := recipientRequest{
		Type:          "nuban",
		Name:          name,
		AccountNumber: accountNumber,
		BankCode:      bankCode,
		Currency:      "NGN",
	}

	var out recipientResponse
	if err := c.do(ctx, "create_recipient", http.MethodPost, "/transferrecipient", req, &out); err != nil {
		return "", err
	}
	if out.RecipientCode == "" {
		return "", &Error{Op: "create_recipient", StatusCode: http.StatusOK, Message: "empty recipient code"}
	}
	return out.RecipientCode, nil
}

// CreateTransfer pays out from the merchant balance to a recipient.
func (c *Client) CreateTransfer(ctx context.Context, recipientCode string, amountMinor int64, reference, reason string) (*Transfer, error) {
	if amountMinor <= 0 {
		return nil, &Error{Op: "create_transfer", Message: "amount must be > 0"}
	}

	req := transferRequest{
		Source:    "balance",
		Amount:    amountMinor,
		Recipient: recipientCode,
		Reason:    reason,
		Reference: reference,
	}

	var out Transfer
	if err := c.do(ctx, "create_transfer", http.MethodPost, "/transfer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveGateway(op, err, started) }()

	if c == nil || c.httpClient == nil {
		return &Error{Op: op, Message: "client is not initialized"}
	}
	if c.config.SecretKey == "" {
		return &Error{Op: op, Message: "secret key is not configured"}
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return &Error{Op: op, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		msg := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return &Error{Op: op, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &Error{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("non-2xx status: %s", truncate(raw, 200))}
		}
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "decode response", Err: jsonErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "decode data", Err: err}
	}
	if ch, ok := out.(*Charge); ok {
		ch.Raw = append(json.RawMessage(nil), env.Data...)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
