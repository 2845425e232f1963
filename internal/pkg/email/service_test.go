package email_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/internal/pkg/email"
	"github.com/dispatchly/ledger-api/internal/pkg/events"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*email.EmailMessage
}

func (r *recordingSender) Send(_ context.Context, msg *email.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

type recordingNotifier struct {
	events []events.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev events.Event) {
	r.events = append(r.events, ev)
}

func TestServiceMailsCodeAndRedactsEvent(t *testing.T) {
	sender := &recordingSender{}
	next := &recordingNotifier{}
	svc := email.NewService(sender, next)

	svc.Notify(context.Background(), events.Event{
		Type:      events.TypeWithdrawalOTP,
		Amount:    decimal.RequireFromString("60000"),
		Reference: "WDR-1",
		Data:      map[string]string{events.DataCode: "482913", events.DataEmail: "ada@example.com"},
	})
	svc.Notify(context.Background(), events.Event{Type: events.TypeWalletDebited, Reference: "WDR-1"})
	svc.Close()

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Contains(t, msg.HTMLContent, "482913")
	assert.Contains(t, msg.TextContent, "60000.00")

	require.Len(t, next.events, 2)
	assert.NotContains(t, next.events[0].Data, events.DataCode)
	assert.NotContains(t, next.events[0].Data, events.DataEmail)
	assert.Equal(t, events.TypeWalletDebited, next.events[1].Type)
}

func TestServiceWithoutRecipientStillForwards(t *testing.T) {
	sender := &recordingSender{}
	next := &recordingNotifier{}
	svc := email.NewService(sender, next)

	svc.Notify(context.Background(), events.Event{
		Type: events.TypeWithdrawalOTP,
		Data: map[string]string{events.DataCode: "111111"},
	})
	svc.Close()
	svc.Close()

	assert.Empty(t, sender.sent)
	require.Len(t, next.events, 1)
	assert.Empty(t, next.events[0].Data)
}

func TestSendGridClientSend(t *testing.T) {
	var got map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := email.NewSendGridClient(email.SendGridConfig{
		APIKey: "SG.test", FromEmail: "wallet@example.com", FromName: "Wallet", BaseURL: srv.URL,
	})
	err := client.Send(context.Background(), &email.EmailMessage{
		To: "ada@example.com", Subject: "Hi", TextContent: "plain", HTMLContent: "<p>html</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer SG.test", auth)
	assert.Equal(t, "Hi", got["subject"])
	content := got["content"].([]interface{})
	require.Len(t, content, 2)
	assert.Equal(t, "text/plain", content[0].(map[string]interface{})["type"])
}

func TestSendGridClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := email.NewSendGridClient(email.SendGridConfig{BaseURL: srv.URL})
	err := client.Send(context.Background(), &email.EmailMessage{To: "a@example.com", TextContent: "x"})
	assert.Error(t, err)
}
