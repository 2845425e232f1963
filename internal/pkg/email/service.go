package email

import (
	"bytes"
	"context"
	"html/template"
	"sync"
	texttemplate "text/template"

	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/pkg/events"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// Service mails withdrawal confirmation codes to the account holder and
// passes every event on to next. The code and the address are removed
// before an event leaves the service, so neither reaches the event bus.
type Service struct {
	sender Sender
	next   events.Notifier

	base *template.Template
	html *template.Template
	text *texttemplate.Template

	queue chan *EmailMessage
	wg    sync.WaitGroup
	once  sync.Once
}

// NewService starts the send worker. next may be nil.
func NewService(sender Sender, next events.Notifier) *Service {
	if next == nil {
		next = events.Nop{}
	}
	s := &Service{
		sender: sender,
		next:   next,
		base:   template.Must(template.New("base").Parse(baseTemplate)),
		html:   template.Must(template.New("withdrawal_otp").Parse(withdrawalOTPTemplate)),
		text:   texttemplate.Must(texttemplate.New("withdrawal_otp_text").Parse(withdrawalOTPText)),
		queue:  make(chan *EmailMessage, 100),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

func (s *Service) worker() {
	defer s.wg.Done()

	for msg := range s.queue {
		if err := s.sender.Send(context.Background(), msg); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to send email")
		}
	}
}

// Notify implements events.Notifier.
func (s *Service) Notify(ctx context.Context, ev events.Event) {
	if ev.Type == events.TypeWithdrawalOTP {
		to := ev.Data[events.DataEmail]
		code := ev.Data[events.DataCode]
		if to != "" && code != "" {
			s.queueOTP(to, code, ev)
		} else {
			log.Warn().Str("reference", ev.Reference).Msg("Withdrawal code has no email recipient")
		}
	}
	s.next.Notify(ctx, redact(ev))
}

func (s *Service) queueOTP(to, code string, ev events.Event) {
	data := map[string]string{
		"Code":      code,
		"Amount":    ev.Amount.StringFixed(2),
		"Reference": ev.Reference,
	}

	msg, err := s.render("Confirm your withdrawal", to, data)
	if err != nil {
		log.Error().Err(err).Str("reference", ev.Reference).Msg("Failed to render withdrawal code email")
		return
	}

	select {
	case s.queue <- msg:
	default:
		log.Warn().Str("reference", ev.Reference).Msg("Email queue full, dropping email")
	}
}

func (s *Service) render(subject, to string, data interface{}) (*EmailMessage, error) {
	var content bytes.Buffer
	if err := s.html.Execute(&content, data); err != nil {
		return nil, err
	}
	var html bytes.Buffer
	if err := s.base.Execute(&html, map[string]interface{}{
		"Content": template.HTML(content.String()),
	}); err != nil {
		return nil, err
	}
	var text bytes.Buffer
	if err := s.text.Execute(&text, data); err != nil {
		return nil, err
	}
	return &EmailMessage{
		To:          to,
		Subject:     subject,
		HTMLContent: html.String(),
		TextContent: text.String(),
	}, nil
}

// Close drains the queue.
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.queue)
		s.wg.Wait()
	})
}

func redact(ev events.Event) events.Event {
	if len(ev.Data) == 0 {
		return ev
	}
	_, hasCode := ev.Data[events.DataCode]
	_, hasEmail := ev.Data[events.DataEmail]
	if !hasCode && !hasEmail {
		return ev
	}
	data := make(map[string]string, len(ev.Data))
	for k, v := range ev.Data {
		if k != events.DataCode && k != events.DataEmail {
			data[k] = v
		}
	}
	ev.Data = data
	return ev
}
