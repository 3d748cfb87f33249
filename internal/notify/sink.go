package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog/log"
)

// Sink delivers one message to one address. Best effort: implementations
// report success as a bool and never panic or propagate transport errors to
// the caller. The sweep treats a false return as a logged, tolerated outcome.
type Sink interface {
	Send(ctx context.Context, toEmail, subject, body string) bool
}

// LogSink writes notifications to the log instead of delivering them.
// Used in development and whenever SMTP is not configured.
type LogSink struct{}

func (LogSink) Send(_ context.Context, toEmail, subject, body string) bool {
	log.Info().Str("to", toEmail).Str("subject", subject).Str("body", body).Msg("notification (log sink)")
	return true
}

// SMTPSink delivers mail through a plain SMTP relay.
type SMTPSink struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

func NewSMTPSink(host string, port int, from, username, password string) *SMTPSink {
	s := &SMTPSink{
		Addr: fmt.Sprintf("%s:%d", host, port),
		From: from,
	}
	if username != "" {
		s.Auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

func (s *SMTPSink) Send(_ context.Context, toEmail, subject, body string) bool {
	msg := []byte("From: " + s.From + "\r\n" +
		"To: " + toEmail + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body + "\r\n")
	if err := smtp.SendMail(s.Addr, s.Auth, s.From, []string{toEmail}, msg); err != nil {
		log.Error().Err(err).Str("to", toEmail).Str("subject", subject).Msg("smtp send failed")
		return false
	}
	return true
}
