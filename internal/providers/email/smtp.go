package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/smtp"

	"github.com/jordan-wright/email"
)

var ErrNoRecipients = errors.New("email has no recipients")

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

type SMTPProvider struct {
	cfg  Config
	send func(addr string, auth smtp.Auth, e *email.Email) error
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{
		cfg: cfg,
		send: func(addr string, auth smtp.Auth, e *email.Email) error {
			return e.Send(addr, auth)
		},
	}
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	e, err := p.build(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	// The smtp client has no context support; abandon the send when ctx ends.
	done := make(chan error, 1)
	go func() {
		done <- p.send(addr, auth, e)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *SMTPProvider) build(msg Message) (*email.Email, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}

	e := email.NewEmail()
	e.From = (&mail.Address{Name: p.cfg.FromName, Address: p.cfg.FromEmail}).String()
	e.To = msg.To
	e.Subject = msg.Subject
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	if msg.Text != "" {
		e.Text = []byte(msg.Text)
	}
	for _, a := range msg.Attachments {
		if _, err := e.Attach(bytes.NewReader(a.Content), a.Filename, a.ContentType); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return e, nil
}
