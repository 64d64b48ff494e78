// Package notification renders and sends customer emails: ticket
// confirmations with the PDF attached and payment reminders.
package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/internal/providers/email"
	"github.com/smallbiznis/boxoffice/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	DefaultAttempts       = 3
	DefaultAttemptTimeout = 5 * time.Second
	DefaultBudget         = 10 * time.Second
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Email   email.Provider
	PDF     pdf.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	email     email.Provider
	pdf       pdf.Provider
	log       *zap.Logger
	metrics   *metrics.Metrics
	eventName string
	baseURL   string
	templates map[string]*template.Template

	attempts       uint
	attemptTimeout time.Duration
	budget         time.Duration
	initialBackoff time.Duration
}

func New(p Params) (*Service, error) {
	templates := make(map[string]*template.Template)
	for _, kind := range []string{"confirmation", "reminder"} {
		for _, lang := range languages {
			name := kind + "_" + lang + ".html"
			t, err := template.ParseFS(templateFS, "templates/"+name)
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}
			templates[kind+"_"+lang] = t
		}
	}

	return &Service{
		email:          p.Email,
		pdf:            p.PDF,
		log:            p.Log.Named("notification"),
		metrics:        p.Metrics,
		eventName:      p.Config.AppName,
		baseURL:        p.Config.PublicBaseURL,
		templates:      templates,
		attempts:       DefaultAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		budget:         DefaultBudget,
		initialBackoff: 500 * time.Millisecond,
	}, nil
}

type lineView struct {
	Label    string
	Quantity int
	Amount   string
}

type confirmationView struct {
	EventName    string
	CustomerName string
	OrderNumber  string
	IsInvitation bool
	Lines        []lineView
	Discount     string
	Total        string
	DownloadURL  string
}

type reminderView struct {
	EventName    string
	CustomerName string
	OrderNumber  string
	Total        string
	PaymentURL   string
	Final        bool
}

// RenderTickets produces the PDF holding every valid or used item of o.
// Lines and Items must be loaded.
func (s *Service) RenderTickets(ctx context.Context, o domain.Order) ([]byte, error) {
	lang := Language(o.Language)
	sheet := pdf.TicketSheet{
		EventName:     s.eventName,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Labels:        catalog[lang].Labels,
	}
	if o.PaidAt != nil {
		sheet.IssuedAt = o.PaidAt.UTC().Format("2006-01-02 15:04")
	}

	lines := make(map[int64]domain.OrderLine, len(o.Lines))
	for _, l := range o.Lines {
		lines[int64(l.ID)] = l
	}
	for _, item := range o.Items {
		if item.Status == domain.ItemRefunded {
			continue
		}
		l := lines[int64(item.OrderLineID)]
		sheet.Tickets = append(sheet.Tickets, pdf.Ticket{
			Code:       item.TicketCode,
			TicketType: l.TicketTypeName,
			Option:     l.OptionName,
			Price:      FormatMoney(item.UnitPrice, o.Currency),
			Used:       item.Status == domain.ItemUsed,
		})
	}
	return s.pdf.RenderTickets(ctx, sheet)
}

func (s *Service) SendConfirmation(ctx context.Context, o domain.Order) error {
	lang := Language(o.Language)
	view := confirmationView{
		EventName:    s.eventName,
		CustomerName: o.CustomerName,
		OrderNumber:  o.OrderNumber,
		IsInvitation: o.IsInvitation,
		Total:        FormatMoney(o.FinalAmount, o.Currency),
		DownloadURL:  s.baseURL + "/api/orders/" + o.OrderNumber + "/tickets.pdf",
	}
	if o.DiscountAmount > 0 {
		view.Discount = FormatMoney(o.DiscountAmount, o.Currency)
	}
	for _, l := range o.Lines {
		label := l.TicketTypeName
		if l.OptionName != "" {
			label += " / " + l.OptionName
		}
		view.Lines = append(view.Lines, lineView{
			Label:    label,
			Quantity: l.Quantity,
			Amount:   FormatMoney(l.UnitPrice*int64(l.Quantity), o.Currency),
		})
	}

	body, err := s.render("confirmation_"+lang, view)
	if err != nil {
		return err
	}
	doc, err := s.RenderTickets(ctx, o)
	if err != nil {
		return fmt.Errorf("render tickets: %w", err)
	}

	subject := catalog[lang].ConfirmationSubject
	if o.IsInvitation {
		subject = catalog[lang].InvitationSubject
	}
	msg := email.Message{
		To:      []string{o.CustomerEmail},
		Subject: fmt.Sprintf(subject, s.eventName, o.OrderNumber),
		HTML:    body,
		Attachments: []email.Attachment{{
			Filename:    TicketsFilename(o.OrderNumber),
			ContentType: "application/pdf",
			Content:     doc,
		}},
	}
	return s.deliver(ctx, "confirmation", o, msg)
}

func (s *Service) SendReminder(ctx context.Context, o domain.Order, final bool) error {
	lang := Language(o.Language)
	view := reminderView{
		EventName:    s.eventName,
		CustomerName: o.CustomerName,
		OrderNumber:  o.OrderNumber,
		Total:        FormatMoney(o.FinalAmount, o.Currency),
		Final:        final,
	}
	if o.PaymentURL != nil {
		view.PaymentURL = *o.PaymentURL
	}
	body, err := s.render("reminder_"+lang, view)
	if err != nil {
		return err
	}
	msg := email.Message{
		To:      []string{o.CustomerEmail},
		Subject: fmt.Sprintf(catalog[lang].ReminderSubject, o.OrderNumber),
		HTML:    body,
	}
	return s.deliver(ctx, "reminder", o, msg)
}

func TicketsFilename(orderNumber string) string {
	return "tickets-" + orderNumber + ".pdf"
}

func (s *Service) render(name string, data any) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// deliver retries the send with exponential backoff inside a bounded budget.
func (s *Service) deliver(ctx context.Context, kind string, o domain.Order, msg email.Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
		if err := s.email.Send(sendCtx, msg); err != nil {
			s.log.Warn("email send attempt failed",
				zap.String("kind", kind),
				zap.String("order_number", o.OrderNumber),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.attempts),
		backoff.WithMaxElapsedTime(s.budget),
	)
	if err != nil {
		s.metrics.RecordEmailFailure(ctx, kind)
		s.log.Error("email delivery failed",
			zap.String("kind", kind),
			zap.String("order_number", o.OrderNumber),
			zap.Error(err),
		)
		return err
	}
	return nil
}
