package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/internal/providers/email"
	"github.com/smallbiznis/boxoffice/internal/providers/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyEmail struct {
	failures int
	calls    int
	sent     []email.Message
}

func (f *flakyEmail) Send(_ context.Context, msg email.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("smtp 421")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type capturePDF struct {
	sheet pdf.TicketSheet
}

func (c *capturePDF) RenderTickets(_ context.Context, sheet pdf.TicketSheet) ([]byte, error) {
	c.sheet = sheet
	return []byte("%PDF-test"), nil
}

func newService(t *testing.T, mail email.Provider, doc pdf.Provider) *Service {
	t.Helper()
	s, err := New(Params{
		Config: config.Config{AppName: "Codru Fest", PublicBaseURL: "https://tickets.example"},
		Log:    zap.NewNop(),
		Email:  mail,
		PDF:    doc,
	})
	require.NoError(t, err)
	s.initialBackoff = time.Millisecond
	return s
}

func paidOrder() domain.Order {
	paidAt := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:             1,
		OrderNumber:    "BO-260701-XYZ",
		CustomerName:   "Ion",
		CustomerEmail:  "ion@example.com",
		Language:       "ro",
		Currency:       "MDL",
		TotalAmount:    60000,
		DiscountAmount: 6000,
		FinalAmount:    54000,
		Status:         domain.StatusPaid,
		PaidAt:         &paidAt,
		Lines:          []domain.OrderLine{{ID: 10, TicketTypeName: "General", Quantity: 2, UnitPrice: 30000}},
		Items: []domain.OrderItem{
			{OrderLineID: 10, TicketCode: "AAAA-BBBB-CCCC", Status: domain.ItemValid, UnitPrice: 30000},
			{OrderLineID: 10, TicketCode: "DDDD-EEEE-FFFF", Status: domain.ItemUsed, UnitPrice: 30000},
		},
	}
}

func TestSendConfirmationRetriesThenSucceeds(t *testing.T) {
	mail := &flakyEmail{failures: 2}
	doc := &capturePDF{}
	s := newService(t, mail, doc)

	require.NoError(t, s.SendConfirmation(context.Background(), paidOrder()))
	assert.Equal(t, 3, mail.calls)
	require.Len(t, mail.sent, 1)

	msg := mail.sent[0]
	assert.Equal(t, []string{"ion@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "BO-260701-XYZ")
	assert.Contains(t, msg.Subject, "Biletele")
	assert.Contains(t, msg.HTML, "540.00 MDL")
	assert.Contains(t, msg.HTML, "https://tickets.example/api/orders/BO-260701-XYZ/tickets.pdf")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "tickets-BO-260701-XYZ.pdf", msg.Attachments[0].Filename)

	require.Len(t, doc.sheet.Tickets, 2)
	assert.True(t, doc.sheet.Tickets[1].Used)
	assert.Equal(t, "General", doc.sheet.Tickets[0].TicketType)
}

func TestSendConfirmationGivesUp(t *testing.T) {
	mail := &flakyEmail{failures: 10}
	s := newService(t, mail, &capturePDF{})

	err := s.SendConfirmation(context.Background(), paidOrder())
	assert.Error(t, err)
	assert.Equal(t, DefaultAttempts, mail.calls)
}

func TestRenderTicketsSkipsRefunded(t *testing.T) {
	doc := &capturePDF{}
	s := newService(t, &flakyEmail{}, doc)

	o := paidOrder()
	o.Items[0].Status = domain.ItemRefunded
	_, err := s.RenderTickets(context.Background(), o)
	require.NoError(t, err)
	require.Len(t, doc.sheet.Tickets, 1)
	assert.Equal(t, "DDDD-EEEE-FFFF", doc.sheet.Tickets[0].Code)
}

func TestSendReminderFallsBackToEnglish(t *testing.T) {
	mail := &flakyEmail{}
	s := newService(t, mail, &capturePDF{})

	o := paidOrder()
	o.Language = "de"
	url := "https://pay.example/tx"
	o.PaymentURL = &url

	require.NoError(t, s.SendReminder(context.Background(), o, true))
	require.Len(t, mail.sent, 1)
	assert.True(t, strings.HasPrefix(mail.sent[0].Subject, "Order BO-260701-XYZ"))
	assert.Contains(t, mail.sent[0].HTML, url)
	assert.Contains(t, mail.sent[0].HTML, "last reminder")
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "300.00 MDL", FormatMoney(30000, "MDL"))
	assert.Equal(t, "0.05 MDL", FormatMoney(5, "MDL"))
	assert.Equal(t, "-1.50 MDL", FormatMoney(-150, "MDL"))
}
