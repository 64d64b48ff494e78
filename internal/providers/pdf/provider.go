package pdf

import "context"

type Ticket struct {
	Code       string
	TicketType string
	Option     string
	Price      string
	Used       bool
}

// Labels are the translated captions printed on the sheet.
type Labels struct {
	Title    string
	Order    string
	Holder   string
	Issued   string
	Ticket   string
	Price    string
	Used     string
	Footnote string
}

type TicketSheet struct {
	EventName     string
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	IssuedAt      string
	Tickets       []Ticket
	Labels        Labels
}

type Provider interface {
	RenderTickets(ctx context.Context, sheet TicketSheet) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) RenderTickets(ctx context.Context, sheet TicketSheet) ([]byte, error) {
	return []byte("%PDF-1.3\n%%EOF\n"), nil
}
