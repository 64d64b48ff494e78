package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/skip2/go-qrcode"
)

var ErrNoTickets = errors.New("no tickets to render")

const qrSize = 256

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

// RenderTickets lays out one block per ticket with its QR code. Used
// tickets stay on the sheet, marked as scanned.
func (p *MarotoProvider) RenderTickets(ctx context.Context, sheet TicketSheet) ([]byte, error) {
	if len(sheet.Tickets) == 0 {
		return nil, ErrNoTickets
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "{current} / {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, sheet.EventName, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, sheet.Labels.Title, props.Text{
			Size:  12,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New(sheet.Labels.Order+": "+sheet.OrderNumber, props.Text{Style: fontstyle.Bold}),
			text.New(sheet.Labels.Issued+": "+sheet.IssuedAt, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New(sheet.Labels.Holder, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(sheet.CustomerName, props.Text{Top: 5, Align: align.Right}),
			text.New(sheet.CustomerEmail, props.Text{Top: 10, Align: align.Right}),
		),
	)

	for i, t := range sheet.Tickets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		png, err := qrcode.Encode(t.Code, qrcode.Medium, qrSize)
		if err != nil {
			return nil, fmt.Errorf("encode qr: %w", err)
		}

		m.AddRow(4, line.NewCol(12))

		label := t.TicketType
		if t.Option != "" {
			label += " / " + t.Option
		}
		details := col.New(8).Add(
			text.New(fmt.Sprintf("%s %d", sheet.Labels.Ticket, i+1), props.Text{Size: 9}),
			text.New(label, props.Text{Top: 5, Size: 13, Style: fontstyle.Bold}),
			text.New(t.Code, props.Text{Top: 13, Size: 16, Style: fontstyle.Bold}),
			text.New(sheet.Labels.Price+": "+t.Price, props.Text{Top: 22, Size: 9}),
		)
		if t.Used {
			details.Add(text.New(sheet.Labels.Used, props.Text{Top: 28, Size: 9, Style: fontstyle.Italic}))
		}

		m.AddRow(45,
			details,
			image.NewFromBytesCol(4, png, extension.Png, props.Rect{
				Center:  true,
				Percent: 95,
			}),
		)
	}

	if sheet.Labels.Footnote != "" {
		m.AddRow(15,
			text.NewCol(12, sheet.Labels.Footnote, props.Text{Size: 8, Top: 6}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
