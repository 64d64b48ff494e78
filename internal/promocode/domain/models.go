package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/boxoffice/internal/discount"
)

type PromoCode struct {
	ID                   snowflake.ID  `gorm:"primaryKey" json:"id"`
	Code                 string        `gorm:"column:code" json:"code"`
	Description          string        `gorm:"column:description" json:"description,omitempty"`
	DiscountPercent      *int          `gorm:"column:discount_percent" json:"discount_percent,omitempty"`
	DiscountAmount       *int64        `gorm:"column:discount_amount" json:"discount_amount,omitempty"`
	UsageLimit           *int          `gorm:"column:usage_limit" json:"usage_limit,omitempty"`
	UsedCount            int           `gorm:"column:used_count" json:"used_count"`
	ValidFrom            *time.Time    `gorm:"column:valid_from" json:"valid_from,omitempty"`
	ValidUntil           *time.Time    `gorm:"column:valid_until" json:"valid_until,omitempty"`
	MinOrderAmount       int64         `gorm:"column:min_order_amount" json:"min_order_amount"`
	AllowedTicketTypeIDs pq.Int64Array `gorm:"column:allowed_ticket_type_ids;type:bigint[]" json:"allowed_ticket_type_ids,omitempty"`
	OnePerEmail          bool          `gorm:"column:one_per_email" json:"one_per_email"`
	IsActive             bool          `gorm:"column:is_active" json:"is_active"`
	CreatedAt            time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (PromoCode) TableName() string { return "promo_codes" }

// Terms exposes the fields pricing depends on.
func (p *PromoCode) Terms() *discount.PromoTerms {
	if p == nil {
		return nil
	}
	return &discount.PromoTerms{
		ID:                   int64(p.ID),
		Code:                 p.Code,
		Percent:              p.DiscountPercent,
		Amount:               p.DiscountAmount,
		UsageLimit:           p.UsageLimit,
		UsedCount:            p.UsedCount,
		ValidFrom:            p.ValidFrom,
		ValidUntil:           p.ValidUntil,
		MinOrderAmount:       p.MinOrderAmount,
		AllowedTicketTypeIDs: []int64(p.AllowedTicketTypeIDs),
		OnePerEmail:          p.OnePerEmail,
		IsActive:             p.IsActive,
	}
}
