// Package discount prices a cart under exactly one discount policy: a promo
// code, the B2B quantity tiers, or none. It performs no I/O; callers load the
// promo terms and prior-use counts and pass them in.
package discount

import (
	"regexp"
	"strings"
	"time"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

type Kind string

const (
	KindNone         Kind = "none"
	KindPromoPercent Kind = "promo_percent"
	KindPromoAmount  Kind = "promo_amount"
	KindTier         Kind = "tier"
)

// Reason is the machine-readable cause of a rejected discount.
type Reason string

const (
	ReasonNotFound             Reason = "not_found"
	ReasonInactive             Reason = "inactive"
	ReasonNotYetValid          Reason = "not_yet_valid"
	ReasonExpired              Reason = "expired"
	ReasonMinimumNotMet        Reason = "minimum_not_met"
	ReasonTicketNotEligible    Reason = "ticket_not_eligible"
	ReasonUsageExhausted       Reason = "usage_exhausted"
	ReasonAlreadyUsedByEmail   Reason = "already_used_by_email"
	ReasonQuantityBelowMinimum Reason = "quantity_below_minimum"
)

type Line struct {
	TicketTypeID int64
	Quantity     int
	UnitPrice    int64
}

type Cart struct {
	Lines []Line
}

func (c Cart) Subtotal() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.UnitPrice * int64(l.Quantity)
	}
	return total
}

func (c Cart) TotalQuantity() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// PromoTerms is the subset of a stored promo code that pricing depends on.
// Exactly one of Percent and Amount is set.
type PromoTerms struct {
	ID                   int64
	Code                 string
	Percent              *int
	Amount               *int64
	UsageLimit           *int
	UsedCount            int
	ValidFrom            *time.Time
	ValidUntil           *time.Time
	MinOrderAmount       int64
	AllowedTicketTypeIDs []int64
	OnePerEmail          bool
	IsActive             bool
}

// Policy is one of None, Promo or Tiered.
type Policy interface {
	policy()
}

type None struct{}

// Promo applies a promo code. Terms is nil when no code matched.
// PriorUses counts earlier qualifying orders by the same email and only
// matters for one-per-email codes.
type Promo struct {
	Code      string
	Terms     *PromoTerms
	PriorUses int
}

type Tiered struct {
	Table TierTable
}

func (None) policy()   {}
func (Promo) policy()  {}
func (Tiered) policy() {}

// NormalizeCode trims and uppercases a customer-entered promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code, once normalized, is a well-formed promo code.
func ValidCode(code string) bool {
	return codePattern.MatchString(NormalizeCode(code))
}
