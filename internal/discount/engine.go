package discount

import (
	"slices"
	"time"
)

// Quote is the priced cart. When Rejection is set the discount is zero and
// FinalAmount equals Subtotal.
type Quote struct {
	Subtotal       int64
	DiscountAmount int64
	FinalAmount    int64
	Percent        *int
	Kind           Kind
	PromoCode      string
	PromoID        int64
	Rejection      Reason
}

func (q Quote) Rejected() bool {
	return q.Rejection != ""
}

// Price applies policy to cart at instant now.
func Price(cart Cart, policy Policy, now time.Time) Quote {
	subtotal := cart.Subtotal()
	quote := Quote{Subtotal: subtotal, FinalAmount: subtotal, Kind: KindNone}

	switch p := policy.(type) {
	case Promo:
		quote.PromoCode = NormalizeCode(p.Code)
		if reason := validatePromo(cart, p, now); reason != "" {
			quote.Rejection = reason
			return quote
		}
		quote.PromoID = p.Terms.ID
		if p.Terms.Percent != nil {
			pct := *p.Terms.Percent
			quote.Kind = KindPromoPercent
			quote.Percent = &pct
			quote.DiscountAmount = PercentOf(subtotal, pct)
		} else if p.Terms.Amount != nil {
			quote.Kind = KindPromoAmount
			quote.DiscountAmount = *p.Terms.Amount
		}
	case Tiered:
		pct, ok := p.Table.Lookup(cart.TotalQuantity())
		if !ok {
			quote.Rejection = ReasonQuantityBelowMinimum
			return quote
		}
		quote.Kind = KindTier
		quote.Percent = &pct
		quote.DiscountAmount = PercentOf(subtotal, pct)
	}

	quote.DiscountAmount = min(max(quote.DiscountAmount, 0), subtotal)
	quote.FinalAmount = subtotal - quote.DiscountAmount
	return quote
}

// PercentOf rounds half up on minor units.
func PercentOf(amount int64, percent int) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return (amount*int64(percent) + 50) / 100
}

// validatePromo checks the rules in a fixed order; the first failure wins.
func validatePromo(cart Cart, p Promo, now time.Time) Reason {
	t := p.Terms
	switch {
	case t == nil:
		return ReasonNotFound
	case !t.IsActive:
		return ReasonInactive
	case t.ValidFrom != nil && now.Before(*t.ValidFrom):
		return ReasonNotYetValid
	case t.ValidUntil != nil && now.After(*t.ValidUntil):
		return ReasonExpired
	case cart.Subtotal() < t.MinOrderAmount:
		return ReasonMinimumNotMet
	case !ticketsEligible(cart, t.AllowedTicketTypeIDs):
		return ReasonTicketNotEligible
	case t.UsageLimit != nil && t.UsedCount >= *t.UsageLimit:
		return ReasonUsageExhausted
	case t.OnePerEmail && p.PriorUses > 0:
		return ReasonAlreadyUsedByEmail
	}
	return ""
}

func ticketsEligible(cart Cart, allowed []int64) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, l := range cart.Lines {
		if !slices.Contains(allowed, l.TicketTypeID) {
			return false
		}
	}
	return true
}
