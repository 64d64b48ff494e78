package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/discount"
)

type CreateRequest struct {
	Code                 string
	Description          string
	DiscountPercent      *int
	DiscountAmount       *int64
	UsageLimit           *int
	ValidFrom            *time.Time
	ValidUntil           *time.Time
	MinOrderAmount       int64
	AllowedTicketTypeIDs []int64
	OnePerEmail          bool
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	ID                   string
	Description          *string
	UsageLimit           *int
	ClearUsageLimit      bool
	ValidFrom            *time.Time
	ValidUntil           *time.Time
	MinOrderAmount       *int64
	AllowedTicketTypeIDs *[]int64
	OnePerEmail          *bool
	IsActive             *bool
}

type EvaluateRequest struct {
	Code  string
	Email string
	Cart  discount.Cart
}

// CheckRequest previews a code against a cart without consuming it.
type CheckRequest struct {
	Code  string
	Email string
	Lines []domain.LineRequest
}

type Service interface {
	Create(context.Context, CreateRequest) (PromoCode, error)
	Update(context.Context, UpdateRequest) (PromoCode, error)
	Deactivate(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (PromoCode, error)
	List(ctx context.Context, activeOnly bool) ([]PromoCode, error)
	Evaluate(context.Context, EvaluateRequest) (discount.Quote, error)
	Check(context.Context, CheckRequest) (discount.Quote, error)
}

var (
	ErrInvalidCode       = errors.New("invalid_promo_code")
	ErrInvalidDiscount   = errors.New("invalid_discount")
	ErrInvalidUsageLimit = errors.New("invalid_usage_limit")
	ErrInvalidWindow     = errors.New("invalid_validity_window")
	ErrInvalidMinimum    = errors.New("invalid_min_order_amount")
	ErrInvalidID         = errors.New("invalid_id")
	ErrDuplicateCode     = errors.New("promo_code_exists")
	ErrNotFound          = errors.New("promo_not_found")
)
