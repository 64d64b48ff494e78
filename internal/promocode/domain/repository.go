package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *PromoCode) error
	Update(ctx context.Context, db *gorm.DB, p *PromoCode) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PromoCode, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PromoCode, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]PromoCode, error)

	// Redeem consumes one use. It reports false when the code is inactive or
	// its usage limit is already reached.
	Redeem(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	// CountPriorUses counts non-invitation orders placed with the code by
	// email that did not end failed, expired or cancelled.
	CountPriorUses(ctx context.Context, db *gorm.DB, id snowflake.ID, email string) (int, error)
}
