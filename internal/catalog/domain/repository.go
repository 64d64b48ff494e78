package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertTicketType(ctx context.Context, db *gorm.DB, t *TicketType) error
	InsertOption(ctx context.Context, db *gorm.DB, o *TicketOption) error
	FindTicketType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TicketType, error)
	FindTicketTypes(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]TicketType, error)
	FindOptions(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]TicketOption, error)
	ListTicketTypes(ctx context.Context, db *gorm.DB, activeOnly bool) ([]TicketType, error)
	ListOptions(ctx context.Context, db *gorm.DB, ticketTypeIDs []snowflake.ID, activeOnly bool) ([]TicketOption, error)
	SetTicketTypeActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) (bool, error)
}
