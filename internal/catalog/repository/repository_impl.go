package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const ticketTypeColumns = `id, slug, name, description, price, currency, is_active,
	sales_start_at, sales_end_at, created_at, updated_at`

const optionColumns = `id, ticket_type_id, name, price_modifier, is_active, created_at, updated_at`

func (r *repo) InsertTicketType(ctx context.Context, db *gorm.DB, t *domain.TicketType) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ticket_types (`+ticketTypeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Slug, t.Name, t.Description, t.Price, t.Currency, t.IsActive,
		t.SalesStartAt, t.SalesEndAt, t.CreatedAt, t.UpdatedAt,
	).Error
}

func (r *repo) InsertOption(ctx context.Context, db *gorm.DB, o *domain.TicketOption) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ticket_options (`+optionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.TicketTypeID, o.Name, o.PriceModifier, o.IsActive, o.CreatedAt, o.UpdatedAt,
	).Error
}

func (r *repo) FindTicketType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.TicketType, error) {
	var t domain.TicketType
	err := db.WithContext(ctx).Raw(
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = ?`, id,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) FindTicketTypes(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.TicketType, error) {
	var out []domain.TicketType
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Raw(
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id IN ?`, ids,
	).Scan(&out).Error
	return out, err
}

func (r *repo) FindOptions(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.TicketOption, error) {
	var out []domain.TicketOption
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Raw(
		`SELECT `+optionColumns+` FROM ticket_options WHERE id IN ?`, ids,
	).Scan(&out).Error
	return out, err
}

func (r *repo) ListTicketTypes(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.TicketType, error) {
	var out []domain.TicketType
	stmt := db.WithContext(ctx).Model(&domain.TicketType{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	err := stmt.Order("price asc, id asc").Find(&out).Error
	return out, err
}

func (r *repo) ListOptions(ctx context.Context, db *gorm.DB, ticketTypeIDs []snowflake.ID, activeOnly bool) ([]domain.TicketOption, error) {
	var out []domain.TicketOption
	if len(ticketTypeIDs) == 0 {
		return out, nil
	}
	stmt := db.WithContext(ctx).Model(&domain.TicketOption{}).Where("ticket_type_id IN ?", ticketTypeIDs)
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	err := stmt.Order("price_modifier asc, id asc").Find(&out).Error
	return out, err
}

func (r *repo) SetTicketTypeActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE ticket_types SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, now, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
