package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const columns = `id, code, description, discount_percent, discount_amount, usage_limit, used_count,
	valid_from, valid_until, min_order_amount, allowed_ticket_type_ids, one_per_email, is_active,
	created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.PromoCode) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO promo_codes (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.Description, p.DiscountPercent, p.DiscountAmount, p.UsageLimit, p.UsedCount,
		p.ValidFrom, p.ValidUntil, p.MinOrderAmount, p.AllowedTicketTypeIDs, p.OnePerEmail, p.IsActive,
		p.CreatedAt, p.UpdatedAt,
	).Error
}

// Update never touches used_count; redemption goes through Redeem only.
func (r *repo) Update(ctx context.Context, db *gorm.DB, p *domain.PromoCode) error {
	return db.WithContext(ctx).Exec(
		`UPDATE promo_codes
		 SET description = ?, usage_limit = ?, valid_from = ?, valid_until = ?, min_order_amount = ?,
		     allowed_ticket_type_ids = ?, one_per_email = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		p.Description, p.UsageLimit, p.ValidFrom, p.ValidUntil, p.MinOrderAmount,
		p.AllowedTicketTypeIDs, p.OnePerEmail, p.IsActive, p.UpdatedAt,
		p.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PromoCode, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.PromoCode, error) {
	return r.findOne(ctx, db, `code = ?`, strings.ToUpper(strings.TrimSpace(code)))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.PromoCode, error) {
	var p domain.PromoCode
	err := db.WithContext(ctx).Raw(`SELECT `+columns+` FROM promo_codes WHERE `+where, arg).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.PromoCode, error) {
	var out []domain.PromoCode
	query := `SELECT ` + columns + ` FROM promo_codes`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	err := db.WithContext(ctx).Raw(query + ` ORDER BY created_at DESC, id DESC`).Scan(&out).Error
	return out, err
}

func (r *repo) Redeem(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE promo_codes
		 SET used_count = used_count + 1
		 WHERE id = ? AND is_active = TRUE AND (usage_limit IS NULL OR used_count < usage_limit)`,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) CountPriorUses(ctx context.Context, db *gorm.DB, id snowflake.ID, email string) (int, error) {
	var n int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM orders
		 WHERE promo_code_id = ?
		   AND lower(customer_email) = ?
		   AND is_invitation = FALSE
		   AND status NOT IN ('failed', 'expired', 'cancelled')`,
		id,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&n).Error
	return int(n), err
}
