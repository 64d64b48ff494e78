package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// orderSuffixWidth fits any positive int64 in base36.
const orderSuffixWidth = 13

// OrderNumber formats the customer-facing reference, e.g. BO-260718-000Q3ZK9ED7B4.
// The zero-padded snowflake suffix keeps numbers unique and sortable as
// plain strings.
func OrderNumber(id snowflake.ID, createdAt time.Time) string {
	suffix := strings.ToUpper(id.Base36())
	if pad := orderSuffixWidth - len(suffix); pad > 0 {
		suffix = strings.Repeat("0", pad) + suffix
	}
	return "BO-" + createdAt.UTC().Format("060102") + "-" + suffix
}

func NormalizeOrderNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}
