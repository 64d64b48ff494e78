package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeOperator ActorType = "operator"
	ActorTypeCustomer ActorType = "customer"
	ActorTypeGateway  ActorType = "gateway"
	ActorTypeSystem   ActorType = "system"
)

// AuditLog is one append-only record of an operator or system action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"column:id;primaryKey" json:"id"`
	ActorType  string            `gorm:"column:actor_type" json:"actor_type"`
	ActorID    string            `gorm:"column:actor_id" json:"actor_id"`
	Action     string            `gorm:"column:action" json:"action"`
	TargetType string            `gorm:"column:target_type" json:"target_type"`
	TargetID   string            `gorm:"column:target_id" json:"target_id"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	IPAddress  string            `gorm:"column:ip_address" json:"ip_address,omitempty"`
	UserAgent  string            `gorm:"column:user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
