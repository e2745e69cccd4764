package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is an append-only record of a financial state transition. Audit
// metadata lives here, never inside content or status fields.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }
