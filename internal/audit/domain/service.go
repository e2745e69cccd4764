package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, filter ListFilter) ([]*AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
