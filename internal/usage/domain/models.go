// Package domain contains the usage ledger models and contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageCall is one row of the append-only remote-call log. The pipeline
// appends a row per billable run outcome; quota counting reads the same
// table, never a mutable counter.
type UsageCall struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID      `gorm:"not null;index:ix_usage_calls_tenant_occurred,priority:1" json:"tenant_id"`
	RequestID  string            `gorm:"type:text" json:"request_id"`
	Kind       string            `gorm:"type:text;not null" json:"kind"`
	Succeeded  bool              `gorm:"not null" json:"succeeded"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	OccurredAt time.Time         `gorm:"not null;index:ix_usage_calls_tenant_occurred,priority:2" json:"occurred_at"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UsageCall) TableName() string { return "usage_calls" }

// UnlimitedPlanLimit marks a plan without a generation cap.
const UnlimitedPlanLimit = -1

// TenantPlan stores the per-tenant generation cap for the current billing
// period. GenerationLimit of -1 means unlimited.
type TenantPlan struct {
	TenantID        snowflake.ID `gorm:"primaryKey" json:"tenant_id"`
	PlanCode        string       `gorm:"type:text;not null" json:"plan_code"`
	GenerationLimit int          `gorm:"not null;default:-1" json:"generation_limit"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TenantPlan) TableName() string { return "tenant_plans" }
