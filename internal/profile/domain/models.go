// Package domain contains the business profile model read by the prompt
// context builder.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BusinessProfile holds the optional tenant-supplied brand facts injected
// into generation prompts. All fields besides the tenant ID are optional.
type BusinessProfile struct {
	TenantID       snowflake.ID `gorm:"primaryKey" json:"tenant_id"`
	Name           string       `gorm:"type:text" json:"name"`
	Description    string       `gorm:"type:text" json:"description"`
	Category       string       `gorm:"type:text" json:"category"`
	BrandVoice     string       `gorm:"type:text;column:brand_voice" json:"brand_voice"`
	TargetAudience string       `gorm:"type:text;column:target_audience" json:"target_audience"`
	BrandColors    string       `gorm:"type:text;column:brand_colors" json:"brand_colors"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BusinessProfile) TableName() string { return "business_profiles" }
