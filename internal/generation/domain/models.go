// Package domain contains the generation run entities and lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RequestType distinguishes the two pipelines.
type RequestType string

const (
	TypeImage   RequestType = "image"
	TypeCaption RequestType = "caption"
)

// RequestKind distinguishes template-driven from free-form briefs.
type RequestKind string

const (
	KindTemplate RequestKind = "template"
	KindCustom   RequestKind = "custom"
)

// Status is the lifecycle state of one pipeline run.
type Status string

const (
	// Image pipeline states.
	StatusProcessing Status = "processing"
	StatusGenerating Status = "generating"

	// Caption pipeline states.
	StatusAnalyzingImage    Status = "analyzing_image"
	StatusAnalyzingCaptions Status = "analyzing_captions"

	// Terminal states, shared by both pipelines.
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// forward holds the legal non-terminal transitions. Failure is reachable
// from every non-terminal state, so it is not listed per source.
var forward = map[Status][]Status{
	StatusProcessing:        {StatusGenerating},
	StatusGenerating:        {StatusCompleted},
	StatusAnalyzingImage:    {StatusAnalyzingCaptions},
	StatusAnalyzingCaptions: {StatusCompleted},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// GenerationRequest is one pipeline run. All cross-step state lives here so
// a crash mid-run leaves a recoverable, inspectable record.
type GenerationRequest struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	RequestID string       `gorm:"type:text;not null;uniqueIndex:ux_generation_requests_request_id" json:"request_id"`
	TenantID  snowflake.ID `gorm:"not null;index:ix_generation_requests_tenant" json:"tenant_id"`
	Type      RequestType  `gorm:"type:text;not null" json:"type"`
	Kind      RequestKind  `gorm:"type:text;not null" json:"kind"`
	Status    Status       `gorm:"type:text;not null" json:"status"`

	Prompt         string `gorm:"type:text" json:"prompt"`
	EnhancedPrompt string `gorm:"type:text;column:enhanced_prompt" json:"enhanced_prompt,omitempty"`
	FinalPrompt    string `gorm:"type:text;column:final_prompt" json:"final_prompt,omitempty"`
	ImageAnalysis  string `gorm:"type:text;column:image_analysis" json:"image_analysis,omitempty"`
	AspectRatio    string `gorm:"type:text;column:aspect_ratio" json:"aspect_ratio,omitempty"`
	RequestedCount int    `gorm:"not null;column:requested_count" json:"requested_count"`
	Model          string `gorm:"type:text" json:"model,omitempty"`

	// Per-stage token counts, persisted immediately after each successful
	// remote call so a mid-run crash preserves partial billing data.
	AnalysisInputTokens   int64 `gorm:"not null;default:0" json:"analysis_input_tokens"`
	AnalysisOutputTokens  int64 `gorm:"not null;default:0" json:"analysis_output_tokens"`
	ComposeInputTokens    int64 `gorm:"not null;default:0" json:"compose_input_tokens"`
	ComposeOutputTokens   int64 `gorm:"not null;default:0" json:"compose_output_tokens"`
	SynthesisInputTokens  int64 `gorm:"not null;default:0" json:"synthesis_input_tokens"`
	SynthesisOutputTokens int64 `gorm:"not null;default:0" json:"synthesis_output_tokens"`
	TotalTokens           int64 `gorm:"not null;default:0" json:"total_tokens"`

	TotalArtifacts int     `gorm:"not null;default:0" json:"total_artifacts"`
	ErrorMessage   *string `gorm:"type:text" json:"error_message,omitempty"`

	Artifacts []Artifact `gorm:"foreignKey:RequestID;references:ID" json:"artifacts"`

	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (GenerationRequest) TableName() string { return "generation_requests" }

// StageTokens sums every persisted stage counter.
func (r *GenerationRequest) StageTokens() int64 {
	return r.AnalysisInputTokens + r.AnalysisOutputTokens +
		r.ComposeInputTokens + r.ComposeOutputTokens +
		r.SynthesisInputTokens + r.SynthesisOutputTokens
}

// Artifact is one durably stored output of a run. Rows exist only for
// uploads that succeeded; removal is always a soft delete.
type Artifact struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	RequestID snowflake.ID `gorm:"not null;index:ix_artifacts_request" json:"request_id"`
	URL       string       `gorm:"type:text;not null" json:"url"`
	FileName  string       `gorm:"type:text;not null;column:file_name" json:"file_name"`
	Ordinal   int          `gorm:"not null" json:"ordinal"`
	ByteSize  int64        `gorm:"not null;column:byte_size" json:"byte_size"`
	Seed      string       `gorm:"type:text" json:"seed,omitempty"`
	TimingMs  int64        `gorm:"column:timing_ms" json:"timing_ms,omitempty"`
	IsDeleted bool         `gorm:"not null;default:false;column:is_deleted" json:"is_deleted"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Artifact) TableName() string { return "generation_artifacts" }
