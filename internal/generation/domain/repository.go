package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pixora/pkg/db/pagination"
)

// StageUpdate persists the output of one remote call immediately after it
// succeeds, before the next stage starts.
type StageUpdate struct {
	// Column/value pairs for the stage text fields, e.g. enhanced_prompt.
	Fields map[string]any

	InputTokensColumn  string
	OutputTokensColumn string
	InputTokens        int64
	OutputTokens       int64
}

// Store is the persistence contract for generation runs. Status writes are
// guarded in SQL so a terminal row can never move again, regardless of how
// many retried or crashed runs touch it concurrently.
type Store interface {
	Create(ctx context.Context, req *GenerationRequest) error

	// FindByRequestID loads one run with its live artifacts in ordinal
	// order. Returns ErrRequestNotFound when no row matches the tenant.
	FindByRequestID(ctx context.Context, tenantID snowflake.ID, requestID string) (*GenerationRequest, error)

	List(ctx context.Context, req ListRequest) ([]*GenerationRequest, *pagination.PageInfo, error)

	// Transition moves a run forward. Returns ErrIllegalTransition when the
	// guarded update matches no row.
	Transition(ctx context.Context, id snowflake.ID, from, to Status) error

	// RecordStage writes stage text and token counts without touching
	// status.
	RecordStage(ctx context.Context, id snowflake.ID, update StageUpdate) error

	// Finalize moves a run into a terminal state with its totals. A run
	// already terminal is left untouched and ErrIllegalTransition returned.
	Finalize(ctx context.Context, id snowflake.ID, to Status, totalArtifacts int, totalTokens int64, errMessage *string, completedAt time.Time) error

	CreateArtifact(ctx context.Context, art *Artifact) error

	// SoftDeleteArtifact hides one artifact and decrements the run's
	// artifact total in the same transaction.
	SoftDeleteArtifact(ctx context.Context, tenantID snowflake.ID, requestID string, artifactID snowflake.ID) error
}
