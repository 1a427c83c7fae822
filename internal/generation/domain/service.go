package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pixora/pkg/db/pagination"
)

var (
	// ErrRequestNotFound is returned when no run matches the lookup.
	ErrRequestNotFound = errors.New("generation_request_not_found")

	// ErrArtifactNotFound is returned when no live artifact matches.
	ErrArtifactNotFound = errors.New("artifact_not_found")

	// ErrInvalidRequest is returned for malformed start parameters.
	ErrInvalidRequest = errors.New("invalid_generation_request")

	// ErrIllegalTransition is returned when a status update would move a
	// run backwards or out of a terminal state.
	ErrIllegalTransition = errors.New("illegal_status_transition")
)

// StartImageRequest starts the product image pipeline.
type StartImageRequest struct {
	TenantID    snowflake.ID
	Kind        RequestKind
	Prompt      string
	Count       int
	AspectRatio string
}

// StartCaptionRequest starts the caption pipeline from a product photo.
type StartCaptionRequest struct {
	TenantID  snowflake.ID
	Kind      RequestKind
	Image     []byte
	MediaType string
	Brief     string
	Variants  int
}

// ListRequest filters the tenant's run history.
type ListRequest struct {
	TenantID   snowflake.ID
	Type       RequestType
	Status     Status
	Pagination pagination.Pagination
}

// Service is the pipeline surface exposed to transport. Start methods run
// the pipeline synchronously: on return the run is terminal, and its status
// plus errorMessage fully describe the outcome. Only a quota rejection or a
// failure to create the run row surfaces as an error.
type Service interface {
	StartImagePipeline(ctx context.Context, req StartImageRequest) (*GenerationRequest, error)
	StartCaptionPipeline(ctx context.Context, req StartCaptionRequest) (*GenerationRequest, error)

	GetRequest(ctx context.Context, tenantID snowflake.ID, requestID string) (*GenerationRequest, error)
	ListRequests(ctx context.Context, req ListRequest) ([]*GenerationRequest, *pagination.PageInfo, error)
	DeleteArtifact(ctx context.Context, tenantID snowflake.ID, requestID string, artifactID snowflake.ID) error
}
