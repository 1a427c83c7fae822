package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	generationdomain "github.com/smallbiznis/pixora/internal/generation/domain"
	"github.com/smallbiznis/pixora/pkg/db/pagination"
)

type startImageRequest struct {
	Prompt      string `json:"prompt"`
	Kind        string `json:"kind"`
	Count       int    `json:"count"`
	AspectRatio string `json:"aspect_ratio"`
}

type startCaptionRequest struct {
	ImageBase64 string `json:"image_base64"`
	MediaType   string `json:"media_type"`
	Brief       string `json:"brief"`
	Kind        string `json:"kind"`
	Variants    int    `json:"variants"`
}

type artifactResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	Ordinal  int    `json:"ordinal"`
	ByteSize int64  `json:"byte_size"`
	Seed     string `json:"seed,omitempty"`
	TimingMs int64  `json:"timing_ms,omitempty"`
}

type generationResponse struct {
	RequestID      string             `json:"request_id"`
	Type           string             `json:"type"`
	Kind           string             `json:"kind"`
	Status         string             `json:"status"`
	Prompt         string             `json:"prompt,omitempty"`
	EnhancedPrompt string             `json:"enhanced_prompt,omitempty"`
	FinalPrompt    string             `json:"final_prompt,omitempty"`
	ImageAnalysis  string             `json:"image_analysis,omitempty"`
	AspectRatio    string             `json:"aspect_ratio,omitempty"`
	Model          string             `json:"model,omitempty"`
	TotalArtifacts int                `json:"total_artifacts"`
	TotalTokens    int64              `json:"total_tokens"`
	ErrorMessage   *string            `json:"error_message,omitempty"`
	Artifacts      []artifactResponse `json:"artifacts"`
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

type listGenerationsResponse struct {
	Generations []generationResponse `json:"generations"`
	PageInfo    *pagination.PageInfo `json:"page_info"`
}

func (s *Server) StartImageGeneration(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req startImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: malformed body", generationdomain.ErrInvalidRequest))
		return
	}

	kind, err := parseKind(req.Kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	run, err := s.generationSvc.StartImagePipeline(c.Request.Context(), generationdomain.StartImageRequest{
		TenantID:    tenantID,
		Kind:        kind,
		Prompt:      req.Prompt,
		Count:       req.Count,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toGenerationResponse(run))
}

func (s *Server) StartCaptionGeneration(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req startCaptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: malformed body", generationdomain.ErrInvalidRequest))
		return
	}

	kind, err := parseKind(req.Kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: image_base64 is not valid base64", generationdomain.ErrInvalidRequest))
		return
	}

	run, err := s.generationSvc.StartCaptionPipeline(c.Request.Context(), generationdomain.StartCaptionRequest{
		TenantID:  tenantID,
		Kind:      kind,
		Image:     image,
		MediaType: req.MediaType,
		Brief:     req.Brief,
		Variants:  req.Variants,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toGenerationResponse(run))
}

func (s *Server) GetGeneration(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	run, err := s.generationSvc.GetRequest(c.Request.Context(), tenantID, c.Param("requestId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toGenerationResponse(run))
}

func (s *Server) ListGenerations(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, fmt.Errorf("%w: malformed query", generationdomain.ErrInvalidRequest))
		return
	}

	runs, pageInfo, err := s.generationSvc.ListRequests(c.Request.Context(), generationdomain.ListRequest{
		TenantID:   tenantID,
		Type:       generationdomain.RequestType(c.Query("type")),
		Status:     generationdomain.Status(c.Query("status")),
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := listGenerationsResponse{
		Generations: make([]generationResponse, 0, len(runs)),
		PageInfo:    pageInfo,
	}
	for _, run := range runs {
		resp.Generations = append(resp.Generations, toGenerationResponse(run))
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeleteArtifact(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	artifactID, err := snowflake.ParseString(c.Param("artifactId"))
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: malformed artifact id", generationdomain.ErrInvalidRequest))
		return
	}

	if err := s.generationSvc.DeleteArtifact(c.Request.Context(), tenantID, c.Param("requestId"), artifactID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseKind(raw string) (generationdomain.RequestKind, error) {
	switch generationdomain.RequestKind(raw) {
	case "", generationdomain.KindCustom:
		return generationdomain.KindCustom, nil
	case generationdomain.KindTemplate:
		return generationdomain.KindTemplate, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", generationdomain.ErrInvalidRequest, raw)
	}
}

func toGenerationResponse(run *generationdomain.GenerationRequest) generationResponse {
	resp := generationResponse{
		RequestID:      run.RequestID,
		Type:           string(run.Type),
		Kind:           string(run.Kind),
		Status:         string(run.Status),
		Prompt:         run.Prompt,
		EnhancedPrompt: run.EnhancedPrompt,
		FinalPrompt:    run.FinalPrompt,
		ImageAnalysis:  run.ImageAnalysis,
		AspectRatio:    run.AspectRatio,
		Model:          run.Model,
		TotalArtifacts: run.TotalArtifacts,
		TotalTokens:    run.TotalTokens,
		ErrorMessage:   run.ErrorMessage,
		Artifacts:      make([]artifactResponse, 0, len(run.Artifacts)),
		CreatedAt:      run.CreatedAt,
		CompletedAt:    run.CompletedAt,
	}
	for _, art := range run.Artifacts {
		resp.Artifacts = append(resp.Artifacts, artifactResponse{
			ID:       art.ID.String(),
			URL:      art.URL,
			FileName: art.FileName,
			Ordinal:  art.Ordinal,
			ByteSize: art.ByteSize,
			Seed:     art.Seed,
			TimingMs: art.TimingMs,
		})
	}
	return resp
}
