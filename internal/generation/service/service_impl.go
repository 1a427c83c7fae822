// Package service orchestrates the staged generation pipelines.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/pixora/internal/clock"
	"github.com/smallbiznis/pixora/internal/config"
	"github.com/smallbiznis/pixora/internal/genai"
	generationdomain "github.com/smallbiznis/pixora/internal/generation/domain"
	"github.com/smallbiznis/pixora/internal/observability"
	"github.com/smallbiznis/pixora/internal/profile"
	"github.com/smallbiznis/pixora/internal/quota"
	"github.com/smallbiznis/pixora/internal/uploader"
	usagedomain "github.com/smallbiznis/pixora/internal/usage/domain"
	"github.com/smallbiznis/pixora/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Store      generationdomain.Store
	Quota      quota.Guard
	Profiles   profile.ContextBuilder
	AI         genai.Client
	Uploads    uploader.Coordinator
	Reconciler Reconciler
	Ledger     usagedomain.Ledger
	Holder     *config.PipelineConfigHolder
	Metrics    *observability.Metrics
	GenID      *snowflake.Node
	Clock      clock.Clock
	Log        *zap.Logger
}

type Service struct {
	store      generationdomain.Store
	quota      quota.Guard
	profiles   profile.ContextBuilder
	ai         genai.Client
	uploads    uploader.Coordinator
	reconciler Reconciler
	ledger     usagedomain.Ledger
	holder     *config.PipelineConfigHolder
	metrics    *observability.Metrics
	genID      *snowflake.Node
	clock      clock.Clock
	log        *zap.Logger
}

func New(p Params) generationdomain.Service {
	return &Service{
		store:      p.Store,
		quota:      p.Quota,
		profiles:   p.Profiles,
		ai:         p.AI,
		uploads:    p.Uploads,
		reconciler: p.Reconciler,
		ledger:     p.Ledger,
		holder:     p.Holder,
		metrics:    p.Metrics,
		genID:      p.GenID,
		clock:      p.Clock,
		log:        p.Log.Named("generation.service"),
	}
}

// StartImagePipeline runs prompt analysis, prompt finalization, image
// synthesis and the upload fan-out for one request. Stage outputs and token
// counts are written as soon as each remote call returns, so an interrupted
// run keeps everything it already paid for.
func (s *Service) StartImagePipeline(ctx context.Context, req generationdomain.StartImageRequest) (*generationdomain.GenerationRequest, error) {
	cfg := s.holder.Get()

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", generationdomain.ErrInvalidRequest)
	}
	count := req.Count
	if count == 0 {
		count = cfg.DefaultImageCount
	}
	if count < 1 || count > cfg.MaxImageCount {
		return nil, fmt.Errorf("%w: image count must be between 1 and %d", generationdomain.ErrInvalidRequest, cfg.MaxImageCount)
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = cfg.DefaultAspect
	}
	kind := req.Kind
	if kind == "" {
		kind = generationdomain.KindCustom
	}

	if err := s.quota.Check(ctx, req.TenantID, 1); err != nil {
		return nil, err
	}

	run, err := s.createRun(ctx, &generationdomain.GenerationRequest{
		TenantID:       req.TenantID,
		Type:           generationdomain.TypeImage,
		Kind:           kind,
		Status:         generationdomain.StatusProcessing,
		Prompt:         prompt,
		AspectRatio:    aspect,
		RequestedCount: count,
	})
	if err != nil {
		return nil, err
	}

	bizCtx := s.profiles.BuildContext(ctx, req.TenantID)

	enhanced, err := s.textStage(ctx, run, "analyze_enhance", func() (*genai.TextResult, error) {
		return s.ai.AnalyzeAndEnhance(ctx, prompt, bizCtx)
	})
	if err != nil {
		return s.abort(ctx, run, fmt.Sprintf("prompt analysis failed: %v", err))
	}
	if err := s.recordStage(ctx, run, generationdomain.StageUpdate{
		Fields:             map[string]any{"enhanced_prompt": enhanced.Text, "model": enhanced.Model},
		InputTokensColumn:  "analysis_input_tokens",
		OutputTokensColumn: "analysis_output_tokens",
		InputTokens:        enhanced.InputTokens,
		OutputTokens:       enhanced.OutputTokens,
	}); err != nil {
		return s.abort(ctx, run, fmt.Sprintf("persist analysis stage: %v", err))
	}
	run.EnhancedPrompt = enhanced.Text
	run.AnalysisInputTokens = enhanced.InputTokens
	run.AnalysisOutputTokens = enhanced.OutputTokens

	final, err := s.textStage(ctx, run, "finalize_prompt", func() (*genai.TextResult, error) {
		return s.ai.Finalize(ctx, enhanced.Text, bizCtx)
	})
	if err != nil {
		return s.abort(ctx, run, fmt.Sprintf("prompt finalization failed: %v", err))
	}
	if err := s.recordStage(ctx, run, generationdomain.StageUpdate{
		Fields:             map[string]any{"final_prompt": final.Text},
		InputTokensColumn:  "compose_input_tokens",
		OutputTokensColumn: "compose_output_tokens",
		InputTokens:        final.InputTokens,
		OutputTokens:       final.OutputTokens,
	}); err != nil {
		return s.abort(ctx, run, fmt.Sprintf("persist finalization stage: %v", err))
	}
	run.FinalPrompt = final.Text
	run.ComposeInputTokens = final.InputTokens
	run.ComposeOutputTokens = final.OutputTokens

	if err := s.store.Transition(ctx, run.ID, generationdomain.StatusProcessing, generationdomain.StatusGenerating); err != nil {
		return s.abort(ctx, run, fmt.Sprintf("advance to generating: %v", err))
	}
	run.Status = generationdomain.StatusGenerating

	stageStart := s.clock.Now()
	syn, err := s.ai.Synthesize(ctx, final.Text, genai.SynthesisOptions{
		Count:       count,
		AspectRatio: aspect,
	})
	if err != nil {
		return s.abort(ctx, run, fmt.Sprintf("image synthesis failed: %v", err))
	}
	s.metrics.StageDuration.WithLabelValues("synthesize").
		Observe(s.clock.Now().Sub(stageStart).Seconds())

	if err := s.recordStage(ctx, run, generationdomain.StageUpdate{
		InputTokensColumn:  "synthesis_input_tokens",
		OutputTokensColumn: "synthesis_output_tokens",
		InputTokens:        syn.InputTokens,
		OutputTokens:       syn.OutputTokens,
	}); err != nil {
		return s.abort(ctx, run, fmt.Sprintf("persist synthesis stage: %v", err))
	}
	run.SynthesisInputTokens = syn.InputTokens
	run.SynthesisOutputTokens = syn.OutputTokens

	raw := make([]uploader.RawArtifact, 0, len(syn.Artifacts))
	for i, art := range syn.Artifacts {
		raw = append(raw, uploader.RawArtifact{
			Ordinal:     i,
			Data:        art.Data,
			ContentType: "image/png",
			Seed:        art.Seed,
			TimingMs:    art.TimingMs,
		})
	}

	return s.uploadAndReconcile(ctx, run, raw)
}

// StartCaptionPipeline analyzes a product photo and composes caption
// variants, storing each variant as its own text artifact.
func (s *Service) StartCaptionPipeline(ctx context.Context, req generationdomain.StartCaptionRequest) (*generationdomain.GenerationRequest, error) {
	cfg := s.holder.Get()

	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: image is required", generationdomain.ErrInvalidRequest)
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	variants := req.Variants
	if variants == 0 {
		variants = cfg.CaptionVariants
	}
	if variants < 1 || variants > 10 {
		return nil, fmt.Errorf("%w: caption variants must be between 1 and 10", generationdomain.ErrInvalidRequest)
	}
	kind := req.Kind
	if kind == "" {
		kind = generationdomain.KindCustom
	}

	if err := s.quota.Check(ctx, req.TenantID, 1); err != nil {
		return nil, err
	}

	run, err := s.createRun(ctx, &generationdomain.GenerationRequest{
		TenantID:       req.TenantID,
		Type:           generationdomain.TypeCaption,
		Kind:           kind,
		Status:         generationdomain.StatusAnalyzingImage,
		Prompt:         strings.TrimSpace(req.Brief),
		RequestedCount: variants,
	})
	if err != nil {
		return nil, err
	}

	bizCtx := s.profiles.BuildContext(ctx, req.TenantID)

	analysis, err := s.textStage(ctx, run, "analyze_image", func() (*genai.TextResult, error) {
		return s.ai.AnalyzeImage(ctx, req.Image, mediaType, bizCtx)
	})
	if err != nil {
		return s.abort(ctx, run, fmt.Sprintf("image analysis failed: %v", err))
	}
	if err := s.recordStage(ctx, run, generationdomain.StageUpdate{
		Fields:             map[string]any{"image_analysis": analysis.Text, "model": analysis.Model},
		InputTokensColumn:  "analysis_input_tokens",
		OutputTokensColumn: "analysis_output_tokens",
		InputTokens:        analysis.InputTokens,
		OutputTokens:       analysis.OutputTokens,
	}); err != nil {
		return s.abort(ctx, run, fmt.Sprintf("persist analysis stage: %v", err))
	}
	run.ImageAnalysis = analysis.Text
	run.AnalysisInputTokens = analysis.InputTokens
	run.AnalysisOutputTokens = analysis.OutputTokens

	if err := s.store.Transition(ctx, run.ID, generationdomain.StatusAnalyzingImage, generationdomain.StatusAnalyzingCaptions); err != nil {
		return s.abort(ctx, run, fmt.Sprintf("advance to analyzing_captions: %v", err))
	}
	run.Status = generationdomain.StatusAnalyzingCaptions

	composed, err := s.textStage(ctx, run, "compose_captions", func() (*genai.TextResult, error) {
		return s.ai.ComposeCaptions(ctx, analysis.Text, bizCtx, variants)
	})
	if err != nil {
		return s.abort(ctx, run, fmt.Sprintf("caption composition failed: %v", err))
	}
	if err := s.recordStage(ctx, run, generationdomain.StageUpdate{
		Fields:             map[string]any{"final_prompt": composed.Text},
		InputTokensColumn:  "compose_input_tokens",
		OutputTokensColumn: "compose_output_tokens",
		InputTokens:        composed.InputTokens,
		OutputTokens:       composed.OutputTokens,
	}); err != nil {
		return s.abort(ctx, run, fmt.Sprintf("persist composition stage: %v", err))
	}
	run.FinalPrompt = composed.Text
	run.ComposeInputTokens = composed.InputTokens
	run.ComposeOutputTokens = composed.OutputTokens

	captions := genai.SplitCaptions(composed.Text)
	raw := make([]uploader.RawArtifact, 0, len(captions))
	for i, caption := range captions {
		raw = append(raw, uploader.RawArtifact{
			Ordinal:     i,
			Data:        []byte(caption),
			ContentType: "text/plain",
		})
	}

	return s.uploadAndReconcile(ctx, run, raw)
}

func (s *Service) GetRequest(ctx context.Context, tenantID snowflake.ID, requestID string) (*generationdomain.GenerationRequest, error) {
	return s.store.FindByRequestID(ctx, tenantID, requestID)
}

func (s *Service) ListRequests(ctx context.Context, req generationdomain.ListRequest) ([]*generationdomain.GenerationRequest, *pagination.PageInfo, error) {
	return s.store.List(ctx, req)
}

func (s *Service) DeleteArtifact(ctx context.Context, tenantID snowflake.ID, requestID string, artifactID snowflake.ID) error {
	return s.store.SoftDeleteArtifact(ctx, tenantID, requestID, artifactID)
}

func (s *Service) createRun(ctx context.Context, run *generationdomain.GenerationRequest) (*generationdomain.GenerationRequest, error) {
	now := s.clock.Now().UTC()
	run.ID = s.genID.Generate()
	run.RequestID = newRequestID()
	run.CreatedAt = now
	run.UpdatedAt = now

	if err := s.store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create generation request: %w", err)
	}
	s.metrics.RunsStarted.WithLabelValues(string(run.Type)).Inc()
	s.log.Info("pipeline run started",
		zap.String("request_id", run.RequestID),
		zap.Int64("tenant_id", int64(run.TenantID)),
		zap.String("type", string(run.Type)),
	)
	return run, nil
}

func (s *Service) textStage(ctx context.Context, run *generationdomain.GenerationRequest, stage string, call func() (*genai.TextResult, error)) (*genai.TextResult, error) {
	start := s.clock.Now()
	res, err := call()
	s.metrics.StageDuration.WithLabelValues(stage).
		Observe(s.clock.Now().Sub(start).Seconds())
	if err != nil {
		s.log.Warn("pipeline stage failed",
			zap.String("request_id", run.RequestID),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}
	return res, err
}

func (s *Service) recordStage(ctx context.Context, run *generationdomain.GenerationRequest, update generationdomain.StageUpdate) error {
	return s.store.RecordStage(ctx, run.ID, update)
}

func (s *Service) uploadAndReconcile(ctx context.Context, run *generationdomain.GenerationRequest, raw []uploader.RawArtifact) (*generationdomain.GenerationRequest, error) {
	successful, failed := s.uploads.UploadAll(ctx, raw, run.TenantID, run.RequestID, func(ctx context.Context, up *uploader.Uploaded) error {
		return s.store.CreateArtifact(ctx, &generationdomain.Artifact{
			ID:        s.genID.Generate(),
			RequestID: run.ID,
			URL:       up.URL,
			FileName:  up.FileName,
			Ordinal:   up.Ordinal,
			ByteSize:  up.ByteSize,
			Seed:      up.Seed,
			TimingMs:  up.TimingMs,
			CreatedAt: s.clock.Now().UTC(),
			UpdatedAt: s.clock.Now().UTC(),
		})
	})
	s.metrics.Uploads.WithLabelValues("succeeded").Add(float64(len(successful)))
	s.metrics.Uploads.WithLabelValues("failed").Add(float64(len(failed)))

	status := s.reconciler.Reconcile(ctx, run, successful, failed)
	s.finishRun(ctx, run, status)
	return s.reload(ctx, run)
}

// abort fails the run with message and returns the terminal record. Stage
// failures are an outcome, not an error: the caller still gets the run.
func (s *Service) abort(ctx context.Context, run *generationdomain.GenerationRequest, message string) (*generationdomain.GenerationRequest, error) {
	err := s.store.Finalize(ctx, run.ID, generationdomain.StatusFailed,
		0, run.StageTokens(), &message, s.clock.Now().UTC())
	if err != nil {
		s.log.Error("failure status write failed",
			zap.String("request_id", run.RequestID),
			zap.Error(err),
		)
	}
	s.finishRun(ctx, run, generationdomain.StatusFailed)
	return s.reload(ctx, run)
}

// finishRun records the terminal outcome on the usage ledger and metrics.
// Ledger append failures are logged, never surfaced: the run itself is done.
func (s *Service) finishRun(ctx context.Context, run *generationdomain.GenerationRequest, status generationdomain.Status) {
	s.metrics.RunsFinished.WithLabelValues(string(run.Type), string(status)).Inc()

	call := &usagedomain.UsageCall{
		ID:        s.genID.Generate(),
		TenantID:  run.TenantID,
		RequestID: run.RequestID,
		Kind:      fmt.Sprintf("%s_generation", run.Type),
		Succeeded: status == generationdomain.StatusCompleted,
		Metadata: datatypes.JSONMap{
			"total_tokens": run.StageTokens(),
		},
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.ledger.Record(ctx, call); err != nil {
		s.log.Error("usage ledger append failed",
			zap.String("request_id", run.RequestID),
			zap.Error(err),
		)
	}
}

func (s *Service) reload(ctx context.Context, run *generationdomain.GenerationRequest) (*generationdomain.GenerationRequest, error) {
	fresh, err := s.store.FindByRequestID(ctx, run.TenantID, run.RequestID)
	if err != nil {
		// The run finished; hand back the in-memory copy rather than an
		// error the caller cannot act on.
		s.log.Error("reload after run failed",
			zap.String("request_id", run.RequestID),
			zap.Error(err),
		)
		return run, nil
	}
	return fresh, nil
}

func newRequestID() string {
	return fmt.Sprintf("gen_%s", ulid.Make().String())
}
