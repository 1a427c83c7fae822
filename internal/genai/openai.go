package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

type openaiImageClient struct {
	sdk   openai.Client
	model string
	log   *zap.Logger
}

// newOpenAIImageClient builds the image synthesis client over the OpenAI SDK.
func newOpenAIImageClient(apiKey, model string, log *zap.Logger) *openaiImageClient {
	return &openaiImageClient{
		sdk:   openai.NewClient(option.WithAPIKey(apiKey)),
		model: model,
		log:   log.Named("genai.openai"),
	}
}

func (c *openaiImageClient) Synthesize(ctx context.Context, prompt string, opts SynthesisOptions) (*SynthesisResult, error) {
	count := opts.Count
	if count < 1 {
		count = 1
	}

	start := time.Now()
	res, err := c.sdk.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.model),
		N:      openai.Int(int64(count)),
		Size:   openai.ImageGenerateParamsSize(sizeForAspect(opts.AspectRatio)),
	})
	if err != nil {
		return nil, c.wrap("synthesize", err)
	}
	elapsed := time.Since(start)

	if len(res.Data) == 0 {
		return nil, c.wrap("synthesize", errors.New("provider returned no images"))
	}

	// The provider reports one round-trip; spread it evenly per artifact.
	perArtifactMs := elapsed.Milliseconds() / int64(len(res.Data))

	artifacts := make([]SynthesizedArtifact, 0, len(res.Data))
	for i, img := range res.Data {
		raw, decErr := base64.StdEncoding.DecodeString(img.B64JSON)
		if decErr != nil {
			return nil, c.wrap("synthesize", fmt.Errorf("decode image %d: %w", i, decErr))
		}
		artifacts = append(artifacts, SynthesizedArtifact{
			Data:     raw,
			TimingMs: perArtifactMs,
		})
	}

	result := &SynthesisResult{
		Artifacts:    artifacts,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		Model:        c.model,
	}

	c.log.Debug("synthesis complete",
		zap.Int("artifacts", len(artifacts)),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()),
	)

	return result, nil
}

func sizeForAspect(aspect string) string {
	switch aspect {
	case "3:2", "16:9", "landscape":
		return "1536x1024"
	case "2:3", "9:16", "portrait":
		return "1024x1536"
	default:
		return "1024x1024"
	}
}

func (c *openaiImageClient) wrap(stage string, err error) error {
	rateLimited := false
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		rateLimited = apierr.StatusCode == http.StatusTooManyRequests
	}
	return &ProviderError{
		Provider:    "openai",
		Stage:       stage,
		RateLimited: rateLimited,
		Err:         err,
	}
}
