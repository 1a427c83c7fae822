package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	analyzeSystemPrompt = "You are a product photography art director. Rewrite the " +
		"user's brief into a rich, concrete scene description: subject, setting, " +
		"lighting, mood, composition. Stay faithful to the product. Plain text only."

	finalizeSystemPrompt = "Condense the scene description into a single image " +
		"generation prompt under 150 words. Keep every concrete visual detail, " +
		"drop the commentary. Output the prompt only."

	imageAnalysisSystemPrompt = "Describe this product photo for a marketing " +
		"copywriter: the product, its distinguishing features, the setting and " +
		"anything notable about presentation. Plain text, no lists."

	captionSystemPrompt = "You write short social media marketing captions. " +
		"Write %d distinct caption variants for the analyzed product, each with a " +
		"different angle. Separate variants with a line containing only \"---\"."
)

type anthropicClient struct {
	sdk   sdk.Client
	model string
	log   *zap.Logger
}

// newAnthropicClient builds the text-stage client over the Anthropic SDK.
func newAnthropicClient(apiKey, model string, log *zap.Logger) *anthropicClient {
	return &anthropicClient{
		sdk:   sdk.NewClient(option.WithAPIKey(apiKey)),
		model: model,
		log:   log.Named("genai.anthropic"),
	}
}

func (c *anthropicClient) AnalyzeAndEnhance(ctx context.Context, prompt, businessContext string) (*TextResult, error) {
	return c.textStage(ctx, "analyze_and_enhance", analyzeSystemPrompt, businessContext,
		sdk.NewUserMessage(sdk.NewTextBlock(prompt)))
}

func (c *anthropicClient) Finalize(ctx context.Context, enhanced, businessContext string) (*TextResult, error) {
	return c.textStage(ctx, "finalize", finalizeSystemPrompt, businessContext,
		sdk.NewUserMessage(sdk.NewTextBlock(enhanced)))
}

func (c *anthropicClient) AnalyzeImage(ctx context.Context, image []byte, mediaType, businessContext string) (*TextResult, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	return c.textStage(ctx, "analyze_image", imageAnalysisSystemPrompt, businessContext,
		sdk.NewUserMessage(
			sdk.NewImageBlockBase64(mediaType, encoded),
			sdk.NewTextBlock("Analyze this product photo."),
		))
}

func (c *anthropicClient) ComposeCaptions(ctx context.Context, analysis, businessContext string, variants int) (*TextResult, error) {
	system := fmt.Sprintf(captionSystemPrompt, variants)
	return c.textStage(ctx, "compose_captions", system, businessContext,
		sdk.NewUserMessage(sdk.NewTextBlock(analysis)))
}

func (c *anthropicClient) textStage(ctx context.Context, stage, system, businessContext string, messages ...sdk.MessageParam) (*TextResult, error) {
	systemBlocks := []sdk.TextBlockParam{{Text: system}}
	if strings.TrimSpace(businessContext) != "" {
		systemBlocks = append(systemBlocks, sdk.TextBlockParam{
			Text: "Business context:\n" + businessContext,
		})
	}

	msg, err := c.sdk.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 1024,
		System:    systemBlocks,
		Messages:  messages,
	})
	if err != nil {
		return nil, c.wrap(stage, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}

	result := &TextResult{
		Text:         text.String(),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		Model:        string(msg.Model),
	}

	c.log.Debug("text stage complete",
		zap.String("stage", stage),
		zap.Int64("input_tokens", result.InputTokens),
		zap.Int64("output_tokens", result.OutputTokens),
	)

	return result, nil
}

func (c *anthropicClient) wrap(stage string, err error) error {
	rateLimited := false
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		rateLimited = apierr.StatusCode == http.StatusTooManyRequests
	}
	return &ProviderError{
		Provider:    "anthropic",
		Stage:       stage,
		RateLimited: rateLimited,
		Err:         err,
	}
}
