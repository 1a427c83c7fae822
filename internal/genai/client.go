// Package genai wraps the remote generative AI providers behind one staged
// client. Each method is one pipeline stage; every result carries the token
// usage the caller must persist before moving on.
package genai

import (
	"context"
	"strings"
)

// TextResult is the outcome of one text stage.
type TextResult struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	Model        string
}

// SynthesisOptions controls the image synthesis stage.
type SynthesisOptions struct {
	Count       int
	AspectRatio string
}

// SynthesizedArtifact is one raw image produced by the synthesis stage.
type SynthesizedArtifact struct {
	Data     []byte
	TimingMs int64
	Seed     string
}

// SynthesisResult is the outcome of the image synthesis stage.
type SynthesisResult struct {
	Artifacts    []SynthesizedArtifact
	InputTokens  int64
	OutputTokens int64
	Model        string
}

// Client is the staged generation contract consumed by the pipeline.
//
// The image pipeline calls AnalyzeAndEnhance, then Finalize, then Synthesize.
// The caption pipeline calls AnalyzeImage, then ComposeCaptions.
// Calls are synchronous; any failure surfaces as a ProviderError.
type Client interface {
	// AnalyzeAndEnhance turns the tenant's raw prompt into an enriched
	// scene description, optionally steered by business context.
	AnalyzeAndEnhance(ctx context.Context, prompt, businessContext string) (*TextResult, error)

	// Finalize condenses the enhanced description into the final synthesis
	// prompt.
	Finalize(ctx context.Context, enhanced, businessContext string) (*TextResult, error)

	// Synthesize renders the requested number of images for the prompt.
	Synthesize(ctx context.Context, prompt string, opts SynthesisOptions) (*SynthesisResult, error)

	// AnalyzeImage describes a product photo for the caption pipeline.
	AnalyzeImage(ctx context.Context, image []byte, mediaType, businessContext string) (*TextResult, error)

	// ComposeCaptions writes caption variants from an image analysis. Each
	// variant is separated by a line containing only "---".
	ComposeCaptions(ctx context.Context, analysis, businessContext string, variants int) (*TextResult, error)
}

// SplitCaptions parses the ComposeCaptions output into its variants.
func SplitCaptions(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n---") {
		block = strings.TrimPrefix(block, "---")
		if v := strings.TrimSpace(block); v != "" {
			out = append(out, v)
		}
	}
	return out
}
