package genai

import (
	"github.com/smallbiznis/pixora/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// compositeClient joins the text-stage and image-stage providers into the
// single staged Client the pipeline consumes.
type compositeClient struct {
	*anthropicClient
	*openaiImageClient
}

type ClientParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// NewClient builds the provider-backed staged client.
func NewClient(p ClientParam) Client {
	return &compositeClient{
		anthropicClient:   newAnthropicClient(p.Config.AnthropicAPIKey, p.Config.AnthropicModel, p.Log),
		openaiImageClient: newOpenAIImageClient(p.Config.OpenAIAPIKey, p.Config.ImageModel, p.Log),
	}
}

// Module wires the staged generation client.
var Module = fx.Module("genai",
	fx.Provide(NewClient),
)
