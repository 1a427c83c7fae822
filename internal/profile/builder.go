// Package profile assembles optional business context for generation prompts.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	profiledomain "github.com/smallbiznis/pixora/internal/profile/domain"
	"github.com/smallbiznis/pixora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cacheTTL = 10 * time.Minute

// ContextBuilder produces the prompt-ready business context for a tenant.
// An empty string is a valid outcome: the tenant has no profile, or reading
// it failed. Callers proceed without context in both cases.
type ContextBuilder interface {
	BuildContext(ctx context.Context, tenantID snowflake.ID) string
}

type BuilderParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

type builder struct {
	profiles repository.Repository[profiledomain.BusinessProfile]
	log      *zap.Logger
	redis    *redis.Client
}

// NewContextBuilder returns the store-backed context builder with an
// optional redis read-through cache.
func NewContextBuilder(p BuilderParam) ContextBuilder {
	return &builder{
		profiles: repository.ProvideStore[profiledomain.BusinessProfile](p.DB),
		log:      p.Log.Named("profile.builder"),
		redis:    p.Redis,
	}
}

func (b *builder) BuildContext(ctx context.Context, tenantID snowflake.ID) string {
	prof, err := b.load(ctx, tenantID)
	if err != nil {
		// Context is best-effort: log and generate without it.
		b.log.Warn("business profile unavailable, generating without context",
			zap.Int64("tenant_id", int64(tenantID)),
			zap.Error(err),
		)
		return ""
	}
	if prof == nil {
		return ""
	}
	return Render(prof)
}

func (b *builder) load(ctx context.Context, tenantID snowflake.ID) (*profiledomain.BusinessProfile, error) {
	key := cacheKey(tenantID)

	if b.redis != nil {
		raw, err := b.redis.Get(ctx, key).Bytes()
		if err == nil {
			var cached profiledomain.BusinessProfile
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			b.log.Debug("profile cache read failed", zap.Error(err))
		}
	}

	prof, err := b.profiles.FindOne(ctx, &profiledomain.BusinessProfile{TenantID: tenantID})
	if err != nil {
		return nil, err
	}

	if prof != nil && b.redis != nil {
		if raw, err := json.Marshal(prof); err == nil {
			if err := b.redis.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
				b.log.Debug("profile cache write failed", zap.Error(err))
			}
		}
	}

	return prof, nil
}

// Render concatenates the present profile fields into one prompt-ready block.
func Render(prof *profiledomain.BusinessProfile) string {
	var parts []string
	appendPart := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", label, v))
		}
	}

	appendPart("Business name", prof.Name)
	appendPart("Description", prof.Description)
	appendPart("Category", prof.Category)
	appendPart("Brand voice", prof.BrandVoice)
	appendPart("Target audience", prof.TargetAudience)
	appendPart("Brand colors", prof.BrandColors)

	return strings.Join(parts, "\n")
}

func cacheKey(tenantID snowflake.ID) string {
	return fmt.Sprintf("pixora:profile:%s", tenantID.String())
}

// Module wires the prompt context builder.
var Module = fx.Module("profile",
	fx.Provide(NewContextBuilder),
)
