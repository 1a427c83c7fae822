package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PipelineConfig holds tunable generation pipeline settings.
type PipelineConfig struct {
	MaxUploadAttempts int           `mapstructure:"maxUploadAttempts"`
	UploadBackoffBase time.Duration `mapstructure:"uploadBackoffBase"`
	UploadBackoffCap  time.Duration `mapstructure:"uploadBackoffCap"`
	MinArtifactBytes  int           `mapstructure:"minArtifactBytes"`
	DefaultImageCount int           `mapstructure:"defaultImageCount"`
	MaxImageCount     int           `mapstructure:"maxImageCount"`
	DefaultAspect     string        `mapstructure:"defaultAspect"`
	CaptionVariants   int           `mapstructure:"captionVariants"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxUploadAttempts: 5,
		UploadBackoffBase: 500 * time.Millisecond,
		UploadBackoffCap:  5 * time.Second,
		MinArtifactBytes:  1024,
		DefaultImageCount: 3,
		MaxImageCount:     6,
		DefaultAspect:     "1:1",
		CaptionVariants:   3,
	}
}

// PipelineConfigHolder serves the current pipeline config and hot-reloads it
// when the config file changes.
type PipelineConfigHolder struct {
	current atomic.Value // holds PipelineConfig
}

func NewPipelineConfigHolder() (*PipelineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/pixora/config") // Volume-mounted config
	v.AddConfigPath("/etc/pixora")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("PIXORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPipelineConfig()
	v.SetDefault("pipeline.maxUploadAttempts", defaults.MaxUploadAttempts)
	v.SetDefault("pipeline.uploadBackoffBase", defaults.UploadBackoffBase)
	v.SetDefault("pipeline.uploadBackoffCap", defaults.UploadBackoffCap)
	v.SetDefault("pipeline.minArtifactBytes", defaults.MinArtifactBytes)
	v.SetDefault("pipeline.defaultImageCount", defaults.DefaultImageCount)
	v.SetDefault("pipeline.maxImageCount", defaults.MaxImageCount)
	v.SetDefault("pipeline.defaultAspect", defaults.DefaultAspect)
	v.SetDefault("pipeline.captionVariants", defaults.CaptionVariants)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PipelineConfig
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return nil, err
	}
	if err := validatePipelineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PipelineConfig
		if err := v.UnmarshalKey("pipeline", &updated); err != nil {
			log.Printf("[pipeline-config] reload failed: %v", err)
			return
		}
		if err := validatePipelineConfig(updated); err != nil {
			log.Printf("[pipeline-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pipeline-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPipelineConfigHolder returns a holder pinned to cfg. Tests use it
// to shrink retry delays.
func NewStaticPipelineConfigHolder(cfg PipelineConfig) *PipelineConfigHolder {
	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PipelineConfigHolder) Get() PipelineConfig {
	return h.current.Load().(PipelineConfig)
}

func validatePipelineConfig(cfg PipelineConfig) error {
	if cfg.MaxUploadAttempts < 1 {
		return errors.New("pipeline.maxUploadAttempts must be at least 1")
	}
	if cfg.UploadBackoffBase <= 0 || cfg.UploadBackoffCap < cfg.UploadBackoffBase {
		return errors.New("pipeline.uploadBackoff base/cap out of range")
	}
	if cfg.DefaultImageCount < 1 || cfg.MaxImageCount < cfg.DefaultImageCount {
		return errors.New("pipeline.imageCount defaults out of range")
	}
	if cfg.CaptionVariants < 1 {
		return errors.New("pipeline.captionVariants must be at least 1")
	}
	return nil
}
