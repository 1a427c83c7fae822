// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Logger LoggerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	ImageModel      string

	Storage StorageConfig
	Redis   RedisConfig
}

// LoggerConfig controls the zap logger.
type LoggerConfig struct {
	Level  string
	Format string
}

// StorageConfig configures the S3-compatible object storage backend.
type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	UseSSL         bool
	PublicBaseURL  string
	ForcePathStyle bool
}

// RedisConfig configures the optional profile cache. Addr empty disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "pixora"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		Logger: LoggerConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pixora"),
		DBUser:            getenv("DATABASE_USER", "pixora"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		AnthropicAPIKey: strings.TrimSpace(getenv("ANTHROPIC_API_KEY", "")),
		AnthropicModel:  getenv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		OpenAIAPIKey:    strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
		ImageModel:      getenv("IMAGE_MODEL", "gpt-image-1"),

		Storage: StorageConfig{
			Endpoint:       getenv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey:      getenv("STORAGE_ACCESS_KEY", ""),
			SecretKey:      getenv("STORAGE_SECRET_KEY", ""),
			Bucket:         getenv("STORAGE_BUCKET", "pixora-artifacts"),
			Region:         getenv("STORAGE_REGION", "us-east-1"),
			UseSSL:         getenvBool("STORAGE_USE_SSL", false),
			PublicBaseURL:  strings.TrimRight(getenv("STORAGE_PUBLIC_BASE_URL", ""), "/"),
			ForcePathStyle: getenvBool("STORAGE_FORCE_PATH_STYLE", true),
		},

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
	}
}

// Module wires process configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPipelineConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
