package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "SUPPORTBOT"

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL    string `envconfig:"DATABASE_URL"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"file://migrations"`

	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string  `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	ChatTemperature     float32 `envconfig:"CHAT_TEMPERATURE" default:"0.2"`
	SupportContact      string  `envconfig:"SUPPORT_CONTACT" default:"support@talentboard.io"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	QueryCacheTTL time.Duration `envconfig:"QUERY_CACHE_TTL" default:"24h"`

	AMQPURL   string `envconfig:"AMQP_URL"`
	AMQPQueue string `envconfig:"AMQP_QUEUE" default:"supportbot.source-changes"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"supportbot-snapshots"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	APIKeys        []string      `envconfig:"API_KEYS"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	JobTimeout         time.Duration `envconfig:"JOB_TIMEOUT" default:"5m"`

	ChunkSize     int  `envconfig:"CHUNK_SIZE" default:"800"`
	ChunkOverlap  int  `envconfig:"CHUNK_OVERLAP" default:"120"`
	MaxChunks     int  `envconfig:"MAX_CHUNKS" default:"0"`
	SkipUnchanged bool `envconfig:"SKIP_UNCHANGED" default:"true"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// Load reads a .env file when present and then the SUPPORTBOT_* environment.
func Load() (*Config, error) {
	return load(true)
}

// LoadWithoutDatabase is Load for the in-memory mode, where DATABASE_URL
// may be absent.
func LoadWithoutDatabase() (*Config, error) {
	return load(false)
}

func load(requireDatabase bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if requireDatabase && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required key %s_DATABASE_URL missing value", Prefix)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}

	keys := c.APIKeys[:0]
	for _, k := range c.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.APIKeys = keys
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" || c.S3AccessKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasAMQP() bool {
	return c.AMQPURL != ""
}

// TracesSampleRate samples everything outside production.
func (c *Config) TracesSampleRate() float64 {
	if c.Environment == "production" {
		return 0.1
	}
	return 1.0
}
