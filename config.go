package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Provider       string
	Model          string
	Temperature    float64
	MaxConcurrency int
	// CachePath persists OpenAI responses. Empty disables the cache.
	CachePath      string
	MaxRevisions   int
	RecursionLimit int
	Checkpoints    CheckpointConfig
	Events         EventsConfig
	Output         OutputConfig
	HTTP           HTTPConfig
	Secrets        Secrets
}

type CheckpointConfig struct {
	Backend string
	Dir     string
	// TTL applies to the redis backend only; zero keeps threads forever.
	TTL time.Duration
}

type EventsConfig struct {
	AMQPExchange string
}

type OutputConfig struct {
	Dir        string
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
	S3Region   string
}

type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

// Secrets are only ever read from the environment.
type Secrets struct {
	OpenAIKey   string
	GeminiKey   string
	RedisURL    string
	DatabaseURL string
	AMQPURL     string
	S3AccessKey string
	S3SecretKey string
}

type configDTO struct {
	Provider       string              `json:"provider" yaml:"provider"`
	Model          string              `json:"model" yaml:"model"`
	Temperature    float64             `json:"temperature" yaml:"temperature"`
	MaxConcurrency *int                `json:"max_concurrency,omitempty" yaml:"max_concurrency"`
	CachePath      *string             `json:"cache_path,omitempty" yaml:"cache_path"`
	MaxRevisions   *int                `json:"max_revisions,omitempty" yaml:"max_revisions"`
	RecursionLimit *int                `json:"recursion_limit,omitempty" yaml:"recursion_limit"`
	Checkpoints    checkpointConfigDTO `json:"checkpoints" yaml:"checkpoints"`
	Events         eventsConfigDTO     `json:"events" yaml:"events"`
	Output         outputConfigDTO     `json:"output" yaml:"output"`
	HTTP           httpConfigDTO       `json:"http" yaml:"http"`
}

type checkpointConfigDTO struct {
	Backend string `json:"backend" yaml:"backend"`
	Dir     string `json:"dir" yaml:"dir"`
	TTL     string `json:"ttl" yaml:"ttl"`
}

type eventsConfigDTO struct {
	AMQPExchange string `json:"amqp_exchange" yaml:"amqp_exchange"`
}

type outputConfigDTO struct {
	Dir        *string `json:"dir,omitempty" yaml:"dir"`
	S3Bucket   string  `json:"s3_bucket" yaml:"s3_bucket"`
	S3Prefix   string  `json:"s3_prefix" yaml:"s3_prefix"`
	S3Endpoint string  `json:"s3_endpoint" yaml:"s3_endpoint"`
	S3Region   string  `json:"s3_region" yaml:"s3_region"`
}

type httpConfigDTO struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

func (c *Config) UnmarshalJSON(data []byte) error {
	var dto configDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	cfg, err := dto.config()
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var dto configDTO
	if err := node.Decode(&dto); err != nil {
		return err
	}
	cfg, err := dto.config()
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// config applies defaults and validates the decoded file.
func (dto configDTO) config() (Config, error) {
	c := Config{
		Provider:       strings.ToLower(dto.Provider),
		Model:          dto.Model,
		Temperature:    dto.Temperature,
		MaxConcurrency: intOr(dto.MaxConcurrency, 3),
		CachePath:      stringOr(dto.CachePath, "./cache.gob"),
		MaxRevisions:   intOr(dto.MaxRevisions, 2),
		RecursionLimit: intOr(dto.RecursionLimit, 25),
		Checkpoints: CheckpointConfig{
			Backend: strings.ToLower(dto.Checkpoints.Backend),
			Dir:     dto.Checkpoints.Dir,
		},
		Events: EventsConfig{AMQPExchange: dto.Events.AMQPExchange},
		Output: OutputConfig{
			Dir:        stringOr(dto.Output.Dir, "./result"),
			S3Bucket:   dto.Output.S3Bucket,
			S3Prefix:   dto.Output.S3Prefix,
			S3Endpoint: dto.Output.S3Endpoint,
			S3Region:   dto.Output.S3Region,
		},
		HTTP: HTTPConfig{
			Addr:           dto.HTTP.Addr,
			AllowedOrigins: dto.HTTP.AllowedOrigins,
		},
	}
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	switch c.Provider {
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = "gpt-4o"
		}
	case ProviderGemini:
		if c.Model == "" {
			c.Model = "gemini-2.5-flash"
		}
	default:
		return Config{}, fmt.Errorf("unknown provider %q", dto.Provider)
	}
	if c.Checkpoints.Backend == "" {
		c.Checkpoints.Backend = BackendFile
	}
	switch c.Checkpoints.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendPostgres:
	default:
		return Config{}, fmt.Errorf("unknown checkpoint backend %q", dto.Checkpoints.Backend)
	}
	if c.Checkpoints.Dir == "" {
		c.Checkpoints.Dir = "./threads"
	}
	if dto.Checkpoints.TTL != "" {
		ttl, err := time.ParseDuration(dto.Checkpoints.TTL)
		if err != nil {
			return Config{}, errors.Join(errors.New("invalid checkpoints.ttl"), err)
		}
		c.Checkpoints.TTL = ttl
	}
	if c.Events.AMQPExchange == "" {
		c.Events.AMQPExchange = "resumestudio.events"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.MaxConcurrency <= 0 || c.MaxRevisions <= 0 || c.RecursionLimit <= 0 {
		return Config{}, errors.New("max_concurrency, max_revisions and recursion_limit must be positive")
	}
	return c, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// DefaultConfig is used when no config file exists.
func DefaultConfig() Config {
	c, _ := configDTO{}.config()
	return c
}

// LoadConfig reads a .json, .yaml or .yml config file and the secrets in
// the environment. A missing file is only an error when required is set.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !required:
	case err != nil:
		return Config{}, errors.Join(errors.New("failed to read config file"), err)
	default:
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &cfg)
		default:
			err = json.Unmarshal(data, &cfg)
		}
		if err != nil {
			return Config{}, errors.Join(errors.New("failed to parse config file"), err)
		}
	}
	cfg.Secrets = secretsFromEnv()
	return cfg, nil
}

func secretsFromEnv() Secrets {
	return Secrets{
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		GeminiKey:   os.Getenv("GEMINI_API_KEY"),
		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AMQPURL:     os.Getenv("AMQP_URL"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
	}
}
