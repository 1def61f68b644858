// Package config loads this service's environment-driven configuration via
// Viper, grounded on the teacher's pkg/config/viper_provider.go (automatic
// env-var binding, optional YAML file, mapstructure unmarshal) adapted to a
// single flat Config struct with Validate/ApplyDefaults rather than the
// teacher's generic key/value Provider interface, since every field this
// service needs is known up front.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every field spec.md's Configuration section names.
type Config struct {
	// Model backend.
	ModelBackendURL string  `mapstructure:"model_backend_url"`
	TextModel       string  `mapstructure:"text_model"`
	VisionModel     string  `mapstructure:"vision_model"`
	EmbeddingModel  string  `mapstructure:"embedding_model"`
	Temperature     float32 `mapstructure:"temperature"`
	TopP            float32 `mapstructure:"top_p"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	KeepAlive       string  `mapstructure:"keep_alive"`

	// Embedding.
	EmbeddingBatchSize int `mapstructure:"embedding_batch_size"`

	// Chunking.
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// Ingestion.
	MaxUploadMB int `mapstructure:"max_upload_mb"`

	// Vision gating (advisory per spec.md Open Question resolution: all
	// meaningful images are described regardless of these values).
	VisionGatingEnabled  bool    `mapstructure:"vision_gating_enabled"`
	VisionMinAreaRatio   float32 `mapstructure:"vision_min_area_ratio"`

	// Response cache.
	CacheEnabled  bool          `mapstructure:"cache_enabled"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheProvider string        `mapstructure:"cache_provider"`

	// History manager.
	MaxHistoryTokens     int `mapstructure:"max_history_tokens"`
	SummarizeThreshold   int `mapstructure:"summarize_threshold"`

	// Search defaults.
	SearchTopK         int     `mapstructure:"search_top_k"`
	SearchMinSimilarity float32 `mapstructure:"search_min_similarity"`
	HybridVectorWeight float32 `mapstructure:"hybrid_vector_weight"`
	HybridTextWeight   float32 `mapstructure:"hybrid_text_weight"`

	// Agent.
	MaxToolIterations int `mapstructure:"max_tool_iterations"`

	// External interfaces, carried per SPEC_FULL.md §6 even though HTTP
	// routing itself is out of scope.
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Postgres / Redis DSNs, added by SPEC_FULL.md to make the ambient
	// storage stack configurable rather than hard-coded.
	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`
}

// Load builds a Config from environment variables (prefix RAG_) and an
// optional YAML file, applying defaults and validating the result. configName
// and configPaths mirror the teacher's NewViperProvider parameters.
func Load(configName string, configPaths []string) (*Config, error) {
	v := viper.New()

	if configName != "" {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		for _, p := range configPaths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix("rag")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configName != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	cfg.ApplyDefaults()
	// Bind defaults into viper so env vars override them but absent keys
	// still unmarshal to the default rather than the zero value.
	bindDefaults(v, cfg)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("model_backend_url", cfg.ModelBackendURL)
	v.SetDefault("text_model", cfg.TextModel)
	v.SetDefault("vision_model", cfg.VisionModel)
	v.SetDefault("embedding_model", cfg.EmbeddingModel)
	v.SetDefault("temperature", cfg.Temperature)
	v.SetDefault("top_p", cfg.TopP)
	v.SetDefault("max_tokens", cfg.MaxTokens)
	v.SetDefault("keep_alive", cfg.KeepAlive)
	v.SetDefault("embedding_batch_size", cfg.EmbeddingBatchSize)
	v.SetDefault("chunk_size", cfg.ChunkSize)
	v.SetDefault("chunk_overlap", cfg.ChunkOverlap)
	v.SetDefault("max_upload_mb", cfg.MaxUploadMB)
	v.SetDefault("vision_gating_enabled", cfg.VisionGatingEnabled)
	v.SetDefault("vision_min_area_ratio", cfg.VisionMinAreaRatio)
	v.SetDefault("cache_enabled", cfg.CacheEnabled)
	v.SetDefault("cache_ttl", cfg.CacheTTL)
	v.SetDefault("cache_provider", cfg.CacheProvider)
	v.SetDefault("max_history_tokens", cfg.MaxHistoryTokens)
	v.SetDefault("summarize_threshold", cfg.SummarizeThreshold)
	v.SetDefault("search_top_k", cfg.SearchTopK)
	v.SetDefault("search_min_similarity", cfg.SearchMinSimilarity)
	v.SetDefault("hybrid_vector_weight", cfg.HybridVectorWeight)
	v.SetDefault("hybrid_text_weight", cfg.HybridTextWeight)
	v.SetDefault("max_tool_iterations", cfg.MaxToolIterations)
	v.SetDefault("cors_origins", cfg.CORSOrigins)
	v.SetDefault("postgres_dsn", cfg.PostgresDSN)
	v.SetDefault("redis_addr", cfg.RedisAddr)
}

// ApplyDefaults fills zero-valued fields with this service's defaults,
// grounded on the concrete defaults spec.md names throughout §4 (chunk
// size/overlap, embedding batch size, search top_k/min_similarity, hybrid
// weights, max tool iterations).
func (c *Config) ApplyDefaults() {
	if c.ModelBackendURL == "" {
		c.ModelBackendURL = "http://localhost:11434"
	}
	if c.TextModel == "" {
		c.TextModel = "llama3.1"
	}
	if c.VisionModel == "" {
		c.VisionModel = "llava"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "nomic-embed-text"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.TopP == 0 {
		c.TopP = 0.9
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.KeepAlive == "" {
		c.KeepAlive = "5m"
	}
	if c.EmbeddingBatchSize == 0 {
		c.EmbeddingBatchSize = 16
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 50
	}
	if c.VisionMinAreaRatio == 0 {
		c.VisionMinAreaRatio = 0.01
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 1 * time.Hour
	}
	if c.CacheProvider == "" {
		c.CacheProvider = "inmemory"
	}
	if c.MaxHistoryTokens == 0 {
		c.MaxHistoryTokens = 4000
	}
	if c.SummarizeThreshold == 0 {
		c.SummarizeThreshold = 20
	}
	if c.SearchTopK == 0 {
		c.SearchTopK = 5
	}
	if c.SearchMinSimilarity == 0 {
		c.SearchMinSimilarity = 0.3
	}
	if c.HybridVectorWeight == 0 && c.HybridTextWeight == 0 {
		c.HybridVectorWeight = 0.7
		c.HybridTextWeight = 0.3
	}
	if c.MaxToolIterations == 0 {
		c.MaxToolIterations = 5
	}
}

// Validate rejects configurations that would violate an invariant
// downstream components rely on (chunk size/overlap bounds per spec.md
// §4.B, positive batch sizes, sane weight ranges).
func (c *Config) Validate() error {
	if c.ModelBackendURL == "" {
		return fmt.Errorf("config: model_backend_url is required")
	}
	if c.ChunkSize < 100 || c.ChunkSize > 4000 {
		return fmt.Errorf("config: chunk_size must be in [100, 4000], got %d", c.ChunkSize)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config: chunk_overlap (%d) must be less than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbeddingBatchSize < 1 {
		return fmt.Errorf("config: embedding_batch_size must be >= 1, got %d", c.EmbeddingBatchSize)
	}
	if c.MaxToolIterations < 1 {
		return fmt.Errorf("config: max_tool_iterations must be >= 1, got %d", c.MaxToolIterations)
	}
	if c.SearchMinSimilarity < 0 || c.SearchMinSimilarity > 1 {
		return fmt.Errorf("config: search_min_similarity must be in [0, 1], got %f", c.SearchMinSimilarity)
	}
	if w := c.HybridVectorWeight + c.HybridTextWeight; w <= 0 {
		return fmt.Errorf("config: hybrid_vector_weight + hybrid_text_weight must be > 0")
	}
	return nil
}
