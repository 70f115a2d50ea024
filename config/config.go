// Package config loads the process-wide advisor settings.
//
// Settings are layered, later layers winning: built-in defaults, an optional
// YAML file, a .env file, then ADVISOR_* environment variables. The result is
// validated once and passed by pointer into constructors.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/embedding"
	"github.com/poiesic/advisor/interpret"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when Load is given no path and the file exists.
const DefaultFile = "advisor.yaml"

// DefaultEnvFile is the dotenv file Load reads, if present.
const DefaultEnvFile = ".env"

// RetrievalConfig controls the hybrid ranker.
type RetrievalConfig struct {
	TopK         int  `yaml:"top_k"`
	HybridSearch bool `yaml:"hybrid_search"`
}

// HistoryConfig controls how much conversation is replayed to the model.
type HistoryConfig struct {
	MaxMessages int `yaml:"max_messages"`
}

// RetryConfig controls embedding retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Config is the complete advisor configuration.
type Config struct {
	// CataloguePath is the JSON array of catalogue items.
	CataloguePath string `yaml:"catalogue_path"`

	// KnowledgePath is the optional JSON knowledge file keyed by item id.
	KnowledgePath string `yaml:"knowledge_path"`

	// DataDir holds the badger database. Empty keeps everything in memory.
	DataDir string `yaml:"data_dir"`

	// PoolSize bounds concurrent embedding calls during a rebuild.
	// Zero uses the embedding store default.
	PoolSize int `yaml:"pool_size"`

	// StreamBuffer is the capacity of streaming channels.
	StreamBuffer int `yaml:"stream_buffer"`

	Retrieval   RetrievalConfig  `yaml:"retrieval"`
	History     HistoryConfig    `yaml:"history"`
	Retry       RetryConfig      `yaml:"retry"`
	Interpreter interpret.Policy `yaml:"interpreter"`
	AI          ai.Config        `yaml:"ai"`
}

// Default returns the built-in configuration.
func Default() *Config {
	retry := embedding.DefaultRetryPolicy()
	return &Config{
		CataloguePath: "data/catalogue.json",
		KnowledgePath: "data/knowledge.json",
		DataDir:       "data/advisor.db",
		StreamBuffer:  16,
		Retrieval: RetrievalConfig{
			TopK:         5,
			HybridSearch: true,
		},
		History: HistoryConfig{MaxMessages: 6},
		Retry: RetryConfig{
			MaxAttempts: retry.MaxAttempts,
			BaseDelay:   retry.BaseDelay,
			MaxDelay:    retry.MaxDelay,
		},
		Interpreter: interpret.DefaultPolicy(),
		AI:          *ai.DefaultConfig(),
	}
}

// Load builds the configuration from path (or DefaultFile when path is
// empty), DefaultEnvFile and the environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadWithEnvFile(path, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit dotenv file. A missing dotenv
// file is ignored. Variables already set in the environment are not
// overwritten by the file.
func LoadWithEnvFile(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from ADVISOR_* variables. Empty values are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup("ADVISOR_" + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	strs := map[string]*string{
		"CATALOGUE_PATH":            &c.CataloguePath,
		"KNOWLEDGE_PATH":            &c.KnowledgePath,
		"DATA_DIR":                  &c.DataDir,
		"AI_PROVIDER":               &c.AI.Provider,
		"EMBEDDING_HOST":            &c.AI.EmbeddingHost,
		"GENERATION_HOST":           &c.AI.GenerationHost,
		"EMBEDDING_MODEL":           &c.AI.EmbeddingModel,
		"GENERATION_MODEL":          &c.AI.GenerationModel,
		"FALLBACK_GENERATION_MODEL": &c.AI.FallbackGenerationModel,
		"API_KEY":                   &c.AI.APIKey,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TOP_K":                &c.Retrieval.TopK,
		"MAX_HISTORY_MESSAGES": &c.History.MaxMessages,
		"STREAM_BUFFER":        &c.StreamBuffer,
		"POOL_SIZE":            &c.PoolSize,
		"RETRY_MAX_ATTEMPTS":   &c.Retry.MaxAttempts,
		"OFFLINE_DIMENSION":    &c.AI.OfflineDimension,
	}
	for key, dst := range ints {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("ADVISOR_%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"RETRY_BASE_DELAY": &c.Retry.BaseDelay,
		"RETRY_MAX_DELAY":  &c.Retry.MaxDelay,
	}
	for key, dst := range durations {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("ADVISOR_%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v, ok := get("HYBRID_SEARCH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ADVISOR_HYBRID_SEARCH: %w", err)
		}
		c.Retrieval.HybridSearch = b
	}
	if v, ok := get("TEMPERATURE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ADVISOR_TEMPERATURE: %w", err)
		}
		c.AI.Temperature = f
	}
	return nil
}

// Validate checks the configuration and normalizes the AI section.
func (c *Config) Validate() error {
	if c.CataloguePath == "" {
		return errors.New("config: catalogue_path is required")
	}
	if c.Retrieval.TopK <= 0 {
		return errors.New("config: retrieval.top_k must be positive")
	}
	if c.History.MaxMessages < 0 {
		return errors.New("config: history.max_messages cannot be negative")
	}
	if c.StreamBuffer <= 0 {
		return errors.New("config: stream_buffer must be positive")
	}
	if c.PoolSize < 0 {
		return errors.New("config: pool_size cannot be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("config: retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return errors.New("config: retry delays cannot be negative")
	}
	return c.AI.Validate()
}

// RetryPolicy returns the embedding retry policy.
func (c *Config) RetryPolicy() embedding.RetryPolicy {
	return embedding.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
}
