package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	Database  Database  `mapstructure:"database"`
	Graph     Graph     `mapstructure:"graph"`
	AI        AI        `mapstructure:"ai"`
	Search    Search    `mapstructure:"search"`
	Ingest    Ingest    `mapstructure:"ingest"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Retrieval Retrieval `mapstructure:"retrieval"`
	Server    Server    `mapstructure:"server"`
}

// App holds general application configuration.
type App struct {
	Debug         bool   `mapstructure:"debug"`
	LogLevel      string `mapstructure:"log_level"`
	ExecutionMode string `mapstructure:"execution_mode"` // only "cloud" is implemented
}

// Database holds relational store (PostgreSQL + pgvector) configuration.
type Database struct {
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// Graph holds graph store (Neo4j) configuration.
type Graph struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// AI holds LLM and embedding configuration.
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration.
type GeminiConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	EmbedTimeout   time.Duration `mapstructure:"embed_timeout"`
}

// Search holds search provider configuration.
type Search struct {
	DefaultProvider string          `mapstructure:"default_provider"`
	MaxResults      int             `mapstructure:"max_results"`
	Timeout         time.Duration   `mapstructure:"timeout"`
	Providers       SearchProviders `mapstructure:"providers"`
}

// SearchProviders holds configuration for all search providers.
type SearchProviders struct {
	Google     GoogleSearchConfig `mapstructure:"google"`
	DuckDuckGo DuckDuckGoConfig   `mapstructure:"duckduckgo"`
}

// GoogleSearchConfig holds Google Custom Search configuration.
type GoogleSearchConfig struct {
	APIKey   string `mapstructure:"api_key"`
	SearchID string `mapstructure:"search_id"`
}

// DuckDuckGoConfig holds DuckDuckGo configuration.
type DuckDuckGoConfig struct {
	RateLimit time.Duration `mapstructure:"rate_limit"`
}

// Ingest holds feed and events worker configuration.
type Ingest struct {
	Feeds           []FeedConfig  `mapstructure:"feeds"`
	EventsURL       string        `mapstructure:"events_url"`
	MinMentions     int           `mapstructure:"min_mentions"`
	ConcurrentFeeds int           `mapstructure:"concurrent_feeds"`
	UserAgent       string        `mapstructure:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// FeedConfig identifies one trusted feed to poll.
type FeedConfig struct {
	URL       string `mapstructure:"url"`
	Publisher string `mapstructure:"publisher"`
}

// Pipeline holds stage batch sizes, budgets, and thresholds.
type Pipeline struct {
	BatchHydrate      int           `mapstructure:"batch_hydrate"`
	BatchDigest       int           `mapstructure:"batch_digest"`
	BatchProvenance   int           `mapstructure:"batch_provenance"`
	ConcurrentHydrate int           `mapstructure:"concurrent_hydrate"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	HydrateTimeout    time.Duration `mapstructure:"hydrate_timeout"`
	StageTimeout      time.Duration `mapstructure:"stage_timeout"`
	CancelGrace       time.Duration `mapstructure:"cancel_grace"`
	TauDedupe         float64       `mapstructure:"tau_dedupe"`
	TauProvenance     float64       `mapstructure:"tau_provenance"`
	MinConfidence     float64       `mapstructure:"min_confidence"`
	IngestInterval    time.Duration `mapstructure:"ingest_interval"`
	HydrateInterval   time.Duration `mapstructure:"hydrate_interval"`
	DigestInterval    time.Duration `mapstructure:"digest_interval"`
	HuntInterval      time.Duration `mapstructure:"hunt_interval"`
	PublishInterval   time.Duration `mapstructure:"publish_interval"`
}

// Retrieval holds hybrid retrieval configuration.
type Retrieval struct {
	ExpandVariants int     `mapstructure:"expand_variants"`
	MaxResults     int     `mapstructure:"max_results"`
	KeywordWeight  float64 `mapstructure:"keyword_weight"`
	VectorWeight   float64 `mapstructure:"vector_weight"`
}

// Server holds HTTP facade configuration.
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSEnabled  bool          `mapstructure:"cors_enabled"`
}

var globalConfig *Config

// Load loads the configuration from .env, the config file, and the environment.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".factweave")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached configuration. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.execution_mode", "cloud")

	viper.SetDefault("database.max_open_conns", 8)
	viper.SetDefault("database.max_idle_conns", 4)
	viper.SetDefault("database.query_timeout", "50s")

	viper.SetDefault("graph.uri", "neo4j://localhost:7687")
	viper.SetDefault("graph.username", "neo4j")
	viper.SetDefault("graph.database", "neo4j")

	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.extract_timeout", "30s")
	viper.SetDefault("ai.gemini.embed_timeout", "10s")

	viper.SetDefault("search.default_provider", "duckduckgo")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("search.providers.duckduckgo.rate_limit", "2s")

	viper.SetDefault("ingest.min_mentions", 10)
	viper.SetDefault("ingest.concurrent_feeds", 3)
	viper.SetDefault("ingest.user_agent", "Factweave/1.0")
	viper.SetDefault("ingest.timeout", "30s")

	viper.SetDefault("pipeline.batch_hydrate", 20)
	viper.SetDefault("pipeline.batch_digest", 10)
	viper.SetDefault("pipeline.batch_provenance", 25)
	viper.SetDefault("pipeline.concurrent_hydrate", 5)
	viper.SetDefault("pipeline.max_attempts", 3)
	viper.SetDefault("pipeline.fetch_timeout", "10s")
	viper.SetDefault("pipeline.hydrate_timeout", "15s")
	viper.SetDefault("pipeline.stage_timeout", "4m")
	viper.SetDefault("pipeline.cancel_grace", "5s")
	viper.SetDefault("pipeline.tau_dedupe", 0.05)
	viper.SetDefault("pipeline.tau_provenance", 0.15)
	viper.SetDefault("pipeline.min_confidence", 0.4)
	viper.SetDefault("pipeline.ingest_interval", "30m")
	viper.SetDefault("pipeline.hydrate_interval", "30m")
	viper.SetDefault("pipeline.digest_interval", "5m")
	viper.SetDefault("pipeline.hunt_interval", "10m")
	viper.SetDefault("pipeline.publish_interval", "60m")

	viper.SetDefault("retrieval.expand_variants", 3)
	viper.SetDefault("retrieval.max_results", 15)
	viper.SetDefault("retrieval.keyword_weight", 0.5)
	viper.SetDefault("retrieval.vector_weight", 0.5)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.cors_enabled", true)
}

// bindEnvironmentVariables maps well-known environment variables onto config keys.
func bindEnvironmentVariables() {
	_ = viper.BindEnv("ai.gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("database.dsn", "DATABASE_URL")
	_ = viper.BindEnv("graph.uri", "NEO4J_URI")
	_ = viper.BindEnv("graph.username", "NEO4J_USERNAME")
	_ = viper.BindEnv("graph.password", "NEO4J_PASSWORD")
	_ = viper.BindEnv("search.providers.google.api_key", "GOOGLE_CSE_API_KEY")
	_ = viper.BindEnv("search.providers.google.search_id", "GOOGLE_CSE_SEARCH_ID")
	_ = viper.BindEnv("ingest.events_url", "EVENTS_EXPORT_URL")
}

// validateConfig rejects configurations that would fail at first use.
// Missing credentials are fatal at startup, not at the first stage invocation.
func validateConfig(config *Config) error {
	if config.App.ExecutionMode == "local" {
		return fmt.Errorf("app.execution_mode \"local\" is not implemented yet; use \"cloud\"")
	}
	if config.App.ExecutionMode != "cloud" {
		return fmt.Errorf("app.execution_mode must be \"cloud\", got %q", config.App.ExecutionMode)
	}
	if config.Pipeline.TauDedupe <= 0 || config.Pipeline.TauDedupe >= 1 {
		return fmt.Errorf("pipeline.tau_dedupe must be in (0,1), got %v", config.Pipeline.TauDedupe)
	}
	if config.Pipeline.TauProvenance <= 0 || config.Pipeline.TauProvenance >= 1 {
		return fmt.Errorf("pipeline.tau_provenance must be in (0,1), got %v", config.Pipeline.TauProvenance)
	}
	if config.Retrieval.MaxResults <= 0 {
		return fmt.Errorf("retrieval.max_results must be positive, got %d", config.Retrieval.MaxResults)
	}
	if w := config.Retrieval.KeywordWeight + config.Retrieval.VectorWeight; w <= 0 {
		return fmt.Errorf("retrieval scoring weights must sum to a positive value, got %v", w)
	}
	return nil
}
