package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Default scoring weights for combined-score fusion.
//
// The weights conceptually sum to 1 but summation is not enforced; the
// defaults are load-bearing for downstream consumers and tests.
const (
	DefaultSimilarityWeight = 0.65
	DefaultRecencyWeight    = 0.25
	DefaultImportanceWeight = 0.10
)

// Default sizing knobs.
const (
	DefaultContextWindowSize = 10
	DefaultMaxContextTokens  = 2000
	DefaultCacheTTLSeconds   = 3600
)

// Config contains the complete configuration for the memory subsystem.
//
// Example:
//
//	config := &memory.Config{
//	    Database: memory.DatabaseConfig{
//	        Provider: "sqlite",
//	        SQLitePath: "./memories.db",
//	    },
//	    Embedder: memory.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Model:      "text-embedding-3-small",
//	        Dimensions: 1536,
//	    },
//	}
type Config struct {
	// Database contains backing store configuration.
	Database DatabaseConfig `json:"database"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Retrieval contains scoring and sizing configuration.
	Retrieval RetrievalConfig `json:"retrieval"`

	// Categories is the allowed category set. Empty means the default set.
	Categories []Category `json:"categories,omitempty"`

	// LogLevel sets the logger level: debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
}

// DatabaseConfig contains configuration for both backing stores.
//
// Supported providers: sqlite, chromem (vector side), sqlite, postgres,
// mysql (metadata side). The single Provider field selects the pairing:
// "sqlite" uses SQLite for both sides, "chromem" pairs the in-process
// vector index with SQLite metadata, "postgres" and "mysql" pair the
// SQLite vector index with the named relational metadata store.
type DatabaseConfig struct {
	// Provider selects the store pairing (sqlite, chromem, postgres, mysql).
	Provider string `json:"provider"`

	// SQLitePath is the SQLite database file path. The vector index and
	// metadata store derive separate file names from it.
	SQLitePath string `json:"sqlite_path,omitempty"`

	// Host is the relational server host (postgres, mysql).
	Host string `json:"host,omitempty"`

	// Port is the relational server port.
	Port int `json:"port,omitempty"`

	// User is the relational server user.
	User string `json:"user,omitempty"`

	// Password is the relational server password.
	Password string `json:"password,omitempty"`

	// DBName is the database name.
	DBName string `json:"db_name,omitempty"`

	// SSLMode is the PostgreSQL SSL mode (default "disable").
	SSLMode string `json:"ssl_mode,omitempty"`

	// TableName overrides the metadata table name (default "memory_records").
	TableName string `json:"table_name,omitempty"`

	// CollectionName overrides the chromem collection name (default "memories").
	CollectionName string `json:"collection_name,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai (and OpenAI-compatible endpoints via BaseURL),
// mock (deterministic hash embedder for tests and offline use).
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, mock).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key,omitempty"`

	// Model is the embedding model name (e.g., "text-embedding-3-small").
	Model string `json:"model,omitempty"`

	// BaseURL is the base URL for the API (optional, provider default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors (e.g., 1536).
	Dimensions int `json:"dimensions,omitempty"`
}

// RetrievalConfig contains scoring weights and sizing knobs.
type RetrievalConfig struct {
	// SimilarityWeight scales the similarity component of the combined score.
	SimilarityWeight float64 `json:"similarity_weight"`

	// RecencyWeight scales the recency component of the combined score.
	RecencyWeight float64 `json:"recency_weight"`

	// ImportanceWeight scales the normalized-importance component.
	ImportanceWeight float64 `json:"importance_weight"`

	// ContextWindowSize bounds each conversation context window.
	ContextWindowSize int `json:"context_window_size"`

	// MaxContextTokens bounds the formatted LLM context string.
	MaxContextTokens int `json:"max_context_tokens"`

	// CacheTTLSeconds is the search result cache entry lifetime.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

// DefaultConfig returns a configuration with all defaults applied:
// SQLite storage, mock embedder, default weights and sizes.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Provider:   "sqlite",
			SQLitePath: "./memories.db",
		},
		Embedder: EmbedderConfig{
			Provider: "mock",
		},
		Retrieval: RetrievalConfig{
			SimilarityWeight:  DefaultSimilarityWeight,
			RecencyWeight:     DefaultRecencyWeight,
			ImportanceWeight:  DefaultImportanceWeight,
			ContextWindowSize: DefaultContextWindowSize,
			MaxContextTokens:  DefaultMaxContextTokens,
			CacheTTLSeconds:   DefaultCacheTTLSeconds,
		},
		Categories: DefaultCategories(),
		LogLevel:   "info",
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, chromem, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - MEMORY_SIMILARITY_WEIGHT, MEMORY_RECENCY_WEIGHT,
//     MEMORY_IMPORTANCE_WEIGHT, MEMORY_CONTEXT_WINDOW_SIZE,
//     MEMORY_MAX_CONTEXT_TOKENS, MEMORY_CACHE_TTL_SECONDS
//   - LOG_LEVEL
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := memory.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	config := DefaultConfig()

	config.Database.Provider = getEnvOrDefault("DATABASE_PROVIDER", "sqlite")
	config.Database.SQLitePath = getEnvOrDefault("SQLITE_PATH", "./memories.db")

	switch config.Database.Provider {
	case "postgres":
		config.Database.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
		config.Database.Port = getEnvInt("POSTGRES_PORT", 5432)
		config.Database.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		config.Database.Password = os.Getenv("POSTGRES_PASSWORD")
		config.Database.DBName = getEnvOrDefault("POSTGRES_DATABASE", "memories")
		config.Database.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "mysql":
		config.Database.Host = getEnvOrDefault("MYSQL_HOST", "127.0.0.1")
		config.Database.Port = getEnvInt("MYSQL_PORT", 3306)
		config.Database.User = getEnvOrDefault("MYSQL_USER", "root")
		config.Database.Password = os.Getenv("MYSQL_PASSWORD")
		config.Database.DBName = getEnvOrDefault("MYSQL_DATABASE", "memories")
	}

	config.Embedder.Provider = getEnvOrDefault("EMBEDDING_PROVIDER", "mock")
	config.Embedder.APIKey = os.Getenv("EMBEDDING_API_KEY")
	config.Embedder.Model = os.Getenv("EMBEDDING_MODEL")
	config.Embedder.BaseURL = os.Getenv("EMBEDDING_BASE_URL")
	config.Embedder.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", 0)

	config.Retrieval.SimilarityWeight = getEnvFloat("MEMORY_SIMILARITY_WEIGHT", DefaultSimilarityWeight)
	config.Retrieval.RecencyWeight = getEnvFloat("MEMORY_RECENCY_WEIGHT", DefaultRecencyWeight)
	config.Retrieval.ImportanceWeight = getEnvFloat("MEMORY_IMPORTANCE_WEIGHT", DefaultImportanceWeight)
	config.Retrieval.ContextWindowSize = getEnvInt("MEMORY_CONTEXT_WINDOW_SIZE", DefaultContextWindowSize)
	config.Retrieval.MaxContextTokens = getEnvInt("MEMORY_MAX_CONTEXT_TOKENS", DefaultMaxContextTokens)
	config.Retrieval.CacheTTLSeconds = getEnvInt("MEMORY_CACHE_TTL_SECONDS", DefaultCacheTTLSeconds)

	config.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	return config, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Fields absent from the file keep their DefaultConfig values.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return config, nil
}

// Validate validates the configuration.
//
// Checks that required fields are set and that numeric knobs are sane.
// Scoring weights are checked for non-negativity only; the sum is not
// constrained.
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Database.Provider == "" {
		return NewMemoryError("Validate", fmt.Errorf("%w: database provider required", ErrInvalidConfig))
	}
	if c.Embedder.Provider == "" {
		return NewMemoryError("Validate", fmt.Errorf("%w: embedder provider required", ErrInvalidConfig))
	}
	if c.Retrieval.SimilarityWeight < 0 || c.Retrieval.RecencyWeight < 0 || c.Retrieval.ImportanceWeight < 0 {
		return NewMemoryError("Validate", fmt.Errorf("%w: scoring weights must be non-negative", ErrInvalidConfig))
	}
	if c.Retrieval.ContextWindowSize <= 0 {
		return NewMemoryError("Validate", fmt.Errorf("%w: context window size must be positive", ErrInvalidConfig))
	}
	if c.Retrieval.MaxContextTokens <= 0 {
		return NewMemoryError("Validate", fmt.Errorf("%w: max context tokens must be positive", ErrInvalidConfig))
	}
	if len(c.AllowedCategories()) == 0 {
		return NewMemoryError("Validate", fmt.Errorf("%w: at least one category required", ErrInvalidConfig))
	}
	return nil
}

// AllowedCategories returns the configured category set, falling back to the
// default set when none is configured.
func (c *Config) AllowedCategories() []Category {
	if len(c.Categories) > 0 {
		return c.Categories
	}
	return DefaultCategories()
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
