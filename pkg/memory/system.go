package memory

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/embedder"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/embedder/mock"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/embedder/openai"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/logging"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore"
	metamysql "github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore/mysql"
	metapostgres "github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore/postgres"
	metasqlite "github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore/sqlite"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/searchcache"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex"
	vecchromem "github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex/chromem"
	vecsqlite "github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex/sqlite"
)

// System bundles the fully wired memory subsystem.
//
// All components share one logger and one configuration; they are
// constructed once at process start and passed by reference to consumers.
// There is no hidden global state.
type System struct {
	// Storage is the sole write path for memories.
	Storage *Storage

	// Retriever is the ranking engine.
	Retriever *Retriever

	// Context manages per-conversation context windows.
	Context *ContextManager

	// Cache fronts external search providers.
	Cache *searchcache.Cache

	logger *slog.Logger
	config *Config
}

// NewSystem constructs the memory subsystem from configuration.
//
// The configuration selects the embedding provider, the vector index, and
// the metadata store, then wires storage, retriever, context manager, and
// search cache around them.
//
// Example:
//
//	config, err := memory.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	system, err := memory.NewSystem(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer system.Close()
func NewSystem(config *Config) (*System, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(config.LogLevel, os.Stdout)

	provider, err := initEmbedder(&config.Embedder)
	if err != nil {
		return nil, err
	}

	index, err := initVectorIndex(&config.Database, provider.Dimensions())
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	meta, err := initMetadataStore(&config.Database)
	if err != nil {
		_ = provider.Close()
		_ = index.Close()
		return nil, err
	}

	cleanup := func() {
		_ = provider.Close()
		_ = index.Close()
		_ = meta.Close()
	}

	adapter, err := NewVectorAdapter(provider, index)
	if err != nil {
		cleanup()
		return nil, err
	}

	storage, err := NewStorage(adapter, meta, config.AllowedCategories(), logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	retriever, err := NewRetriever(storage, &config.Retrieval, nil, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	contextManager, err := NewContextManager(retriever, config.Retrieval.ContextWindowSize, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	cache := searchcache.New(time.Duration(config.Retrieval.CacheTTLSeconds)*time.Second, logger)

	logger.Info("memory subsystem initialized",
		"database", config.Database.Provider,
		"embedder", config.Embedder.Provider,
		"model", provider.Model(),
	)

	return &System{
		Storage:   storage,
		Retriever: retriever,
		Context:   contextManager,
		Cache:     cache,
		logger:    logger,
		config:    config,
	}, nil
}

// Close releases all backing resources.
func (s *System) Close() error {
	return s.Storage.Close()
}

// initEmbedder constructs the configured embedding provider.
func initEmbedder(cfg *EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(&openai.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "mock":
		return mock.New(cfg.Dimensions), nil
	default:
		return nil, NewMemoryError("initEmbedder",
			fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// initVectorIndex constructs the vector index for the configured pairing.
func initVectorIndex(cfg *DatabaseConfig, dimensions int) (vectorindex.VectorIndex, error) {
	switch cfg.Provider {
	case "chromem":
		return vecchromem.NewClient(&vecchromem.Config{
			CollectionName: cfg.CollectionName,
		})
	case "sqlite", "postgres", "mysql":
		return vecsqlite.NewClient(&vecsqlite.Config{
			DBPath:             cfg.SQLitePath + ".vectors",
			EmbeddingModelDims: dimensions,
		})
	default:
		return nil, NewMemoryError("initVectorIndex",
			fmt.Errorf("%w: unknown database provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// initMetadataStore constructs the metadata store for the configured pairing.
func initMetadataStore(cfg *DatabaseConfig) (metastore.MetadataStore, error) {
	switch cfg.Provider {
	case "sqlite", "chromem":
		return metasqlite.NewClient(&metasqlite.Config{
			DBPath:    cfg.SQLitePath,
			TableName: cfg.TableName,
		})
	case "postgres":
		return metapostgres.NewClient(&metapostgres.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			DBName:    cfg.DBName,
			TableName: cfg.TableName,
			SSLMode:   cfg.SSLMode,
		})
	case "mysql":
		return metamysql.NewClient(&metamysql.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			DBName:    cfg.DBName,
			TableName: cfg.TableName,
		})
	default:
		return nil, NewMemoryError("initMetadataStore",
			fmt.Errorf("%w: unknown database provider %q", ErrInvalidConfig, cfg.Provider))
	}
}
