package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"github.com/talentboard/supportbot/internal/cache"
	"github.com/talentboard/supportbot/internal/config"
	"github.com/talentboard/supportbot/internal/database"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/logger"
	"github.com/talentboard/supportbot/internal/openai"
	"github.com/talentboard/supportbot/internal/repository"
	"github.com/talentboard/supportbot/internal/repository/memory"
	"github.com/talentboard/supportbot/internal/service"
	"github.com/talentboard/supportbot/internal/telemetry"
	"go.uber.org/zap"
)

// chunkBackend is everything the services need from the knowledge store.
type chunkBackend interface {
	service.ChunkStore
	service.ChunkScanner
	service.VectorSearcher
}

// jobQueue is the sync job store shared by the HTTP surface and the worker.
type jobQueue interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	GetByID(ctx context.Context, id string) (*domain.SyncJob, error)
	ClaimPending(ctx context.Context, limit int) ([]*domain.SyncJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.SyncJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
}

type embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type appOptions struct {
	memory    bool
	seedPath  string
	noMigrate bool
}

// app holds the wired stores and services of one process.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	pool      *pgxpool.Pool
	catalog   service.SourceCatalog
	chunks    chunkBackend
	jobs      jobQueue
	tx        service.TxRunner
	embedder  embedder
	sync      *service.SyncService
	retriever *service.Retriever
	chatLogs  *service.ChatLogService

	closers []func()
}

func addAppFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("memory", false, "Use in-memory stores instead of Postgres")
	cmd.Flags().String("seed", "", "JSON file of source documents loaded into the in-memory catalog")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
}

func appOptionsFromFlags(cmd *cobra.Command) appOptions {
	memoryMode, _ := cmd.Flags().GetBool("memory")
	seed, _ := cmd.Flags().GetString("seed")
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	return appOptions{memory: memoryMode, seedPath: seed, noMigrate: noMigrate}
}

// newApp loads configuration and wires logging, telemetry, storage and the
// embedding provider. The caller must call close.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.memory {
		cfg, err = config.LoadWithoutDatabase()
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate(),
		Debug:            cfg.Debug,
	}, log)
	if err != nil {
		log.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		a.closers = append(a.closers, shutdownTelemetry)
	}

	if opts.memory {
		if err := a.openMemory(opts.seedPath); err != nil {
			a.close()
			return nil, err
		}
	} else if err := a.openPostgres(ctx, opts.noMigrate); err != nil {
		a.close()
		return nil, err
	}

	if err := a.openEmbedder(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.sync = service.NewSyncService(a.catalog, a.embedder, a.chunks, service.SyncConfig{
		Chunk: service.ChunkConfig{
			MaxChars:  cfg.ChunkSize,
			MinChars:  cfg.ChunkSize / 2,
			Overlap:   cfg.ChunkOverlap,
			MaxChunks: cfg.MaxChunks,
		},
		SkipUnchanged: cfg.SkipUnchanged,
	}, log)
	a.retriever = service.NewRetriever(a.embedder, a.chunks, a.chunks, log)

	return a, nil
}

func (a *app) openPostgres(ctx context.Context, noMigrate bool) error {
	// The vector extension must exist before the pool registers its types.
	if !noMigrate {
		if err := database.RunMigrations(a.cfg.DatabaseURL, a.cfg.MigrationsPath, a.log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: a.cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.log.Info("connected to database")

	a.pool = pool
	a.catalog = repository.NewSourceRepository(pool)
	a.chunks = repository.NewKnowledgeChunkRepository(pool)
	a.jobs = repository.NewSyncJobRepository(pool)
	a.tx = repository.NewTxRunner(pool)
	a.chatLogs = service.NewChatLogService(repository.NewChatLogRepository(pool), nil)
	return nil
}

func (a *app) openMemory(seedPath string) error {
	catalog := memory.NewCatalog()
	if seedPath != "" {
		sources, err := loadSeedFile(seedPath)
		if err != nil {
			return err
		}
		for _, src := range sources {
			catalog.Put(src)
		}
		a.log.Info("seeded in-memory catalog", zap.String("path", seedPath), zap.Int("sources", len(sources)))
	}

	store := memory.NewChunkStore()
	a.catalog = catalog
	a.chunks = store
	a.jobs = memory.NewSyncJobStore()
	a.tx = service.DirectTxRunner{Store: store}
	a.chatLogs = service.NewChatLogService(memory.NewChatLogStore(), nil)
	a.log.Warn("using in-memory stores, nothing is persisted")
	return nil
}

func (a *app) openEmbedder(ctx context.Context) error {
	client, err := openai.NewClient(a.openAIConfig())
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	a.embedder = client

	if !a.cfg.HasRedis() {
		return nil
	}
	rdb, err := cache.NewRedisClient(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.embedder = cache.NewQueryEmbeddingCache(client, rdb, client.Model(), client.Dimensions(), a.cfg.QueryCacheTTL, a.log)
	a.log.Info("query embedding cache enabled", zap.String("addr", a.cfg.RedisAddr))
	return nil
}

func (a *app) openAIConfig() openai.Config {
	return openai.Config{
		APIKey:              a.cfg.OpenAIAPIKey,
		BaseURL:             a.cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(a.cfg.EmbeddingModel),
		EmbeddingDimensions: a.cfg.EmbeddingDimensions,
		ChatModel:           a.cfg.ChatModel,
		ChatTemperature:     a.cfg.ChatTemperature,
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
