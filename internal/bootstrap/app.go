package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"syllabussync/internal/ai"
	"syllabussync/internal/app"
	"syllabussync/internal/cache"
	"syllabussync/internal/config"
	"syllabussync/internal/logging"
	"syllabussync/internal/pkg/datefind"
	"syllabussync/internal/pkg/ics"
	"syllabussync/internal/pkg/pdfextract"
	"syllabussync/internal/platform/database"
	mysqlClient "syllabussync/internal/platform/mysql"
	"syllabussync/internal/platform/objectstore"
	postgresClient "syllabussync/internal/platform/postgres"
	rabbitmqClient "syllabussync/internal/platform/rabbitmq"
	redisClient "syllabussync/internal/platform/redis"
	sqliteClient "syllabussync/internal/platform/sqlite"
	"syllabussync/internal/repository"
	"syllabussync/internal/worker"
)

type Options struct {
	// Local runs stages in-process instead of publishing them to RabbitMQ.
	Local bool
	// Worker starts the RabbitMQ stage consumer. Ignored when Local.
	Worker bool
	// SkipRedis leaves the query cache and stage lock out.
	SkipRedis bool
}

type Services struct {
	Auth      *app.AuthService
	Ingest    *app.IngestService
	Upload    *app.UploadService
	Documents *app.DocumentService
	QA        *app.QAService
	Calendar  *app.CalendarService
}

type App struct {
	Config   *config.Config
	Logger   *log.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Store    *objectstore.Store
	Services Services

	// LocalQueue is set when stages run in-process.
	LocalQueue  *worker.LocalQueue
	StageWorker *worker.StageWorker

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logging.New(cfg.App.LogLevel, cfg.App.LogFormat), StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.DB, err = OpenDatabase(ctx, cfg); err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, a.DB); err != nil {
		return nil, err
	}

	if !opts.SkipRedis && cfg.Redis.Addr != "" {
		if a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			return nil, err
		}
	}

	if a.Store, err = objectstore.New(objectstore.Config{
		EndpointURL: cfg.S3.EndpointURL,
		AccessKey:   cfg.S3.AccessKey,
		SecretKey:   cfg.S3.SecretKey,
		Region:      cfg.S3.Region,
		Bucket:      cfg.S3.Bucket,
		Secure:      cfg.S3.Secure,
		MaxBytes:    cfg.S3.MaxUploadBytes,
	}); err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg, a.Logger)
	if err != nil {
		return nil, err
	}
	synthesizer, err := NewSynthesizer(cfg)
	if err != nil {
		return nil, err
	}

	var (
		queue     app.StageQueue
		publisher *rabbitmqClient.StagePublisher
	)
	if opts.Local {
		a.LocalQueue = worker.NewLocalQueue(cfg.RabbitMQ.MaxAttempts, cfg.RetryBaseDelay(), a.Logger)
		queue = a.LocalQueue
	} else {
		if a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.App.Name); err != nil {
			return nil, err
		}
		publisher = rabbitmqClient.NewStagePublisher(a.MQConn, cfg.RabbitMQ.StageQueue)
		queue = publisher
	}

	docs := repository.NewDocumentRepository(a.DB)
	ingestRepo := repository.NewIngestRepository(a.DB)
	userRepo := repository.NewUserRepository(a.DB)

	ingest := app.NewIngestService(
		docs,
		ingestRepo,
		a.Store,
		pdfextract.New(),
		embedder,
		datefind.New(cfg.Location()),
		queue,
		app.IngestOptions{
			ChunkMaxLen:   cfg.Ingest.ChunkMaxLen,
			ChunkOverlap:  cfg.Ingest.ChunkOverlap,
			EventTitleMax: cfg.Ingest.EventTitleMax,
			StageTimeout:  cfg.StageTimeout(),
		},
		a.Logger.WithPrefix("ingest"),
	)
	if a.LocalQueue != nil {
		a.LocalQueue.Bind(ingest)
	}

	var queryCache app.QueryVectorCache
	if a.Redis != nil {
		queryCache = cache.NewQueryEmbeddingCache(a.Redis, cfg.QueryCacheTTL())
	}
	retriever := app.NewRetriever(
		docs,
		repository.NewCandidateSearcher(a.DB),
		embedder,
		queryCache,
		app.RetrievalOptions{
			DefaultK:        cfg.Retrieval.DefaultK,
			MinFetch:        cfg.Retrieval.MinFetch,
			FetchMultiplier: cfg.Retrieval.FetchMultiplier,
			DupThreshold:    cfg.Retrieval.DupThreshold,
			Lambda:          cfg.Retrieval.Lambda,
			SearchTimeout:   cfg.SearchTimeout(),
		},
		a.Logger.WithPrefix("retrieval"),
	)

	a.Services = Services{
		Auth:   app.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.JWTExpiry(), cfg.Auth.DefaultUserEmail),
		Ingest: ingest,
		Upload: app.NewUploadService(a.Store, docs, queue, app.UploadOptions{
			MaxBytes:      cfg.S3.MaxUploadBytes,
			PresignExpiry: cfg.PresignExpiry(),
		}, a.Logger.WithPrefix("upload")),
		Documents: app.NewDocumentService(docs, ingest, a.Logger.WithPrefix("documents")),
		QA:        app.NewQAService(retriever, docs, synthesizer, cfg.LLM.HistoryMessages, a.Logger.WithPrefix("qa")),
		Calendar: app.NewCalendarService(repository.NewEventRepository(a.DB), ics.Options{
			ProdID:    cfg.Calendar.ProdID,
			UIDDomain: cfg.Calendar.UIDDomain,
		}),
	}

	if opts.Worker && publisher != nil {
		var lock worker.StageLocker
		if a.Redis != nil {
			lock = cache.NewStageLock(a.Redis, cfg.LockTTL())
		}
		a.StageWorker = worker.NewStageWorker(a.MQConn, ingest, publisher, lock, worker.StageWorkerOptions{
			QueueName:   cfg.RabbitMQ.StageQueue,
			Prefetch:    cfg.RabbitMQ.Prefetch,
			MaxAttempts: cfg.RabbitMQ.MaxAttempts,
			RetryBase:   cfg.RetryBaseDelay(),
		}, a.Logger.WithPrefix("worker"))
		if err = a.StageWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start stage worker failed: %w", err)
		}
	}

	a.Logger.Info("application ready",
		"driver", cfg.Database.Driver, "embedding", embedder.ModelID(),
		"local", opts.Local, "worker", a.StageWorker != nil, "redis", a.Redis != nil)
	return a, nil
}

// OpenDatabase connects to the configured driver.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		return mysqlClient.New(ctx, cfg.MySQLDSN())
	case config.DriverPostgres:
		return postgresClient.New(ctx, cfg.PostgresDSN())
	case config.DriverSQLite:
		return sqliteClient.New(ctx, cfg.Database.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// NewEmbedder returns the configured provider backed by the hash embedder,
// or the hash embedder alone.
func NewEmbedder(cfg *config.Config, logger *log.Logger) (ai.Embedder, error) {
	fallback := ai.NewHashEmbedder(cfg.Embedding.Dimension)
	if cfg.Embedding.Provider != config.ProviderOpenAI {
		return fallback, nil
	}
	primary, err := ai.NewOpenAIEmbedder(ai.OpenAIEmbedderConfig{
		BaseURL:           cfg.Embedding.BaseURL,
		APIKey:            cfg.Embedding.APIKey,
		Model:             cfg.Embedding.Model,
		Dimension:         cfg.Embedding.Dimension,
		Timeout:           time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
	})
	if err != nil {
		return nil, err
	}
	return ai.NewFallbackEmbedder(primary, fallback, logger), nil
}

func NewSynthesizer(cfg *config.Config) (ai.Synthesizer, error) {
	if cfg.LLM.Provider != config.ProviderOpenAI {
		return ai.UnavailableSynthesizer{}, nil
	}
	return ai.NewOpenAISynthesizer(ai.OpenAISynthesizerConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
}

func (a *App) Close() error {
	var errs []error
	if a.StageWorker != nil {
		a.StageWorker.Close()
	}
	if a.LocalQueue != nil {
		if err := a.LocalQueue.Wait(); err != nil {
			a.Logger.Warn("local stages failed", "err", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := database.Close(a.DB); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
