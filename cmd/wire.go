package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/googly1030/intern-platform/internal/adapters/artifacts"
	"github.com/googly1030/intern-platform/internal/adapters/cache"
	"github.com/googly1030/intern-platform/internal/adapters/http/api"
	"github.com/googly1030/intern-platform/internal/adapters/http/swagger"
	"github.com/googly1030/intern-platform/internal/adapters/llm"
	eventqueue "github.com/googly1030/intern-platform/internal/adapters/mq/queue"
	workerpool "github.com/googly1030/intern-platform/internal/adapters/mq/worker"
	"github.com/googly1030/intern-platform/internal/adapters/prober"
	"github.com/googly1030/intern-platform/internal/adapters/repository"
	"github.com/googly1030/intern-platform/internal/adapters/repository/mysqlstore"
	"github.com/googly1030/intern-platform/internal/adapters/retriever"
	service "github.com/googly1030/intern-platform/internal/app"
	"github.com/googly1030/intern-platform/internal/config"
	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/internal/domain/dedupe"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/pipeline"
	"github.com/googly1030/intern-platform/internal/domain/progress"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// application holds the wired process. closers run in reverse order on close.
type application struct {
	svc     *service.Service
	handler http.Handler
	closers []func() error
}

func (a *application) close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// build wires every component selected by cfg. On error, whatever was
// already opened is closed.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *application, err error) {
	a := &application{}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	var client *redis.Client
	if cfg.RedisAddr != "" {
		rc := cache.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		if client, err = cache.NewClient(ctx, rc); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
	}

	store, err := buildStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	var statusCache *cache.StatusCache
	if client != nil {
		statusCache = cache.NewStatusCache(client, cfg.StatusCacheTTL)
		store = cache.NewMirroredStore(store, statusCache)
	}

	q, err := buildQueue(ctx, cfg, client, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, q.Close)

	guard := buildGuard(cfg, client)

	stages, err := buildStages(ctx, cfg, a, log)
	if err != nil {
		return nil, err
	}

	broadcaster := progress.NewBroadcaster(progress.WithBufferSize(cfg.ProgressBuffer))

	// The transition hook needs the service, which needs the pool, which
	// needs the orchestrator. The closure breaks the cycle.
	var svc *service.Service
	opts := append(stages,
		pipeline.WithPublisher(broadcaster),
		pipeline.WithTransitionHook(func(ctx context.Context, sub model.Submission) { svc.OnTransition(ctx, sub) }),
		pipeline.WithRetryPolicy(pipeline.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		}),
		pipeline.WithDegradedScore(cfg.DegradedQualityScore),
		pipeline.WithAuthorshipWeights(authorshipWeights(cfg)),
		pipeline.WithTimeouts(cfg.CloneTimeout, cfg.ReviewTimeout, cfg.DeployTimeout),
		pipeline.WithLogger(log.Named("pipeline")),
	)
	fetcher := retriever.New(
		retriever.WithToken(cfg.GitHubToken),
		retriever.WithMaxFileBytes(cfg.MaxFileBytes),
		retriever.WithLogger(log.Named("retriever")),
	)
	orch := pipeline.New(store, fetcher, opts...)

	pool := workerpool.NewPool(cfg.WorkerCount, q, orch, guard,
		workerpool.WithStore(store),
		workerpool.WithLogger(log.Named("worker")),
	)

	svcOpts := []service.Option{
		service.WithWorkerPool(pool),
		service.WithBroadcaster(broadcaster),
		service.WithBatchFanout(cfg.BatchFanout),
		service.WithMaxLeaderboardSize(cfg.MaxLeaderboardSize),
		service.WithLogger(log.Named("service")),
	}
	if statusCache != nil {
		svcOpts = append(svcOpts, service.WithStatusReader(statusCache))
	}
	svc = service.New(store, q, svcOpts...)
	a.svc = svc

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, api.WithLogger(log.Named("api"))).Register(ctx, mux)
	a.handler = mux
	return a, nil
}

func buildStore(ctx context.Context, cfg *config.Config, a *application) (repository.Store, error) {
	if cfg.StoreBackend != config.StoreMySQL {
		return repository.NewMemoryStore(), nil
	}
	db, err := mysqlstore.Open(ctx, mysqlstore.Config{
		DSN:             cfg.MySQLDSN,
		MaxOpenConns:    cfg.MySQLMaxOpenConns,
		MaxIdleConns:    cfg.MySQLMaxIdleConns,
		ConnMaxLifetime: cfg.MySQLConnLifetime,
		ConnMaxIdleTime: cfg.MySQLConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := db.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return db, nil
}

func buildQueue(ctx context.Context, cfg *config.Config, client redis.UniversalClient, log logger.Logger) (eventqueue.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueRedis:
		q, err := eventqueue.NewRedisQueue(ctx, client, cfg.QueueKey,
			eventqueue.WithRedisCapacity(cfg.QueueSize),
			eventqueue.WithRedisLogger(log.Named("queue")),
		)
		if err != nil {
			return nil, fmt.Errorf("redis queue: %w", err)
		}
		return q, nil
	case config.QueueKafka:
		kc := eventqueue.DefaultKafkaConfig()
		kc.Brokers = cfg.KafkaBrokers
		kc.Topic = cfg.KafkaTopic
		kc.GroupID = cfg.KafkaGroupID
		q, err := eventqueue.NewKafkaQueue(kc)
		if err != nil {
			return nil, fmt.Errorf("kafka queue: %w", err)
		}
		return q, nil
	default:
		return eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(cfg.QueueSize)), nil
	}
}

func buildGuard(cfg *config.Config, client redis.UniversalClient) dedupe.Guard {
	if cfg.GuardBackend == config.GuardRedis {
		return cache.NewRedisGuard(client, cfg.GuardTTL)
	}
	return dedupe.NewInMemoryGuard(dedupe.WithTTL(cfg.GuardTTL))
}

// buildStages returns the optional collaborators. A stage without its
// collaborator degrades instead of failing the run.
func buildStages(ctx context.Context, cfg *config.Config, a *application, log logger.Logger) ([]pipeline.Option, error) {
	opts := []pipeline.Option{
		pipeline.WithProber(prober.New(
			prober.WithTimeout(cfg.DeployTimeout),
			prober.WithLogger(log.Named("prober")),
		)),
	}

	if cfg.LLMProject != "" {
		reviewer, err := llm.New(ctx, llm.Config{
			ProjectID: cfg.LLMProject,
			Region:    cfg.LLMRegion,
			Model:     cfg.LLMModel,
		}, llm.WithLogger(log.Named("llm")))
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
		a.closers = append(a.closers, reviewer.Close)
		opts = append(opts, pipeline.WithReviewer(reviewer))
	} else {
		log.Warn(ctx, "llm_project not set; code review will be degraded")
	}

	if cfg.ScreenshotURL != "" {
		var uploader artifacts.Uploader
		if cfg.MinIOEndpoint != "" {
			store, err := artifacts.NewMinIOStore(artifacts.MinIOConfig{
				Endpoint:  cfg.MinIOEndpoint,
				AccessKey: cfg.MinIOAccessKey,
				SecretKey: cfg.MinIOSecretKey,
				UseSSL:    cfg.MinIOUseSSL,
				Bucket:    cfg.MinIOBucket,
				PublicURL: cfg.MinIOPublicURL,
			})
			if err != nil {
				return nil, fmt.Errorf("minio: %w", err)
			}
			uploader = store
		} else {
			uploader = artifacts.NewMemoryStore("")
		}
		opts = append(opts, pipeline.WithCapturer(prober.NewCapturer(cfg.ScreenshotURL, uploader,
			prober.WithCaptureLogger(log.Named("capture")),
		)))
	}
	return opts, nil
}

func authorshipWeights(cfg *config.Config) analyzer.AuthorshipWeights {
	return analyzer.AuthorshipWeights{
		PatternRatio:      cfg.AuthorshipPatternWeight,
		ShortRatio:        cfg.AuthorshipShortWeight,
		HighFrequency:     cfg.AuthorshipHighFrequency,
		ModerateFrequency: cfg.AuthorshipModerateFrequency,
		BulkSessions:      cfg.AuthorshipBulkWeight,
		CompressedSpan:    cfg.AuthorshipCompressedWeight,
		ShortSpan:         cfg.AuthorshipShortSpanWeight,
		Conventional:      cfg.AuthorshipConventionalWeight,
	}
}
