package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ChartSync/internal/domain/models"
	domrepo "ChartSync/internal/domain/repository"
	"ChartSync/internal/handler/api"
	"ChartSync/internal/repository"
	"ChartSync/internal/service/coingecko"
	"ChartSync/internal/service/ratelimit"
	"ChartSync/internal/service/wshub"
	"ChartSync/internal/services/freshness"
	"ChartSync/internal/usecase"
	"ChartSync/pkg/cache"
	pkgch "ChartSync/pkg/clickhouse"
	"ChartSync/pkg/config"
	xhttp "ChartSync/pkg/http"
	pkgkafka "ChartSync/pkg/kafka"
	applogger "ChartSync/pkg/logger"
	"ChartSync/pkg/metrics"
	pkgpg "ChartSync/pkg/postgres"
	"ChartSync/pkg/queue"
	"ChartSync/pkg/server"
	pkgsqlite "ChartSync/pkg/sqlite"
)

const schemaTimeout = 10 * time.Second

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Noop{}
	}
	return metrics.New()
}

// ProvideRedisCache connects to Redis when enabled; otherwise it returns nil.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideSyncLocks shares sync locks through Redis when available so that
// instances exclude each other; otherwise locks are process local.
func ProvideSyncLocks(rc *cache.RedisCache) (cache.Service, func()) {
	if rc != nil {
		return rc, func() {}
	}
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute))
	return mem, func() { _ = mem.Close() }
}

// ProvidePointStore opens the configured storage backend and creates its schema.
func ProvidePointStore(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) (domrepo.PointStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	l = l.With(applogger.String("backend", cfg.Storage.Backend))

	switch cfg.Storage.Backend {
	case "sqlite":
		client, err := pkgsqlite.Open(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		if err := client.InitSchema(ctx, repository.SQLiteSchema); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return repository.NewSQLitePointStore(client, l), func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := pkgpg.NewPool(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pool.InitSchema(ctx, repository.PostgresSchema); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		return repository.NewPostgresPointStore(pool, l), pool.Close, nil

	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		if err := client.InitSchema(ctx, repository.ClickHouseSchema); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return repository.NewClickHousePointStore(client, l), func() { _ = client.Close() }, nil

	case "redis":
		if rc == nil {
			return nil, nil, fmt.Errorf("redis storage requires redis.enabled")
		}
		if cfg.Storage.Redis.LocalTTL > 0 {
			lc := cache.NewLayeredCache(rc, cache.WithLayeredMemoryTTL(cfg.Storage.Redis.LocalTTL))
			return repository.NewCachePointStore(lc), func() { _ = lc.Close() }, nil
		}
		return repository.NewCachePointStore(rc), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// ProvideInstrumentResolver serves the configured instrument list.
func ProvideInstrumentResolver(cfg *config.Config) (*repository.StaticInstrumentResolver, error) {
	return repository.NewStaticInstrumentResolver(cfg.Chart.Instruments)
}

// ProvideEvaluator builds the freshness policy with configured window overrides.
func ProvideEvaluator(cfg *config.Config) (*freshness.Evaluator, error) {
	overrides := make(freshness.Policy, len(cfg.Chart.Windows))
	for name, w := range cfg.Chart.Windows {
		overrides[models.RangeType(name)] = freshness.Window{Range: w.Range, Expiration: w.Expiration}
	}
	policy := freshness.DefaultPolicy().Merge(overrides)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("chart windows: %w", err)
	}
	return freshness.NewEvaluator(policy), nil
}

// ProvideChartProvider creates the rate limited CoinGecko client.
func ProvideChartProvider(cfg *config.Config, l *applogger.Logger) domrepo.ChartProvider {
	return coingecko.New(
		xhttp.NewClient(xhttp.WithTimeout(cfg.Provider.Timeout)),
		cfg.Provider.BaseURL,
		coingecko.WithAPIKey(cfg.Provider.APIKey),
		coingecko.WithRateLimit(ratelimit.New(), cfg.Provider.RateLimit.Capacity, cfg.Provider.RateLimit.RefillPerSec),
		coingecko.WithLogger(l),
	)
}

func ProvideChartManager(
	resolver domrepo.InstrumentResolver,
	store domrepo.PointStore,
	provider domrepo.ChartProvider,
	evaluator *freshness.Evaluator,
	mr domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ChartManager {
	return usecase.NewChartManager(resolver, store, provider, evaluator,
		usecase.WithMetrics(mr),
		usecase.WithLogger(l),
	)
}

func ProvideChartSyncer(
	cfg *config.Config,
	manager *usecase.ChartManager,
	provider domrepo.ChartProvider,
	locks cache.Service,
	mr domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ChartSyncer {
	return usecase.NewChartSyncer(manager, provider,
		usecase.WithSyncLocks(locks, cfg.Refresh.LockTTL),
		usecase.WithSyncerMetrics(mr),
		usecase.WithSyncerLogger(l),
	)
}

// ProvideHub creates the websocket hub and subscribes it to chart notifications.
func ProvideHub(manager *usecase.ChartManager, l *applogger.Logger) (*wshub.Hub, func()) {
	hub := wshub.New(wshub.DefaultConfig(), l)
	unsubscribe := manager.Subscribe(hub)
	return hub, func() {
		unsubscribe()
		_ = hub.Close()
	}
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideChartNotifier publishes chart notifications to Kafka. The cleanup
// flushes queued events before the producer closes.
func ProvideChartNotifier(
	cfg *config.Config,
	manager *usecase.ChartManager,
	producer *pkgkafka.Producer,
	l *applogger.Logger,
) (*repository.KafkaChartNotifier, func()) {
	if producer == nil {
		return nil, func() {}
	}
	n := repository.NewKafkaChartNotifier(producer, cfg.Kafka.NotifyTopic, cfg.Kafka.NotifyBuffer, l)
	unsubscribe := manager.Subscribe(n)
	return n, func() {
		unsubscribe()
		_ = n.Close()
	}
}

func ProvideRefreshRequestHandler(cfg *config.Config, syncer *usecase.ChartSyncer, l *applogger.Logger) *usecase.RefreshRequestHandler {
	return usecase.NewRefreshRequestHandler(cfg.Kafka.RefreshTopic, syncer, l)
}

// ProvideKafkaConsumer consumes refresh requests when Kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, h *usecase.RefreshRequestHandler, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(h)
	return consumer, nil
}

// ProvideJobQueue creates the Redis refresh job queue when enabled.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, h *usecase.RefreshRequestHandler, l *applogger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Refresh.Queue.Enabled {
		return nil, nil
	}
	if rc == nil {
		return nil, fmt.Errorf("refresh queue requires redis.enabled")
	}
	q := queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Refresh.Queue.Workers,
		RetryLimit: cfg.Refresh.Queue.RetryLimit,
		RetryDelay: cfg.Refresh.Queue.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Refresh.Queue.Prefix))
	q.RegisterJobs(h)
	return q, nil
}

// ProvideRefreshScheduler watches every configured instrument when refresh is enabled.
func ProvideRefreshScheduler(
	cfg *config.Config,
	manager *usecase.ChartManager,
	syncer *usecase.ChartSyncer,
	resolver *repository.StaticInstrumentResolver,
	jobs *queue.RedisQueue,
	l *applogger.Logger,
) *usecase.RefreshScheduler {
	if !cfg.Refresh.Enabled {
		return nil
	}
	rangeTypes := make([]models.RangeType, 0, len(cfg.Refresh.RangeTypes))
	for _, rt := range cfg.Refresh.RangeTypes {
		rangeTypes = append(rangeTypes, models.RangeType(rt))
	}
	var opts []usecase.SchedulerOption
	if jobs != nil {
		opts = append(opts, usecase.WithRefreshQueue(jobs))
	}
	return usecase.NewRefreshScheduler(manager, syncer, cfg.Refresh.Spec,
		resolver.UIDs(), cfg.Refresh.Currencies, rangeTypes, l, opts...)
}

func ProvideChartsHandler(
	l *applogger.Logger,
	manager *usecase.ChartManager,
	syncer *usecase.ChartSyncer,
	hub *wshub.Hub,
) *api.ChartsEchoHandler {
	return api.NewChartsEchoHandler(l, manager, syncer, hub)
}

// ProvideHTTPServer creates the Echo server with the chart routes.
func ProvideHTTPServer(cfg *config.Config, charts *api.ChartsEchoHandler, store domrepo.PointStore, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(l),
	}
	if hc, ok := store.(domrepo.HealthChecker); ok {
		opts = append(opts, xhttp.WithReadiness("store", hc.Health))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil, nil))
	}
	return xhttp.NewServer([]xhttp.Handler{charts}, opts...)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	hub *wshub.Hub,
	scheduler *usecase.RefreshScheduler,
	consumer *pkgkafka.Consumer,
	jobs *queue.RedisQueue,
	notifier *repository.KafkaChartNotifier,
) *server.App {
	return server.New(cfg, l, srv,
		server.WithHub(hub),
		server.WithScheduler(scheduler),
		server.WithConsumer(consumer),
		server.WithJobQueue(jobs),
		server.WithNotifier(notifier),
	)
}
