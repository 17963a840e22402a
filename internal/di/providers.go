package di

import (
	"context"
	"fmt"
	"io"
	"time"

	domrepo "FKSEngine/internal/domain/repository"
	"FKSEngine/internal/handler/api"
	mid "FKSEngine/internal/middleware"
	internalrepo "FKSEngine/internal/repository"
	"FKSEngine/internal/service/feed"
	"FKSEngine/internal/service/ratelimit"
	"FKSEngine/internal/services/analytics"
	"FKSEngine/internal/services/session"
	"FKSEngine/internal/usecase"
	"FKSEngine/pkg/cache"
	pkgch "FKSEngine/pkg/clickhouse"
	"FKSEngine/pkg/config"
	xhttp "FKSEngine/pkg/http"
	pkgkafka "FKSEngine/pkg/kafka"
	"FKSEngine/pkg/logger"
	"FKSEngine/pkg/metrics"
	"FKSEngine/pkg/queue"
	"FKSEngine/pkg/server"
)

// Optional infrastructure providers return a nil value when their section is disabled.
// Interface providers must then return an untyped nil so consumers can test for it.

// ProvideLogger builds the application logger. When the log collector is enabled and
// Kafka is available, aggregated errors are shipped to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	col := cfg.Logging.Collector
	if col.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:    col.Interval,
			CountThreshold:  col.CountThreshold,
			Topic:           col.Topic,
			Publisher:       producer,
			CollectWarnings: col.CollectWarnings,
		})
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(nil)
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher publishes composites and setups keyed by symbol.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Composites)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(k.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(k.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
		pkgkafka.WithConsumerRetryable(usecase.Retryable),
		pkgkafka.WithConsumerDLQ(k.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(k.Consumer.MinBytes, k.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewLogHook(log, 500*time.Millisecond))
	return consumer, nil
}

// ProvideKafkaHandlers registers one handler per input topic.
func ProvideKafkaHandlers(cfg *config.Config, proc *usecase.BarProcessor, ingest *usecase.Ingest, m domrepo.Metrics) []pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled {
		return nil
	}
	t := cfg.Kafka.Topics
	return []pkgkafka.MessageHandler{
		usecase.NewKafkaBarsHandler(t.Bars, proc, m),
		usecase.NewKafkaSignalsHandler(t.Signals, ingest, m),
		usecase.NewKafkaOutcomesHandler(t.Outcomes, ingest, m),
	}
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	c := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithAddr(c.Host, c.Port),
		pkgch.WithDatabase(c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithAsyncInsert(c.AsyncInsert, c.WaitForAsync),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout, c.WriteTimeout),
		pkgch.WithMaxExecutionTime(c.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRedisCache connects to Redis.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	r := cfg.Redis
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(r.Addr),
		cache.WithRedisPassword(r.Password),
		cache.WithRedisDB(r.DB),
		cache.WithRedisPrefix(r.KeyPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideSpool builds the journal retry queue on the shared Redis connection.
func ProvideSpool(rc *cache.RedisCache, cfg *config.Config, log *logger.Logger) *queue.RedisQueue {
	if rc == nil || !cfg.Redis.Spool.Enabled {
		return nil
	}
	s := cfg.Redis.Spool
	return queue.NewRedisQueue(rc.Client(), queue.Config{
		Workers:    s.Workers,
		RetryLimit: s.RetryLimit,
		RetryDelay: s.RetryDelay,
		Prefix:     cfg.Redis.KeyPrefix + "spool",
	}, log)
}

// ProvideJournal creates the ClickHouse journal, behind the spool when one is configured.
func ProvideJournal(ch *pkgch.Client, spool *queue.RedisQueue, cfg *config.Config, log *logger.Logger) (domrepo.Journal, error) {
	if ch == nil {
		return nil, nil
	}
	j := internalrepo.NewCHJournal(ch.DB(), cfg.ClickHouse.WriteTimeout, log)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	if spool == nil {
		return j, nil
	}
	sj := internalrepo.NewSpooledJournal(j, spool, log)
	spool.Register(sj.Jobs()...)
	return sj, nil
}

// ProvideStateCache keeps the latest state per symbol in memory in front of Redis.
func ProvideStateCache(rc *cache.RedisCache, cfg *config.Config) domrepo.StateCache {
	if rc == nil {
		return nil
	}
	layered := cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Redis.LocalSize),
		cache.WithLayeredMemoryTTL(cfg.Redis.StateTTL),
	)
	return internalrepo.NewCachedState(layered, cfg.Redis.StateTTL)
}

// ProvideResponseCache caches assembled API responses for a few seconds.
func ProvideResponseCache() *cache.MemoryCache {
	return cache.NewMemoryCache(
		cache.WithMemoryMaxSize(512),
		cache.WithMemoryDefaultTTL(5*time.Second),
		cache.WithMemoryCleanup(time.Minute),
	)
}

// ProvideEngineConfig maps the engine section onto analyzer tunables.
func ProvideEngineConfig(cfg *config.Config) (usecase.EngineConfig, error) {
	return usecase.EngineConfigFrom(cfg.Engine)
}

// ProvideSessions creates the session analyzer in the configured timezone.
func ProvideSessions(cfg *config.Config) (*session.Analyzer, error) {
	loc, err := usecase.SessionLocation(cfg.Engine.SessionTimezone)
	if err != nil {
		return nil, err
	}
	return session.NewAnalyzer(loc), nil
}

// ProvideProfiles creates the market profile table.
func ProvideProfiles(cfg *config.Config) *usecase.Profiles {
	return usecase.NewProfiles(cfg.Markets)
}

// ProvideComponentFactory builds the local components of each engine, plus the remote
// model component when analytics is enabled.
func ProvideComponentFactory(cfg *config.Config, log *logger.Logger) usecase.ComponentFactory {
	if !cfg.Analytics.Enabled {
		return usecase.LocalComponents()
	}
	return usecase.LocalComponents(analytics.NewModelComponent(cfg.Analytics, log))
}

// ProvideEngines creates the per-symbol engine registry.
func ProvideEngines(profiles *usecase.Profiles, sessions *session.Analyzer, factory usecase.ComponentFactory, ecfg usecase.EngineConfig, log *logger.Logger) *usecase.Engines {
	return usecase.NewEngines(profiles, sessions, factory, ecfg, log)
}

// ProvideBarProcessor creates the bar processor use case.
func ProvideBarProcessor(
	engines *usecase.Engines,
	pub domrepo.SignalPublisher,
	journal domrepo.Journal,
	state domrepo.StateCache,
	m domrepo.Metrics,
	log *logger.Logger,
) *usecase.BarProcessor {
	return usecase.NewBarProcessor(engines, pub, journal, state, m, log)
}

func ProvideIngest(engines *usecase.Engines, m domrepo.Metrics) *usecase.Ingest {
	return usecase.NewIngest(engines, m)
}

func ProvideQuery(engines *usecase.Engines, state domrepo.StateCache, journal domrepo.Journal, log *logger.Logger) *usecase.Query {
	return usecase.NewQuery(engines, state, journal, log)
}

// ProvideFeed creates the bridge WebSocket stream.
func ProvideFeed(cfg *config.Config, log *logger.Logger) *feed.Client {
	if !cfg.Feed.Enabled {
		return nil
	}
	f := cfg.Feed
	return feed.New(f.URL, f.Token, cfg.Engine.Symbols, f.ReconnectDelay, f.PingInterval, log)
}

// ProvideBarCollector puts the realtime pipeline between the stream and the processor.
func ProvideBarCollector(stream *feed.Client, proc *usecase.BarProcessor, m domrepo.Metrics, cfg *config.Config, log *logger.Logger) *usecase.BarCollector {
	if stream == nil {
		return nil
	}
	pipe := mid.NewRealtimePipeline(proc, m, mid.WithMaxRPS(cfg.Feed.ThrottlePerSec))
	return usecase.NewBarCollector(stream, proc, m, pipe, log)
}

// ProvideRateLimiter limits API calls per client address.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	rps := cfg.Server.RateLimit
	return ratelimit.New(float64(rps), 2*rps)
}

// ProvideHousekeeper sweeps stale signals, journals trust metrics, drops idle limiter
// keys and reports the spool backlog.
func ProvideHousekeeper(
	cfg *config.Config,
	engines *usecase.Engines,
	journal domrepo.Journal,
	m domrepo.Metrics,
	limiter *ratelimit.Limiter,
	spool *queue.RedisQueue,
	log *logger.Logger,
) *usecase.Housekeeper {
	h := usecase.NewHousekeeper(engines, journal, m, cfg.Engine.HealthInterval, log)
	h.AddTask(func(time.Time) { limiter.Sweep(10 * time.Minute) })
	if spool != nil {
		h.AddTask(func(time.Time) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			pending, retrying, dead, err := spool.Depth(ctx)
			if err != nil {
				log.Warn("spool depth unavailable", logger.Error(err))
				return
			}
			if pending+retrying+dead > 0 {
				log.Warn("journal spool backlog",
					logger.Int64("pending", pending),
					logger.Int64("retrying", retrying),
					logger.Int64("dead", dead))
			}
		})
	}
	return h
}

// ProvideAPIHandler exposes the engines over HTTP.
func ProvideAPIHandler(
	query *usecase.Query,
	ingest *usecase.Ingest,
	proc *usecase.BarProcessor,
	limiter *ratelimit.Limiter,
	responses *cache.MemoryCache,
	log *logger.Logger,
) *api.Handler {
	return api.NewHandler(query, ingest, proc, log,
		api.WithRateLimiter(limiter),
		api.WithResponseCache(responses, 5*time.Second),
	)
}

// ProvideHTTPServer creates the echo server with metrics on the default registry.
func ProvideHTTPServer(cfg *config.Config, h *api.Handler, log *logger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, nil, nil),
		xhttp.WithLogger(log),
	)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	engines *usecase.Engines,
	proc *usecase.BarProcessor,
	collector *usecase.BarCollector,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	spool *queue.RedisQueue,
	housekeeper *usecase.Housekeeper,
	httpServer *xhttp.Server,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	responses *cache.MemoryCache,
) *server.App {
	var closers []io.Closer
	if producer != nil {
		closers = append(closers, producer)
	}
	if ch != nil {
		closers = append(closers, ch)
	}
	if rc != nil {
		closers = append(closers, rc)
	}
	closers = append(closers, responses)

	return server.New(cfg, log, server.Components{
		Engines:     engines,
		Processor:   proc,
		Collector:   collector,
		Consumer:    consumer,
		Handlers:    handlers,
		Spool:       spool,
		Housekeeper: housekeeper,
		HTTP:        httpServer,
		Closers:     closers,
	})
}
