//go:build wireinject
// +build wireinject

package di

import (
	domrepo "FKSEngine/internal/domain/repository"
	"FKSEngine/pkg/config"
	"FKSEngine/pkg/metrics"
	"FKSEngine/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideMetrics,
		wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideSpool,
		ProvideResponseCache,

		// Repositories
		ProvideSignalPublisher,
		ProvideJournal,
		ProvideStateCache,

		// Engines
		ProvideEngineConfig,
		ProvideSessions,
		ProvideProfiles,
		ProvideComponentFactory,
		ProvideEngines,

		// Use cases
		ProvideBarProcessor,
		ProvideIngest,
		ProvideQuery,
		ProvideFeed,
		ProvideBarCollector,
		ProvideRateLimiter,
		ProvideHousekeeper,

		// Transport
		ProvideKafkaConsumer,
		ProvideKafkaHandlers,
		ProvideAPIHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
