//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	domrepo "ChartSync/internal/domain/repository"
	"ChartSync/internal/repository"
	"ChartSync/pkg/config"
	"ChartSync/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup releases storage, Redis and Kafka clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideRedisCache,
		ProvideSyncLocks,
		ProvidePointStore,
		ProvideKafkaProducer,

		// Domain services
		ProvideInstrumentResolver,
		wire.Bind(new(domrepo.InstrumentResolver), new(*repository.StaticInstrumentResolver)),
		ProvideEvaluator,
		ProvideChartProvider,

		// Use cases
		ProvideChartManager,
		ProvideChartSyncer,
		ProvideRefreshRequestHandler,
		ProvideRefreshScheduler,

		// Observers and workers
		ProvideHub,
		ProvideChartNotifier,
		ProvideKafkaConsumer,
		ProvideJobQueue,

		// Transport
		ProvideChartsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
