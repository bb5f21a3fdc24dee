package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChartSync/internal/domain/models"
	domrepo "ChartSync/internal/domain/repository"
	"ChartSync/internal/services/freshness"
	applogger "ChartSync/pkg/logger"
	"ChartSync/pkg/metrics"
)

// ChartManager serves cached charts, fetches fresh ones and persists refresh results.
//
// It does not serialize work per key: when two refreshes of the same key
// complete out of order, the last HandleFetchedPoints call wins. ChartSyncer
// adds a per-key guard for callers that need one.
type ChartManager struct {
	resolver  domrepo.InstrumentResolver
	store     domrepo.PointStore
	provider  domrepo.ChartProvider
	evaluator *freshness.Evaluator
	observers *ObserverSet
	metrics   domrepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
}

type ManagerOption func(*ChartManager)

// WithClock replaces time.Now for the fetch path.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *ChartManager) { m.now = now }
}

func WithMetrics(mr domrepo.Metrics) ManagerOption {
	return func(m *ChartManager) { m.metrics = mr }
}

func WithLogger(l *applogger.Logger) ManagerOption {
	return func(m *ChartManager) { m.l = l }
}

func NewChartManager(
	resolver domrepo.InstrumentResolver,
	store domrepo.PointStore,
	provider domrepo.ChartProvider,
	evaluator *freshness.Evaluator,
	opts ...ManagerOption,
) *ChartManager {
	m := &ChartManager{
		resolver:  resolver,
		store:     store,
		provider:  provider,
		evaluator: evaluator,
		metrics:   metrics.Noop{},
		l:         applogger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.observers = NewObserverSet(m.l)
	return m
}

// Subscribe registers an observer for update and not-found notifications.
func (m *ChartManager) Subscribe(o domrepo.ChartObserver) (unsubscribe func()) {
	return m.observers.Subscribe(o)
}

// Now returns the manager clock's current time.
func (m *ChartManager) Now() time.Time { return m.now() }

// ChartKey resolves uid and builds the key addressing its chart.
func (m *ChartManager) ChartKey(ctx context.Context, uid, currency string, rt models.RangeType) (models.ChartKey, error) {
	inst, err := m.resolver.Resolve(ctx, uid)
	if err != nil {
		return models.ChartKey{}, fmt.Errorf("resolve %q: %w", uid, err)
	}
	return models.ChartKey{Instrument: inst, CurrencyCode: currency, RangeType: rt}, nil
}

// LastSyncTimestamp returns the timestamp of the newest stored point for key.
func (m *ChartManager) LastSyncTimestamp(ctx context.Context, key models.ChartKey) (time.Time, bool, error) {
	points, err := m.store.Points(ctx, key)
	if err != nil {
		m.metrics.RecordError("store_read")
		return time.Time{}, false, fmt.Errorf("read points %s: %w", key, err)
	}
	if len(points) == 0 {
		return time.Time{}, false, nil
	}
	return points[len(points)-1].Timestamp, true, nil
}

// CurrentChart serves the stored chart as of now. An unknown instrument and a
// missing chart both yield (nil, nil); only a store failure is an error.
func (m *ChartManager) CurrentChart(ctx context.Context, uid, currency string, rt models.RangeType, now time.Time) (*models.ChartInfo, error) {
	key, err := m.ChartKey(ctx, uid, currency, rt)
	if err != nil {
		m.metrics.RecordChartRead("unknown_instrument")
		if !errors.Is(err, domrepo.ErrInstrumentNotFound) {
			m.l.Warn("instrument resolution failed", applogger.String("coin_uid", uid), applogger.Error(err))
		}
		return nil, nil
	}

	points, err := m.store.Points(ctx, key)
	if err != nil {
		m.metrics.RecordError("store_read")
		return nil, fmt.Errorf("read points %s: %w", key, err)
	}

	info, ok := m.evaluator.Evaluate(points, key, now)
	switch {
	case !ok:
		m.metrics.RecordChartRead("no_data")
		return nil, nil
	case info.Expired:
		m.metrics.RecordChartRead("expired")
	default:
		m.metrics.RecordChartRead("fresh")
	}
	return info, nil
}

// FetchChart asks the provider for a chart without touching storage or observers.
func (m *ChartManager) FetchChart(ctx context.Context, uid, currency string, rt models.RangeType) (*models.ChartInfo, error) {
	key, err := m.ChartKey(ctx, uid, currency, rt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domrepo.ErrNoChartData, err)
	}
	return m.FetchKey(ctx, key)
}

// FetchKey is FetchChart for an already resolved key.
func (m *ChartManager) FetchKey(ctx context.Context, key models.ChartKey) (*models.ChartInfo, error) {
	points, err := m.fetchPoints(ctx, key)
	if err != nil {
		return nil, err
	}

	info, ok := m.evaluator.Evaluate(points, key, m.now())
	if !ok {
		return nil, fmt.Errorf("fetch chart %s: %w", key, domrepo.ErrNoChartData)
	}
	return info, nil
}

func (m *ChartManager) fetchPoints(ctx context.Context, key models.ChartKey) ([]models.Point, error) {
	start := time.Now()
	points, err := m.provider.ChartPoints(ctx, key)
	m.metrics.RecordLatency("provider_fetch", time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch chart %s: %w", key, ctxErr)
		}
		m.metrics.RecordError("provider")
		return nil, fmt.Errorf("fetch chart %s: %w: %w", key, domrepo.ErrProviderFailure, err)
	}
	return points, nil
}

// HandleFetchedPoints replaces the stored points of key and notifies observers
// about the chart the new points form at now. A persistence failure is
// returned and nothing is pushed.
func (m *ChartManager) HandleFetchedPoints(ctx context.Context, points []models.Point, key models.ChartKey, now time.Time) error {
	_, err := m.handleFetched(ctx, points, key, now)
	return err
}

// handleFetched is HandleFetchedPoints returning the chart it announced; nil
// means observers were told the chart was not found.
func (m *ChartManager) handleFetched(ctx context.Context, points []models.Point, key models.ChartKey, now time.Time) (*models.ChartInfo, error) {
	start := time.Now()
	if err := m.replace(ctx, key, points); err != nil {
		m.metrics.RecordError("store_write")
		return nil, fmt.Errorf("persist points %s: %w", key, err)
	}
	m.metrics.RecordLatency("store_replace", time.Since(start).Seconds())

	info, ok := m.evaluator.Evaluate(points, key, now)
	if !ok {
		m.notifyNotFound(key)
		return nil, nil
	}

	m.l.Debug("chart updated",
		applogger.ChartKey(key),
		applogger.Int("points", len(info.Points)),
		applogger.Bool("expired", info.Expired),
	)
	m.metrics.RecordNotification(models.ChartEventUpdated)
	m.observers.notifyUpdated(*info, key)
	return info, nil
}

// HandleFetchFailure reports that no points could be retrieved for key. Storage is left alone.
func (m *ChartManager) HandleFetchFailure(key models.ChartKey) {
	m.notifyNotFound(key)
}

func (m *ChartManager) notifyNotFound(key models.ChartKey) {
	m.l.Debug("chart not found", applogger.ChartKey(key))
	m.metrics.RecordNotification(models.ChartEventNotFound)
	m.observers.notifyNotFound(key)
}

func (m *ChartManager) replace(ctx context.Context, key models.ChartKey, points []models.Point) error {
	if r, ok := m.store.(domrepo.PointReplacer); ok {
		return r.Replace(ctx, key, points)
	}
	if err := m.store.DeleteAll(ctx, key); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	return m.store.Insert(ctx, key, points)
}
