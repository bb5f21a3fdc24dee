package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChartSync/internal/domain/models"
	domrepo "ChartSync/internal/domain/repository"
	"ChartSync/pkg/cache"
	applogger "ChartSync/pkg/logger"
	"ChartSync/pkg/metrics"
)

// SyncOutcome tells which notification a completed sync produced.
type SyncOutcome string

const (
	SyncUpdated  SyncOutcome = models.ChartEventUpdated
	SyncNotFound SyncOutcome = models.ChartEventNotFound
)

// ChartSyncer drives the push path: fetch from the provider, then hand the
// result to the manager. At most one sync per key runs at a time when a lock
// backend is configured.
type ChartSyncer struct {
	manager  *ChartManager
	provider domrepo.ChartProvider
	locks    cache.Service
	lockTTL  time.Duration
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

type SyncerOption func(*ChartSyncer)

// WithSyncLocks enables the per-key in-flight guard.
func WithSyncLocks(locks cache.Service, ttl time.Duration) SyncerOption {
	return func(s *ChartSyncer) {
		s.locks = locks
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithSyncerMetrics(mr domrepo.Metrics) SyncerOption {
	return func(s *ChartSyncer) { s.metrics = mr }
}

func WithSyncerLogger(l *applogger.Logger) SyncerOption {
	return func(s *ChartSyncer) { s.l = l }
}

func NewChartSyncer(manager *ChartManager, provider domrepo.ChartProvider, opts ...SyncerOption) *ChartSyncer {
	s := &ChartSyncer{
		manager:  manager,
		provider: provider,
		lockTTL:  2 * time.Minute,
		metrics:  metrics.Noop{},
		l:        applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncInstrument resolves uid and syncs its chart.
func (s *ChartSyncer) SyncInstrument(ctx context.Context, uid, currency string, rt models.RangeType) (SyncOutcome, error) {
	key, err := s.manager.ChartKey(ctx, uid, currency, rt)
	if err != nil {
		s.metrics.RecordSync("unknown_instrument")
		return "", err
	}
	return s.Sync(ctx, key)
}

// Sync fetches points for key and stores them. A provider failure is reported
// to observers as not found and is not returned. Cancellation aborts without
// writing or notifying.
func (s *ChartSyncer) Sync(ctx context.Context, key models.ChartKey) (SyncOutcome, error) {
	if s.locks != nil {
		lockKey := cache.LockKey("sync", key.String())
		ok, err := s.locks.TryLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			s.metrics.RecordError("sync_lock")
			return "", fmt.Errorf("acquire sync lock %s: %w", key, err)
		}
		if !ok {
			s.metrics.RecordSync("in_flight")
			return "", fmt.Errorf("sync %s: %w", key, domrepo.ErrSyncInFlight)
		}
		defer func() {
			if err := s.locks.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
				s.l.Warn("release sync lock", applogger.ChartKey(key), applogger.Error(err))
			}
		}()
	}

	start := time.Now()
	points, err := s.provider.ChartPoints(ctx, key)
	s.metrics.RecordLatency("provider_fetch", time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.RecordSync("cancelled")
			return "", fmt.Errorf("sync %s: %w", key, ctxErr)
		}
		s.metrics.RecordSync("provider_error")
		s.l.Warn("chart fetch failed", applogger.ChartKey(key), applogger.Error(err))
		s.manager.HandleFetchFailure(key)
		return SyncNotFound, nil
	}
	if err := ctx.Err(); err != nil {
		s.metrics.RecordSync("cancelled")
		return "", fmt.Errorf("sync %s: %w", key, err)
	}

	info, err := s.manager.handleFetched(ctx, points, key, s.manager.Now())
	if err != nil {
		s.metrics.RecordSync("store_error")
		return "", err
	}
	if info == nil {
		s.metrics.RecordSync(string(SyncNotFound))
		return SyncNotFound, nil
	}
	s.metrics.RecordSync(string(SyncUpdated))
	s.l.Info("chart synced",
		applogger.ChartKey(key),
		applogger.Int("points", len(points)),
		applogger.Duration("took", time.Since(start)),
	)
	return SyncUpdated, nil
}

// IsSkippable reports errors a background caller should drop rather than retry.
func IsSkippable(err error) bool {
	return errors.Is(err, domrepo.ErrSyncInFlight) ||
		errors.Is(err, domrepo.ErrInstrumentNotFound)
}
