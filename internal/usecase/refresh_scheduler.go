package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"ChartSync/internal/domain/models"
	applogger "ChartSync/pkg/logger"
	"ChartSync/pkg/queue"
)

// RefreshReport summarises one pass over the watchlist.
type RefreshReport struct {
	Checked int
	Fresh   int
	Synced  int
	Queued  int
	Skipped int
	Failed  int
}

// RefreshScheduler periodically syncs watched charts that are missing or
// expired. With a queue configured it enqueues refresh jobs instead of
// syncing inline, so any instance consuming the queue can do the work.
type RefreshScheduler struct {
	manager     *ChartManager
	syncer      *ChartSyncer
	queue       queue.Publisher
	spec        string
	instruments []string
	currencies  []string
	rangeTypes  []models.RangeType
	l           *applogger.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

type SchedulerOption func(*RefreshScheduler)

// WithRefreshQueue dispatches refreshes as RefreshJobType messages.
func WithRefreshQueue(pub queue.Publisher) SchedulerOption {
	return func(s *RefreshScheduler) { s.queue = pub }
}

func NewRefreshScheduler(
	manager *ChartManager,
	syncer *ChartSyncer,
	spec string,
	instruments, currencies []string,
	rangeTypes []models.RangeType,
	l *applogger.Logger,
	opts ...SchedulerOption,
) *RefreshScheduler {
	if l == nil {
		l = applogger.Nop()
	}
	s := &RefreshScheduler{
		manager:     manager,
		syncer:      syncer,
		spec:        spec,
		instruments: instruments,
		currencies:  currencies,
		rangeTypes:  rangeTypes,
		l:           l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules RunOnce on the cron spec. Jobs use ctx and skip a tick while the previous one runs.
func (s *RefreshScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("refresh scheduler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh %q: %w", s.spec, err)
	}
	c.Start()
	s.cron = c
	s.running = true
	s.l.Info("refresh scheduler started",
		applogger.String("spec", s.spec),
		applogger.Int("instruments", len(s.instruments)),
	)
	return nil
}

// Stop halts scheduling and waits for a running pass or ctx, whichever ends first.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.running = false
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop refresh scheduler: %w", ctx.Err())
	}
}

// RunOnce checks every watched chart and syncs the ones that need it.
func (s *RefreshScheduler) RunOnce(ctx context.Context) RefreshReport {
	var rep RefreshReport
	for _, uid := range s.instruments {
		for _, cur := range s.currencies {
			for _, rt := range s.rangeTypes {
				if ctx.Err() != nil {
					return rep
				}
				rep.Checked++
				s.refresh(ctx, uid, cur, rt, &rep)
			}
		}
	}
	s.l.Debug("refresh pass done",
		applogger.Int("checked", rep.Checked),
		applogger.Int("synced", rep.Synced),
		applogger.Int("queued", rep.Queued),
		applogger.Int("failed", rep.Failed),
	)
	return rep
}

func (s *RefreshScheduler) refresh(ctx context.Context, uid, cur string, rt models.RangeType, rep *RefreshReport) {
	info, err := s.manager.CurrentChart(ctx, uid, cur, rt, s.manager.Now())
	if err != nil {
		rep.Failed++
		s.l.Warn("read current chart", applogger.String("coin_uid", uid), applogger.Error(err))
		return
	}
	if info != nil && !info.Expired {
		rep.Fresh++
		return
	}

	if s.queue != nil {
		req := RefreshRequest{CoinUID: uid, Currency: cur, Range: string(rt)}
		if err := s.queue.PublishMessage(ctx, RefreshJobType, req); err != nil {
			rep.Failed++
			s.l.Warn("enqueue refresh", applogger.String("coin_uid", uid), applogger.Error(err))
			return
		}
		rep.Queued++
		return
	}

	if _, err := s.syncer.SyncInstrument(ctx, uid, cur, rt); err != nil {
		if IsSkippable(err) {
			rep.Skipped++
			return
		}
		rep.Failed++
		s.l.Warn("refresh chart",
			applogger.String("coin_uid", uid),
			applogger.String("currency", cur),
			applogger.String("range", string(rt)),
			applogger.Error(err),
		)
		return
	}
	rep.Synced++
}
