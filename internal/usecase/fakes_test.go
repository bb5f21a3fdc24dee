package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ChartSync/internal/domain/models"
	domrepo "ChartSync/internal/domain/repository"
	"ChartSync/internal/services/freshness"
)

var (
	bitcoin  = models.Instrument{UID: "bitcoin", Code: "BTC", Name: "Bitcoin"}
	errStore = errors.New("disk full")
)

type fakeResolver map[string]models.Instrument

func (r fakeResolver) Resolve(_ context.Context, uid string) (models.Instrument, error) {
	inst, ok := r[uid]
	if !ok {
		return models.Instrument{}, domrepo.ErrInstrumentNotFound
	}
	return inst, nil
}

// memStore is a PointStore without Replace.
type memStore struct {
	mu       sync.Mutex
	data     map[string][]models.Point
	calls    int
	failRead error
	failDel  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]models.Point)}
}

func (s *memStore) Points(_ context.Context, key models.ChartKey) ([]models.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failRead != nil {
		return nil, s.failRead
	}
	return append([]models.Point(nil), s.data[key.String()]...), nil
}

func (s *memStore) DeleteAll(ctx context.Context, key models.ChartKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failDel != nil {
		return s.failDel
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(s.data, key.String())
	return nil
}

func (s *memStore) Insert(ctx context.Context, key models.ChartKey, points []models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data[key.String()] = append(s.data[key.String()], points...)
	return nil
}

func (s *memStore) stored(key models.ChartKey) []models.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key.String()]
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type replacerStore struct {
	*memStore
	replaced int
}

func (s *replacerStore) Replace(_ context.Context, key models.ChartKey, points []models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced++
	s.data[key.String()] = append([]models.Point(nil), points...)
	return nil
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fetch func(ctx context.Context, key models.ChartKey) ([]models.Point, error)
}

func (p *fakeProvider) ChartPoints(ctx context.Context, key models.ChartKey) ([]models.Point, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fetch(ctx, key)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func returning(points []models.Point, err error) *fakeProvider {
	return &fakeProvider{fetch: func(context.Context, models.ChartKey) ([]models.Point, error) {
		return points, err
	}}
}

type notification struct {
	kind string
	key  models.ChartKey
	info models.ChartInfo
}

type recordingObserver struct {
	mu     sync.Mutex
	events []notification
}

func (o *recordingObserver) ChartUpdated(info models.ChartInfo, key models.ChartKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, notification{kind: models.ChartEventUpdated, key: key, info: info})
}

func (o *recordingObserver) ChartNotFound(key models.ChartKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, notification{kind: models.ChartEventNotFound, key: key})
}

func (o *recordingObserver) all() []notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notification(nil), o.events...)
}

type panickingObserver struct{}

func (panickingObserver) ChartUpdated(models.ChartInfo, models.ChartKey) { panic("boom") }
func (panickingObserver) ChartNotFound(models.ChartKey)                  { panic("boom") }

// pointsBefore builds points ending at last, spaced step apart, oldest first.
func pointsBefore(last time.Time, step time.Duration, n int) []models.Point {
	out := make([]models.Point, n)
	for i := 0; i < n; i++ {
		out[i] = models.Point{
			Timestamp: last.Add(-time.Duration(n-1-i) * step),
			Value:     decimal.NewFromInt(int64(100 + i)),
		}
	}
	return out
}

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func weekKey() models.ChartKey {
	return models.ChartKey{Instrument: bitcoin, CurrencyCode: "usd", RangeType: models.RangeWeek1}
}

func newTestManager(store domrepo.PointStore, provider domrepo.ChartProvider) *ChartManager {
	return NewChartManager(
		fakeResolver{bitcoin.UID: bitcoin},
		store,
		provider,
		freshness.NewEvaluator(freshness.DefaultPolicy()),
		WithClock(func() time.Time { return testNow }),
	)
}
