package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChartSync/internal/domain/models"
)

func TestRefreshSchedulerRunOnce(t *testing.T) {
	store := newMemStore()
	fresh := models.ChartKey{Instrument: bitcoin, CurrencyCode: "usd", RangeType: models.RangeWeek1}
	expired := models.ChartKey{Instrument: bitcoin, CurrencyCode: "eur", RangeType: models.RangeWeek1}
	store.data[fresh.String()] = pointsBefore(testNow.Add(-time.Hour), time.Hour, 3)
	store.data[expired.String()] = pointsBefore(testNow.Add(-6*time.Hour), time.Hour, 3)

	provider := returning(pointsBefore(testNow, time.Hour, 4), nil)
	m := newTestManager(store, provider)
	s := NewChartSyncer(m, provider)
	sched := NewRefreshScheduler(m, s, "@every 1h",
		[]string{bitcoin.UID, "unknown"},
		[]string{"usd", "eur", "gbp"},
		[]models.RangeType{models.RangeWeek1},
		nil,
	)

	rep := sched.RunOnce(context.Background())

	assert.Equal(t, 6, rep.Checked)
	assert.Equal(t, 1, rep.Fresh)
	// eur was expired, gbp missing
	assert.Equal(t, 2, rep.Synced)
	// unknown instrument reads as missing and is skipped on sync
	assert.Equal(t, 3, rep.Skipped)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, 2, provider.callCount())
	assert.Len(t, store.stored(expired), 4)
}

func TestRefreshSchedulerStartStop(t *testing.T) {
	provider := returning(nil, nil)
	m := newTestManager(newMemStore(), provider)
	sched := NewRefreshScheduler(m, NewChartSyncer(m, provider), "@every 1h", nil, nil, nil, nil)

	require.NoError(t, sched.Start(context.Background()))
	require.Error(t, sched.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(ctx))
	require.NoError(t, sched.Stop(ctx))
}

func TestRefreshSchedulerRejectsBadSpec(t *testing.T) {
	provider := returning(nil, nil)
	m := newTestManager(newMemStore(), provider)
	sched := NewRefreshScheduler(m, NewChartSyncer(m, provider), "every tuesday", nil, nil, nil, nil)

	require.Error(t, sched.Start(context.Background()))
}

type recordingPublisher struct {
	msgs []RefreshRequest
	err  error
}

func (p *recordingPublisher) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	if p.err != nil {
		return p.err
	}
	if msgType == RefreshJobType {
		p.msgs = append(p.msgs, payload.(RefreshRequest))
	}
	return nil
}

func TestRefreshSchedulerEnqueuesWhenQueueConfigured(t *testing.T) {
	store := newMemStore()
	fresh := models.ChartKey{Instrument: bitcoin, CurrencyCode: "usd", RangeType: models.RangeWeek1}
	store.data[fresh.String()] = pointsBefore(testNow.Add(-time.Hour), time.Hour, 3)

	provider := returning(pointsBefore(testNow, time.Hour, 4), nil)
	m := newTestManager(store, provider)
	pub := &recordingPublisher{}
	sched := NewRefreshScheduler(m, NewChartSyncer(m, provider), "@every 1h",
		[]string{bitcoin.UID},
		[]string{"usd", "eur"},
		[]models.RangeType{models.RangeWeek1},
		nil,
		WithRefreshQueue(pub),
	)

	rep := sched.RunOnce(context.Background())

	assert.Equal(t, 1, rep.Fresh)
	assert.Equal(t, 1, rep.Queued)
	assert.Zero(t, rep.Synced)
	assert.Zero(t, provider.callCount())
	assert.Equal(t, []RefreshRequest{{CoinUID: "bitcoin", Currency: "eur", Range: "week1"}}, pub.msgs)

	pub.err = errors.New("redis down")
	rep = sched.RunOnce(context.Background())
	assert.Equal(t, 1, rep.Failed)
}
