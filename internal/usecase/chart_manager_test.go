package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChartSync/internal/domain/models"
	domrepo "ChartSync/internal/domain/repository"
)

func TestCurrentChartUnknownInstrumentAndNoDataAreBothEmpty(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, returning(nil, nil))

	info, err := m.CurrentChart(context.Background(), "dogecoin", "usd", models.RangeWeek1, testNow)
	require.NoError(t, err)
	assert.Nil(t, info)

	info, err = m.CurrentChart(context.Background(), bitcoin.UID, "usd", models.RangeWeek1, testNow)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestCurrentChartReturnsStoreError(t *testing.T) {
	store := newMemStore()
	store.failRead = errStore
	m := newTestManager(store, returning(nil, nil))

	_, err := m.CurrentChart(context.Background(), bitcoin.UID, "usd", models.RangeWeek1, testNow)
	require.ErrorIs(t, err, errStore)
}

func TestCurrentChartExpiry(t *testing.T) {
	tests := []struct {
		name    string
		last    time.Time
		want    bool
		wantNil bool
	}{
		{name: "fresh", last: testNow.Add(-time.Hour)},
		{name: "expired", last: testNow.Add(-5 * time.Hour), want: true},
		{name: "outside window", last: testNow.Add(-8 * 24 * time.Hour), wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.data[weekKey().String()] = pointsBefore(tt.last, time.Hour, 3)
			m := newTestManager(store, returning(nil, nil))

			info, err := m.CurrentChart(context.Background(), bitcoin.UID, "usd", models.RangeWeek1, testNow)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, info)
				return
			}
			require.NotNil(t, info)
			assert.Equal(t, tt.want, info.Expired)
			assert.Len(t, info.Points, 3)
		})
	}
}

func TestLastSyncTimestamp(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, returning(nil, nil))

	_, ok, err := m.LastSyncTimestamp(context.Background(), weekKey())
	require.NoError(t, err)
	assert.False(t, ok)

	last := testNow.Add(-2 * time.Hour)
	store.data[weekKey().String()] = pointsBefore(last, time.Hour, 4)
	ts, ok, err := m.LastSyncTimestamp(context.Background(), weekKey())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(last))
}

func TestFetchChartUnresolvedLeavesStoreUntouched(t *testing.T) {
	store := newMemStore()
	provider := returning(pointsBefore(testNow, time.Hour, 2), nil)
	m := newTestManager(store, provider)
	obs := &recordingObserver{}
	m.Subscribe(obs)

	_, err := m.FetchChart(context.Background(), "dogecoin", "usd", models.RangeWeek1)
	require.ErrorIs(t, err, domrepo.ErrNoChartData)
	assert.Zero(t, store.callCount())
	assert.Zero(t, provider.callCount())
	assert.Empty(t, obs.all())
}

func TestFetchChartEvaluatesAtClock(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, returning(pointsBefore(testNow.Add(-5*time.Hour), time.Hour, 3), nil))

	info, err := m.FetchChart(context.Background(), bitcoin.UID, "usd", models.RangeWeek1)
	require.NoError(t, err)
	assert.True(t, info.Expired)
	assert.Zero(t, store.callCount())
}

func TestFetchChartErrors(t *testing.T) {
	boom := errors.New("http 500")

	m := newTestManager(newMemStore(), returning(nil, boom))
	_, err := m.FetchChart(context.Background(), bitcoin.UID, "usd", models.RangeWeek1)
	require.ErrorIs(t, err, domrepo.ErrProviderFailure)
	require.ErrorIs(t, err, boom)

	stale := pointsBefore(testNow.Add(-30*24*time.Hour), time.Hour, 3)
	m = newTestManager(newMemStore(), returning(stale, nil))
	_, err = m.FetchChart(context.Background(), bitcoin.UID, "usd", models.RangeWeek1)
	require.ErrorIs(t, err, domrepo.ErrNoChartData)

	m = newTestManager(newMemStore(), returning(nil, nil))
	_, err = m.FetchChart(context.Background(), bitcoin.UID, "usd", models.RangeWeek1)
	require.ErrorIs(t, err, domrepo.ErrNoChartData)
}

func TestFetchChartCancelled(t *testing.T) {
	provider := &fakeProvider{fetch: func(ctx context.Context, _ models.ChartKey) ([]models.Point, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	m := newTestManager(newMemStore(), provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.FetchChart(ctx, bitcoin.UID, "usd", models.RangeWeek1)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domrepo.ErrProviderFailure)
}

func TestHandleFetchedPointsIsIdempotent(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, returning(nil, nil))
	obs := &recordingObserver{}
	m.Subscribe(obs)
	key := weekKey()
	points := pointsBefore(testNow.Add(-time.Hour), time.Hour, 5)

	require.NoError(t, m.HandleFetchedPoints(context.Background(), points, key, testNow))
	first := store.stored(key)
	require.NoError(t, m.HandleFetchedPoints(context.Background(), points, key, testNow))

	assert.Equal(t, first, store.stored(key))
	events := obs.all()
	require.Len(t, events, 2)
	assert.Equal(t, models.ChartEventUpdated, events[0].kind)
	assert.Equal(t, events[0].info, events[1].info)
	assert.False(t, events[0].info.Expired)
}

func TestHandleFetchedPointsReplacesPreviousPoints(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, returning(nil, nil))
	key := weekKey()

	a := pointsBefore(testNow.Add(-3*time.Hour), time.Hour, 4)
	b := pointsBefore(testNow.Add(-time.Hour), 2*time.Hour, 2)
	require.NoError(t, m.HandleFetchedPoints(context.Background(), a, key, testNow))
	require.NoError(t, m.HandleFetchedPoints(context.Background(), b, key, testNow))

	assert.Equal(t, b, store.stored(key))
}

func TestHandleFetchedPointsUsesReplacer(t *testing.T) {
	store := &replacerStore{memStore: newMemStore()}
	m := newTestManager(store, returning(nil, nil))
	points := pointsBefore(testNow, time.Hour, 2)

	require.NoError(t, m.HandleFetchedPoints(context.Background(), points, weekKey(), testNow))
	assert.Equal(t, 1, store.replaced)
	assert.Equal(t, points, store.stored(weekKey()))
}

func TestHandleFetchedPointsEmptyClearsAndNotifiesNotFound(t *testing.T) {
	store := newMemStore()
	store.data[weekKey().String()] = pointsBefore(testNow, time.Hour, 3)
	m := newTestManager(store, returning(nil, nil))
	obs := &recordingObserver{}
	m.Subscribe(obs)

	require.NoError(t, m.HandleFetchedPoints(context.Background(), nil, weekKey(), testNow))

	assert.Empty(t, store.stored(weekKey()))
	events := obs.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ChartEventNotFound, events[0].kind)
}

func TestHandleFetchedPointsPersistFailureDoesNotNotify(t *testing.T) {
	store := newMemStore()
	store.failDel = errStore
	m := newTestManager(store, returning(nil, nil))
	obs := &recordingObserver{}
	m.Subscribe(obs)

	err := m.HandleFetchedPoints(context.Background(), pointsBefore(testNow, time.Hour, 2), weekKey(), testNow)
	require.ErrorIs(t, err, errStore)
	assert.Empty(t, obs.all())
}

func TestHandleFetchedPointsOutOfOrderLastWriteWins(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, returning(nil, nil))
	key := weekKey()

	newer := pointsBefore(testNow, time.Hour, 3)
	older := pointsBefore(testNow.Add(-2*time.Hour), time.Hour, 3)

	// The newer fetch finishes first, the slower older fetch lands after it.
	require.NoError(t, m.HandleFetchedPoints(context.Background(), newer, key, testNow))
	require.NoError(t, m.HandleFetchedPoints(context.Background(), older, key, testNow))

	assert.Equal(t, older, store.stored(key))
}

func TestHandleFetchFailureNotifiesWithoutTouchingStore(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, returning(nil, nil))
	obs := &recordingObserver{}
	m.Subscribe(obs)

	m.HandleFetchFailure(weekKey())

	assert.Zero(t, store.callCount())
	events := obs.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ChartEventNotFound, events[0].kind)
	assert.Equal(t, weekKey(), events[0].key)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := newTestManager(newMemStore(), returning(nil, nil))
	obs := &recordingObserver{}
	unsubscribe := m.Subscribe(obs)

	m.HandleFetchFailure(weekKey())
	unsubscribe()
	unsubscribe()
	m.HandleFetchFailure(weekKey())

	assert.Len(t, obs.all(), 1)
	assert.Zero(t, m.observers.Len())
}

func TestObserverPanicDoesNotStopOthers(t *testing.T) {
	m := newTestManager(newMemStore(), returning(nil, nil))
	m.Subscribe(panickingObserver{})
	obs := &recordingObserver{}
	m.Subscribe(obs)

	require.NotPanics(t, func() {
		require.NoError(t, m.HandleFetchedPoints(context.Background(), pointsBefore(testNow, time.Hour, 2), weekKey(), testNow))
	})
	assert.Len(t, obs.all(), 1)
}
