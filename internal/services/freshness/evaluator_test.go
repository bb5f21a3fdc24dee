package freshness

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChartSync/internal/domain/models"
)

var btc = models.Instrument{UID: "bitcoin", Code: "BTC", Name: "Bitcoin"}

func key(rt models.RangeType) models.ChartKey {
	return models.ChartKey{Instrument: btc, CurrencyCode: "usd", RangeType: rt}
}

func pointsEndingAt(last time.Time, n int, step time.Duration) []models.Point {
	pts := make([]models.Point, n)
	for i := 0; i < n; i++ {
		pts[i] = models.Point{
			Timestamp: last.Add(-time.Duration(n-1-i) * step),
			Value:     decimal.NewFromInt(int64(100 + i)),
		}
	}
	return pts
}

// 7 day window, 1 day expiration
func weekPolicy() Policy {
	return DefaultPolicy().Merge(Policy{models.RangeWeek1: {Range: 7 * day, Expiration: day}})
}

func TestEvaluateEmptyIsNoData(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Now()
	for _, rt := range models.AllRangeTypes() {
		info, ok := e.Evaluate(nil, key(rt), now)
		assert.False(t, ok, rt)
		assert.Nil(t, info, rt)

		info, ok = e.Evaluate([]models.Point{}, key(rt), now)
		assert.False(t, ok, rt)
		assert.Nil(t, info, rt)
	}
}

func TestEvaluateExpiredWithinWindow(t *testing.T) {
	e := NewEvaluator(weekPolicy())
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-2 * day)
	pts := pointsEndingAt(last, 5, time.Hour)

	info, ok := e.Evaluate(pts, key(models.RangeWeek1), now)
	require.True(t, ok)
	assert.True(t, info.Expired)
	assert.Len(t, info.Points, 5)
	assert.True(t, info.StartTimestamp.Equal(last.Add(-7*day)))
	assert.True(t, info.EndTimestamp.Equal(now))
}

func TestEvaluateOutsideWindowIsNoData(t *testing.T) {
	e := NewEvaluator(weekPolicy())
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	pts := pointsEndingAt(now.Add(-10*day), 5, time.Hour)

	info, ok := e.Evaluate(pts, key(models.RangeWeek1), now)
	assert.False(t, ok)
	assert.Nil(t, info)
}

func TestEvaluateWindowGateBeatsExpiration(t *testing.T) {
	// expiration longer than range: the range check still wins
	p := DefaultPolicy().Merge(Policy{models.RangeWeek1: {Range: day, Expiration: 7 * day}})
	e := NewEvaluator(p)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	_, ok := e.Evaluate(pointsEndingAt(now.Add(-2*day), 3, time.Hour), key(models.RangeWeek1), now)
	assert.False(t, ok)

	info, ok := e.Evaluate(pointsEndingAt(now.Add(-time.Hour), 3, time.Hour), key(models.RangeWeek1), now)
	require.True(t, ok)
	assert.False(t, info.Expired)
}

func TestEvaluateBoundaries(t *testing.T) {
	e := NewEvaluator(weekPolicy())
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		age         time.Duration
		wantOK      bool
		wantExpired bool
	}{
		{"fresh", time.Hour, true, false},
		{"just below expiration", day - time.Second, true, false},
		{"at expiration", day, true, true},
		{"just below range", 7*day - time.Second, true, true},
		{"at range", 7 * day, false, false},
		{"beyond range", 8 * day, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts := pointsEndingAt(now.Add(-tt.age), 2, time.Minute)
			info, ok := e.Evaluate(pts, key(models.RangeWeek1), now)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantExpired, info.Expired)
			}
		})
	}
}

func TestEvaluateTodayWindow(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	wantStart := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	// point timestamps do not move the window
	for _, last := range []time.Time{now.Add(-time.Minute), now.Add(-20 * time.Hour), now.Add(-10 * time.Hour)} {
		info, ok := e.Evaluate(pointsEndingAt(last, 4, 5*time.Minute), key(models.RangeToday), now)
		require.True(t, ok)
		assert.True(t, info.StartTimestamp.Equal(wantStart), "start %v", info.StartTimestamp)
		assert.True(t, info.EndTimestamp.Equal(wantEnd), "end %v", info.EndTimestamp)
	}
}

func TestEvaluateTodayExpiry(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

	info, ok := e.Evaluate(pointsEndingAt(now.Add(-10*time.Minute), 3, time.Minute), key(models.RangeToday), now)
	require.True(t, ok)
	assert.False(t, info.Expired)

	info, ok = e.Evaluate(pointsEndingAt(now.Add(-2*time.Hour), 3, time.Minute), key(models.RangeToday), now)
	require.True(t, ok)
	assert.True(t, info.Expired)

	_, ok = e.Evaluate(pointsEndingAt(now.Add(-25*time.Hour), 3, time.Minute), key(models.RangeToday), now)
	assert.False(t, ok)
}

func TestEvaluateStartNotAfterEnd(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	for _, rt := range models.AllRangeTypes() {
		info, ok := e.Evaluate(pointsEndingAt(now.Add(-time.Minute), 3, time.Minute), key(rt), now)
		require.True(t, ok, rt)
		assert.False(t, info.StartTimestamp.After(info.EndTimestamp), rt)
	}
}

func TestEvaluateCopiesPoints(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Now()
	pts := pointsEndingAt(now.Add(-time.Minute), 3, time.Minute)

	info, ok := e.Evaluate(pts, key(models.RangeDay1), now)
	require.True(t, ok)
	pts[0].Value = decimal.NewFromInt(-1)
	assert.True(t, info.Points[0].Value.Equal(decimal.NewFromInt(100)))
}

func TestEvaluateCopiesExtra(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Now()
	pts := pointsEndingAt(now.Add(-time.Minute), 2, time.Minute)
	pts[1].Extra = map[string]decimal.Decimal{models.ExtraVolume: decimal.NewFromInt(5)}

	info, ok := e.Evaluate(pts, key(models.RangeDay1), now)
	require.True(t, ok)
	pts[1].Extra[models.ExtraVolume] = decimal.NewFromInt(99)

	vol, ok := info.Points[1].Volume()
	require.True(t, ok)
	assert.True(t, vol.Equal(decimal.NewFromInt(5)))
	assert.Nil(t, info.Points[0].Extra)
}
