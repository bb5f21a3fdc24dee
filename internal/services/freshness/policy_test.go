package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChartSync/internal/domain/models"
)

func TestDefaultPolicyCoversAllRangeTypes(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	for _, rt := range models.AllRangeTypes() {
		w := p.Window(rt)
		assert.Positive(t, w.Range, rt)
		assert.Positive(t, w.Expiration, rt)
		assert.LessOrEqual(t, w.Expiration, w.Range, rt)
	}
}

func TestPolicyValidateMissingWindow(t *testing.T) {
	p := DefaultPolicy()
	delete(p, models.RangeMonth3)
	require.Error(t, p.Validate())
	assert.Panics(t, func() { MustPolicy(p) })
	assert.Panics(t, func() { p.Window(models.RangeMonth3) })
}

func TestPolicyValidateRejectsNonPositive(t *testing.T) {
	p := DefaultPolicy().Merge(Policy{models.RangeWeek1: {Range: 0, Expiration: time.Hour}})
	require.Error(t, p.Validate())
}

func TestPolicyMergeKeepsOriginal(t *testing.T) {
	base := DefaultPolicy()
	merged := base.Merge(Policy{models.RangeWeek1: {Range: 7 * day, Expiration: day}})

	assert.Equal(t, day, merged.ExpirationInterval(models.RangeWeek1))
	assert.Equal(t, 4*time.Hour, base.ExpirationInterval(models.RangeWeek1))
	assert.Equal(t, base.Window(models.RangeYear1), merged.Window(models.RangeYear1))
}

func TestUTCStartOfDay(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"utc evening", time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"exact midnight", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"east of utc still previous utc day", time.Date(2024, 1, 16, 2, 0, 0, 0, time.FixedZone("UTC+5", 5*3600)), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"west of utc already next utc day", time.Date(2024, 1, 15, 22, 0, 0, 0, time.FixedZone("UTC-5", -5*3600)), time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UTCStartOfDay(tt.now)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}
