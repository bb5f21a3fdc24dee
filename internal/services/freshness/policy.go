// Package freshness decides whether cached chart points can be served.
//
// Every range type has a Window: Range is the span a chart covers and the
// maximum age of its last point before the chart counts as missing;
// Expiration is the age after which a chart is still served but flagged
// expired. Both checks are independent and evaluated in that order.
package freshness

import (
	"fmt"
	"time"

	"ChartSync/internal/domain/models"
)

const day = 24 * time.Hour

type Window struct {
	Range      time.Duration
	Expiration time.Duration
}

// Policy maps every range type to its window.
type Policy map[models.RangeType]Window

// DefaultPolicy returns the built-in windows.
func DefaultPolicy() Policy {
	return Policy{
		models.RangeToday:  {Range: day, Expiration: 30 * time.Minute},
		models.RangeDay1:   {Range: day, Expiration: 30 * time.Minute},
		models.RangeWeek1:  {Range: 7 * day, Expiration: 4 * time.Hour},
		models.RangeWeek2:  {Range: 14 * day, Expiration: 8 * time.Hour},
		models.RangeMonth1: {Range: 30 * day, Expiration: day},
		models.RangeMonth3: {Range: 90 * day, Expiration: 2 * day},
		models.RangeMonth6: {Range: 180 * day, Expiration: 3 * day},
		models.RangeYear1:  {Range: 365 * day, Expiration: 7 * day},
		models.RangeYear2:  {Range: 730 * day, Expiration: 14 * day},
	}
}

// Merge returns a copy of p with overrides applied on top.
func (p Policy) Merge(overrides Policy) Policy {
	out := make(Policy, len(p)+len(overrides))
	for rt, w := range p {
		out[rt] = w
	}
	for rt, w := range overrides {
		out[rt] = w
	}
	return out
}

// Validate checks that every range type has a usable window.
func (p Policy) Validate() error {
	for _, rt := range models.AllRangeTypes() {
		w, ok := p[rt]
		if !ok {
			return fmt.Errorf("no window for range type %s", rt)
		}
		if w.Range <= 0 || w.Expiration <= 0 {
			return fmt.Errorf("window for range type %s must be positive, got range=%s expiration=%s", rt, w.Range, w.Expiration)
		}
	}
	for rt := range p {
		if !models.IsValidRangeType(rt) {
			return fmt.Errorf("window for unknown range type %s", rt)
		}
	}
	return nil
}

// MustPolicy panics if p is incomplete.
func MustPolicy(p Policy) Policy {
	if err := p.Validate(); err != nil {
		panic(err)
	}
	return p
}

// Window returns the window for rt. A missing entry is a programming error.
func (p Policy) Window(rt models.RangeType) Window {
	w, ok := p[rt]
	if !ok {
		panic(fmt.Sprintf("freshness: no window for range type %q", rt))
	}
	return w
}

// RangeInterval returns how far back a chart of type rt reaches.
func (p Policy) RangeInterval(rt models.RangeType) time.Duration { return p.Window(rt).Range }

// ExpirationInterval returns the last-point age at which a chart of type rt is expired.
func (p Policy) ExpirationInterval(rt models.RangeType) time.Duration {
	return p.Window(rt).Expiration
}

// UTCStartOfDay returns midnight of now's UTC calendar day.
func UTCStartOfDay(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
