package freshness

import (
	"time"

	"ChartSync/internal/domain/models"
)

// Evaluator turns points and a key into a servable chart, or reports no data.
type Evaluator struct {
	policy Policy
}

// NewEvaluator panics if policy does not cover every range type.
func NewEvaluator(policy Policy) *Evaluator {
	return &Evaluator{policy: MustPolicy(policy)}
}

// Policy returns the windows the evaluator applies.
func (e *Evaluator) Policy() Policy { return e.policy }

// Evaluate returns (nil, false) when no chart can be served for key at now.
// points must be sorted ascending by timestamp.
func (e *Evaluator) Evaluate(points []models.Point, key models.ChartKey, now time.Time) (*models.ChartInfo, bool) {
	if len(points) == 0 {
		return nil, false
	}

	w := e.policy.Window(key.RangeType)
	last := points[len(points)-1]
	age := now.Sub(last.Timestamp)

	var start, end time.Time
	if key.RangeType == models.RangeToday {
		start = UTCStartOfDay(now)
		end = start.Add(day)
	} else {
		start = last.Timestamp.Add(-w.Range)
		end = now
	}

	// the window gate comes first: too old for the window means nothing to serve
	if age >= w.Range {
		return nil, false
	}

	pts := make([]models.Point, len(points))
	for i, p := range points {
		pts[i] = p.Clone()
	}

	return &models.ChartInfo{
		Points:         pts,
		StartTimestamp: start,
		EndTimestamp:   end,
		Expired:        age >= w.Expiration,
	}, true
}
