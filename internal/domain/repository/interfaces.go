package repository

import (
	"context"

	"ChartSync/internal/domain/models"
)

// InstrumentResolver maps an opaque instrument id to its canonical record.
type InstrumentResolver interface {
	Resolve(ctx context.Context, uid string) (models.Instrument, error)
}

// PointStore persists chart points per key. Points are returned ascending by
// timestamp. A key holds at most one point per millisecond: writing a point
// whose timestamp (truncated to milliseconds) is already stored replaces it,
// and of several such points in one write the last one is kept. A read after
// a write can therefore return fewer points than were written.
type PointStore interface {
	Points(ctx context.Context, key models.ChartKey) ([]models.Point, error)
	DeleteAll(ctx context.Context, key models.ChartKey) error
	Insert(ctx context.Context, key models.ChartKey, points []models.Point) error
}

// PointReplacer is implemented by stores that can swap a key's points in one transaction.
type PointReplacer interface {
	Replace(ctx context.Context, key models.ChartKey, points []models.Point) error
}

// HealthChecker is implemented by stores that can report whether their backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ChartProvider fetches points for a key from a remote source.
type ChartProvider interface {
	ChartPoints(ctx context.Context, key models.ChartKey) ([]models.Point, error)
}

// ChartObserver receives push notifications. Calls must not block for long.
type ChartObserver interface {
	ChartUpdated(info models.ChartInfo, key models.ChartKey)
	ChartNotFound(key models.ChartKey)
}

type Metrics interface {
	RecordChartRead(result string)
	RecordSync(result string)
	RecordNotification(kind string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
