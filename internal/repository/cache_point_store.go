package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ChartSync/internal/domain/models"
	"ChartSync/pkg/cache"
)

type cachedPoint struct {
	T      int64            `json:"t"` // unix ms
	V      decimal.Decimal  `json:"v"`
	Volume *decimal.Decimal `json:"volume,omitempty"`
}

// CachePointStore keeps each chart as one JSON document in a cache.Service,
// typically Redis shared by several instances. Documents never expire; a
// chart only changes when it is replaced.
type CachePointStore struct {
	cache cache.Service
}

func NewCachePointStore(c cache.Service) *CachePointStore {
	return &CachePointStore{cache: c}
}

func pointsCacheKey(key models.ChartKey) string {
	return cache.JoinKey("points", key.String())
}

// Health round-trips to the cache backend.
func (s *CachePointStore) Health(ctx context.Context) error {
	_, err := s.cache.Exists(ctx, cache.JoinKey("points", "health"))
	return err
}

func (s *CachePointStore) Points(ctx context.Context, key models.ChartKey) ([]models.Point, error) {
	var doc []cachedPoint
	if err := s.cache.Get(ctx, pointsCacheKey(key), &doc); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("get points: %w", err)
	}

	out := make([]models.Point, 0, len(doc))
	for _, cp := range doc {
		p := models.Point{Timestamp: time.UnixMilli(cp.T).UTC(), Value: cp.V}
		if cp.Volume != nil {
			p.Extra = map[string]decimal.Decimal{models.ExtraVolume: *cp.Volume}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *CachePointStore) DeleteAll(ctx context.Context, key models.ChartKey) error {
	if err := s.cache.Delete(ctx, pointsCacheKey(key)); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Insert merges points into the stored document; a point replaces a stored one with the same timestamp.
func (s *CachePointStore) Insert(ctx context.Context, key models.ChartKey, points []models.Point) error {
	existing, err := s.Points(ctx, key)
	if err != nil {
		return err
	}
	return s.write(ctx, key, append(existing, points...))
}

// Replace overwrites the document with a single SET.
func (s *CachePointStore) Replace(ctx context.Context, key models.ChartKey, points []models.Point) error {
	if len(points) == 0 {
		return s.DeleteAll(ctx, key)
	}
	return s.write(ctx, key, points)
}

func (s *CachePointStore) write(ctx context.Context, key models.ChartKey, points []models.Point) error {
	points = normalizePoints(points)
	doc := make([]cachedPoint, len(points))
	for i, p := range points {
		doc[i] = cachedPoint{T: p.Timestamp.UnixMilli(), V: p.Value}
		if vol, ok := p.Volume(); ok {
			doc[i].Volume = &vol
		}
	}

	if err := s.cache.Set(ctx, pointsCacheKey(key), doc, 0); err != nil {
		return fmt.Errorf("set points: %w", err)
	}
	return nil
}
