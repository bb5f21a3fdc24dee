package repository

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ChartSync/internal/domain/models"
)

// pointsTable is shared by every SQL backend.
const pointsTable = "chart_points"

// insertChunkSize bounds rows per multi-row INSERT.
const insertChunkSize = 500

func keyArgs(key models.ChartKey) []any {
	return []any{key.Instrument.UID, key.CurrencyCode, string(key.RangeType)}
}

// volumeText returns the volume extra as text, nil when the point has none.
func volumeText(p models.Point) *string {
	v, ok := p.Volume()
	if !ok {
		return nil
	}
	s := v.String()
	return &s
}

// pointFromText rebuilds a point from its textual columns.
func pointFromText(ts time.Time, value string, volume *string) (models.Point, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return models.Point{}, fmt.Errorf("parse value %q: %w", value, err)
	}
	p := models.Point{Timestamp: ts.UTC(), Value: v}
	if volume != nil {
		vol, err := decimal.NewFromString(*volume)
		if err != nil {
			return models.Point{}, fmt.Errorf("parse volume %q: %w", *volume, err)
		}
		p.Extra = map[string]decimal.Decimal{models.ExtraVolume: vol}
	}
	return p, nil
}

// normalizePoints truncates timestamps to milliseconds, keeps the last point
// of each millisecond and returns them ascending. Every store writes through it.
func normalizePoints(points []models.Point) []models.Point {
	pos := make(map[int64]int, len(points))
	out := make([]models.Point, 0, len(points))
	for _, p := range points {
		p.Timestamp = p.Timestamp.Truncate(time.Millisecond)
		ms := p.Timestamp.UnixMilli()
		if i, ok := pos[ms]; ok {
			out[i] = p
			continue
		}
		pos[ms] = len(out)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// insertStatement is one chunk of a multi-row INSERT.
type insertStatement struct {
	query string
	args  []any
}

// buildInserts renders points as chunked multi-row INSERTs. tuple is the
// placeholder list of one row, key columns first; row returns the remaining
// column values of one point.
func buildInserts(head, tuple string, key models.ChartKey, points []models.Point, row func(models.Point) []any) []insertStatement {
	if len(points) == 0 {
		return nil
	}
	points = normalizePoints(points)
	ka := keyArgs(key)
	out := make([]insertStatement, 0, len(points)/insertChunkSize+1)
	for start := 0; start < len(points); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(points) {
			end = len(points)
		}

		values := make([]string, 0, end-start)
		var args []any
		for _, p := range points[start:end] {
			values = append(values, tuple)
			args = append(args, ka...)
			args = append(args, row(p)...)
		}
		out = append(out, insertStatement{
			query: head + " VALUES " + strings.Join(values, ", "),
			args:  args,
		})
	}
	return out
}
