package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ChartSync/internal/domain/models"
	pkgch "ChartSync/pkg/clickhouse"
	applogger "ChartSync/pkg/logger"
)

// ClickHouseSchema creates the point table.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS chart_points (
		coin_uid   LowCardinality(String),
		currency   LowCardinality(String),
		range_type LowCardinality(String),
		ts         DateTime64(3, 'UTC'),
		value      Decimal(38, 18),
		volume     Nullable(Decimal(38, 18))
	) ENGINE = ReplacingMergeTree
	ORDER BY (coin_uid, currency, range_type, ts)`,
}

// ClickHousePointStore keeps points in ClickHouse. Rows of one timestamp are
// collapsed by ReplacingMergeTree and reads use FINAL. It has no transactions,
// so the manager falls back to DeleteAll followed by Insert.
type ClickHousePointStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewClickHousePointStore(ch *pkgch.Client, l *applogger.Logger) *ClickHousePointStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHousePointStore{db: ch.DB(), l: l}
}

func (s *ClickHousePointStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHousePointStore) Points(ctx context.Context, key models.ChartKey) ([]models.Point, error) {
	const q = `SELECT ts, toString(value), toString(volume)
		FROM chart_points FINAL
		WHERE coin_uid = ? AND currency = ? AND range_type = ?
		ORDER BY ts ASC`
	rows, err := s.db.QueryContext(ctx, q, keyArgs(key)...)
	if err != nil {
		s.l.Error("clickhouse points query error", applogger.ChartKey(key), applogger.Error(err))
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []models.Point
	for rows.Next() {
		var (
			ts     time.Time
			value  string
			volume sql.NullString
		)
		if err := rows.Scan(&ts, &value, &volume); err != nil {
			s.l.Error("clickhouse points scan error", applogger.ChartKey(key), applogger.Error(err))
			return nil, fmt.Errorf("scan point: %w", err)
		}
		var vol *string
		if volume.Valid {
			vol = &volume.String
		}
		p, err := pointFromText(ts, value, vol)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// DeleteAll issues a lightweight delete; the client DSN waits for the mutation.
func (s *ClickHousePointStore) DeleteAll(ctx context.Context, key models.ChartKey) error {
	return deleteKey(ctx, s.db, key)
}

func (s *ClickHousePointStore) Insert(ctx context.Context, key models.ChartKey, points []models.Point) error {
	const (
		head  = `INSERT INTO chart_points (coin_uid, currency, range_type, ts, value, volume)`
		tuple = `(?, ?, ?, fromUnixTimestamp64Milli(?), toDecimal128(?, 18), toDecimal128OrNull(?, 18))`
	)
	stmts := buildInserts(head, tuple, key, points, func(p models.Point) []any {
		return []any{p.Timestamp.UnixMilli(), p.Value.String(), volumeText(p)}
	})
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st.query, st.args...); err != nil {
			s.l.Error("clickhouse insert error",
				applogger.ChartKey(key),
				applogger.Int("rows", len(points)),
				applogger.Error(err),
			)
			return fmt.Errorf("insert points: %w", err)
		}
	}
	return nil
}
