package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"ChartSync/internal/domain/models"
	applogger "ChartSync/pkg/logger"
	pkgpg "ChartSync/pkg/postgres"
)

// PostgresSchema creates the point table.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS chart_points (
		coin_uid   TEXT        NOT NULL,
		currency   TEXT        NOT NULL,
		range_type TEXT        NOT NULL,
		ts         TIMESTAMPTZ NOT NULL,
		value      NUMERIC     NOT NULL,
		volume     NUMERIC,
		PRIMARY KEY (coin_uid, currency, range_type, ts)
	)`,
}

// PostgresPointStore keeps points in Postgres through a pgx pool.
type PostgresPointStore struct {
	pool *pkgpg.Pool
	l    *applogger.Logger
}

func NewPostgresPointStore(pool *pkgpg.Pool, l *applogger.Logger) *PostgresPointStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &PostgresPointStore{pool: pool, l: l}
}

// pgExecer is satisfied by both the pool and a transaction.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (s *PostgresPointStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresPointStore) Points(ctx context.Context, key models.ChartKey) ([]models.Point, error) {
	const q = `SELECT ts, value::text, volume::text FROM chart_points
		WHERE coin_uid = $1 AND currency = $2 AND range_type = $3
		ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, q, keyArgs(key)...)
	if err != nil {
		s.l.Error("postgres points query error", applogger.ChartKey(key), applogger.Error(err))
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []models.Point
	for rows.Next() {
		var (
			ts     time.Time
			value  string
			volume *string
		)
		if err := rows.Scan(&ts, &value, &volume); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p, err := pointFromText(ts, value, volume)
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

func (s *PostgresPointStore) DeleteAll(ctx context.Context, key models.ChartKey) error {
	return pgDeleteKey(ctx, s.pool, key)
}

func (s *PostgresPointStore) Insert(ctx context.Context, key models.ChartKey, points []models.Point) error {
	return pgInsert(ctx, s.pool, key, points)
}

// Replace swaps the points of key in one transaction.
func (s *PostgresPointStore) Replace(ctx context.Context, key models.ChartKey, points []models.Point) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := pgDeleteKey(ctx, tx, key); err != nil {
			return err
		}
		return pgInsert(ctx, tx, key, points)
	})
}

func pgDeleteKey(ctx context.Context, db pgExecer, key models.ChartKey) error {
	const q = `DELETE FROM chart_points WHERE coin_uid = $1 AND currency = $2 AND range_type = $3`
	if _, err := db.Exec(ctx, q, keyArgs(key)...); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func pgInsert(ctx context.Context, db pgExecer, key models.ChartKey, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	const q = `INSERT INTO chart_points (coin_uid, currency, range_type, ts, value, volume)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric)
		ON CONFLICT (coin_uid, currency, range_type, ts)
		DO UPDATE SET value = EXCLUDED.value, volume = EXCLUDED.volume`

	points = normalizePoints(points)
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(q, key.Instrument.UID, key.CurrencyCode, string(key.RangeType),
			p.Timestamp.UTC(), p.Value.String(), volumeText(p))
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()
	for range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert points: %w", err)
		}
	}
	return nil
}
