package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ChartSync/internal/domain/models"
	applogger "ChartSync/pkg/logger"
	pkgsqlite "ChartSync/pkg/sqlite"
)

// SQLiteSchema creates the point table. Timestamps are unix milliseconds, decimals are text.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS chart_points (
		coin_uid   TEXT    NOT NULL,
		currency   TEXT    NOT NULL,
		range_type TEXT    NOT NULL,
		ts         INTEGER NOT NULL,
		value      TEXT    NOT NULL,
		volume     TEXT,
		PRIMARY KEY (coin_uid, currency, range_type, ts)
	)`,
}

// SQLitePointStore is the default local PointStore.
type SQLitePointStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewSQLitePointStore(client *pkgsqlite.Client, l *applogger.Logger) *SQLitePointStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &SQLitePointStore{db: client.DB(), l: l}
}

func (s *SQLitePointStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLitePointStore) Points(ctx context.Context, key models.ChartKey) ([]models.Point, error) {
	const q = `SELECT ts, value, volume FROM chart_points
		WHERE coin_uid = ? AND currency = ? AND range_type = ?
		ORDER BY ts ASC`
	rows, err := s.db.QueryContext(ctx, q, keyArgs(key)...)
	if err != nil {
		s.l.Error("sqlite points query error", applogger.ChartKey(key), applogger.Error(err))
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []models.Point
	for rows.Next() {
		var (
			ms     int64
			value  string
			volume sql.NullString
		)
		if err := rows.Scan(&ms, &value, &volume); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		var vol *string
		if volume.Valid {
			vol = &volume.String
		}
		p, err := pointFromText(time.UnixMilli(ms), value, vol)
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

func (s *SQLitePointStore) DeleteAll(ctx context.Context, key models.ChartKey) error {
	return deleteKey(ctx, s.db, key)
}

func (s *SQLitePointStore) Insert(ctx context.Context, key models.ChartKey, points []models.Point) error {
	return insertSQLite(ctx, s.db, key, points)
}

// Replace swaps the points of key in one transaction.
func (s *SQLitePointStore) Replace(ctx context.Context, key models.ChartKey, points []models.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteKey(ctx, tx, key); err != nil {
		return err
	}
	if err := insertSQLite(ctx, tx, key, points); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func deleteKey(ctx context.Context, db sqlExecer, key models.ChartKey) error {
	const q = `DELETE FROM chart_points WHERE coin_uid = ? AND currency = ? AND range_type = ?`
	if _, err := db.ExecContext(ctx, q, keyArgs(key)...); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func insertSQLite(ctx context.Context, db sqlExecer, key models.ChartKey, points []models.Point) error {
	const head = `INSERT OR REPLACE INTO chart_points (coin_uid, currency, range_type, ts, value, volume)`
	stmts := buildInserts(head, "(?, ?, ?, ?, ?, ?)", key, points, func(p models.Point) []any {
		return []any{p.Timestamp.UnixMilli(), p.Value.String(), volumeText(p)}
	})
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("insert points: %w", err)
		}
	}
	return nil
}
