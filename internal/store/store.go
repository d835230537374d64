// Package store is the transactional datastore gateway: a bounded pgx pool
// exposing dict-shaped rows, parameterized queries, scoped transactions and a
// healthcheck. All pipeline stages that touch PostgreSQL go through here.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/config"
)

// Row is a dict-shaped result row keyed by column name.
type Row map[string]interface{}

// DB wraps a bounded connection pool.
type DB struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects a pool with at most maxConns connections.
func Open(ctx context.Context, cfg config.Postgres, maxConns int32, log zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Database).Msg("postgres pool created")
	return &DB{pool: pool, log: log}, nil
}

// Execute runs a DML statement with autocommit and returns the affected count.
func (db *DB) Execute(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	tag, err := db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("execute: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FetchOne returns the first row as a dict, or nil when there is none.
func (db *DB) FetchOne(ctx context.Context, sql string, args ...interface{}) (Row, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetchone: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	row, err := scanRow(rows)
	if err != nil {
		return nil, err
	}
	return row, rows.Err()
}

// FetchAll returns every row as a dict list.
func (db *DB) FetchAll(ctx context.Context, sql string, args ...interface{}) ([]Row, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetchall: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FetchVal returns the first value of the first row, or nil when there is no
// row.
func (db *DB) FetchVal(ctx context.Context, sql string, args ...interface{}) (interface{}, error) {
	var v interface{}
	err := db.pool.QueryRow(ctx, sql, args...).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetchval: %w", err)
	}
	return v, nil
}

// Transaction runs fn inside a transaction, committing on nil return and
// rolling back on error or panic.
func (db *DB) Transaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Healthcheck verifies SELECT 1 round-trips.
func (db *DB) Healthcheck(ctx context.Context) bool {
	v, err := db.FetchVal(ctx, "SELECT 1")
	if err != nil {
		db.log.Warn().Err(err).Msg("healthcheck failed")
		return false
	}
	n, _ := v.(int32)
	return int64(n) == 1 || Int64Value(v) == 1
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
	db.log.Info().Msg("postgres pool closed")
}

func scanRow(rows pgx.Rows) (Row, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	fields := rows.FieldDescriptions()
	row := make(Row, len(fields))
	for i, fd := range fields {
		row[string(fd.Name)] = values[i]
	}
	return row, nil
}
