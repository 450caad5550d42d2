// Package market supplies historical price bars to the simulation objective.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const barsQuery = `
		SELECT time, open, high, low, close, volume
		FROM candlesticks
		WHERE symbol = $1
			AND timeframe = $2
			AND time >= $3
			AND time <= $4
		ORDER BY time ASC
	`

const rangeQuery = `
		SELECT COALESCE(MIN(time), 'epoch'), COALESCE(MAX(time), 'epoch'), COUNT(*)
		FROM candlesticks
		WHERE symbol = $1
			AND timeframe = $2
	`

// PostgresBarStore reads bars from the candlesticks hypertable
type PostgresBarStore struct {
	pool PoolInterface
}

// NewPostgresBarStore creates a bar store over any pool implementation
func NewPostgresBarStore(pool PoolInterface) *PostgresBarStore {
	return &PostgresBarStore{pool: pool}
}

// NewPostgresBarStoreWithPool creates a bar store with pgxpool.Pool
func NewPostgresBarStoreWithPool(pool *pgxpool.Pool) *PostgresBarStore {
	return &PostgresBarStore{pool: pool}
}

// Connect opens a pgx pool for the given database URL and pings it
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Bars returns the bars of one symbol and timeframe within [Start, End]
func (s *PostgresBarStore) Bars(ctx context.Context, query backtest.BarQuery) ([]*backtest.Candlestick, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bar query: %w", err)
	}

	rows, err := s.pool.Query(ctx, barsQuery, query.Symbol, query.Frequency, query.Start, upperBound(query))
	if err != nil {
		return nil, fmt.Errorf("failed to query candlesticks: %w", err)
	}
	defer rows.Close()

	var bars []*backtest.Candlestick
	for rows.Next() {
		bar := &backtest.Candlestick{Symbol: query.Symbol}
		if err := rows.Scan(&bar.Timestamp, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candlestick row: %w", err)
		}
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candlestick rows: %w", err)
	}

	log.Debug().
		Str("symbol", query.Symbol).
		Str("frequency", query.Frequency).
		Time("start", query.Start).
		Time("end", query.End).
		Int("count", len(bars)).
		Msg("Retrieved candlesticks from database")

	return bars, nil
}

// Coverage describes the stored history of one series
type Coverage struct {
	First time.Time
	Last  time.Time
	Count int64
}

// Coverage reports the first and last stored bar for a symbol and timeframe
func (s *PostgresBarStore) Coverage(ctx context.Context, symbol, frequency string) (*Coverage, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	var coverage Coverage
	if err := s.pool.QueryRow(ctx, rangeQuery, symbol, frequency).Scan(&coverage.First, &coverage.Last, &coverage.Count); err != nil {
		return nil, fmt.Errorf("failed to query candlestick coverage: %w", err)
	}
	return &coverage, nil
}

// upperBound treats a zero End as "up to now"
func upperBound(query backtest.BarQuery) time.Time {
	if query.End.IsZero() {
		return time.Now().UTC()
	}
	return query.End
}
