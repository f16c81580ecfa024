package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNoSample is returned when no sample satisfies a bracket query.
	ErrNoSample = errors.New("storage: no price sample")
)

//go:embed schema.sql
var schemaSQL string

const (
	sampleColumns = `id, token, base_token, price::text, at, COALESCE(fetched_from, '')`

	insertSampleSQL = `INSERT INTO historical_token_prices (token, base_token, price, at, fetched_from)
    VALUES ($1, $2, $3::numeric, $4, NULLIF($5, ''));`

	latestAtOrBeforeSQL = `SELECT ` + sampleColumns + `
    FROM historical_token_prices
    WHERE token = $1 AND base_token = $2 AND at <= $3
    ORDER BY at DESC
    LIMIT 1;`

	earliestAtOrAfterSQL = `SELECT ` + sampleColumns + `
    FROM historical_token_prices
    WHERE token = $1 AND base_token = $2 AND at >= $3
    ORDER BY at ASC
    LIMIT 1;`

	listSamplesBetweenSQL = `SELECT ` + sampleColumns + `
    FROM historical_token_prices
    WHERE token = $1 AND base_token = $2 AND at >= $3 AND at < $4
    ORDER BY at;`

	listRecentSamplesSQL = `SELECT ` + sampleColumns + `
    FROM historical_token_prices
    ORDER BY at DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM historical_token_prices;`

	deleteByFetchedFromSQL = `DELETE FROM historical_token_prices WHERE fetched_from = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleReader answers bracket queries over the price series.
type SampleReader interface {
	LatestAtOrBefore(ctx context.Context, token, baseToken string, at time.Time) (PriceSample, error)
	EarliestAtOrAfter(ctx context.Context, token, baseToken string, at time.Time) (PriceSample, error)
}

// SampleStore is the full price series persistence surface.
type SampleStore interface {
	SampleReader
	InsertSamples(ctx context.Context, samples []PriceSample) error
	ListSamplesBetween(ctx context.Context, token, baseToken string, from, to time.Time) ([]PriceSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error)
	CountSamples(ctx context.Context) (int64, error)
	DeleteByFetchedFrom(ctx context.Context, source string) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists historical token prices in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the price table and its indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSamples appends samples in one batch.
func (s *Store) InsertSamples(ctx context.Context, samples []PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(insertSampleSQL,
			sample.Token,
			sample.BaseToken,
			sample.Price.String(),
			sample.At.UTC(),
			sample.FetchedFrom,
		)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert price samples: %w", err)
	}
	return nil
}

// LatestAtOrBefore returns the newest sample at or before at.
func (s *Store) LatestAtOrBefore(ctx context.Context, token, baseToken string, at time.Time) (PriceSample, error) {
	return s.queryOne(ctx, latestAtOrBeforeSQL, token, baseToken, at.UTC())
}

// EarliestAtOrAfter returns the oldest sample at or after at.
func (s *Store) EarliestAtOrAfter(ctx context.Context, token, baseToken string, at time.Time) (PriceSample, error) {
	return s.queryOne(ctx, earliestAtOrAfterSQL, token, baseToken, at.UTC())
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSample{}, err
	}
	sample, err := scanPriceSample(pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceSample{}, ErrNoSample
	}
	if err != nil {
		return PriceSample{}, fmt.Errorf("query price sample: %w", err)
	}
	return sample, nil
}

// ListSamplesBetween lists one pair's samples within [from, to).
func (s *Store) ListSamplesBetween(ctx context.Context, token, baseToken string, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, token, baseToken, from.UTC(), to.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	return collectSamples(rows)
}

// ListRecentSamples lists the most recent samples of every pair, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	return collectSamples(rows)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// DeleteByFetchedFrom removes every sample imported from source.
func (s *Store) DeleteByFetchedFrom(ctx context.Context, source string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if source == "" {
		return 0, errors.New("storage: fetched_from source required")
	}
	tag, execErr := pool.Exec(ctx, deleteByFetchedFromSQL, source)
	if execErr != nil {
		return 0, fmt.Errorf("delete samples by source: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func collectSamples(rows pgx.Rows) ([]PriceSample, error) {
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, err := scanPriceSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanPriceSample(row pgx.Row) (PriceSample, error) {
	var (
		sample   PriceSample
		priceStr string
	)
	if err := row.Scan(
		&sample.ID,
		&sample.Token,
		&sample.BaseToken,
		&priceStr,
		&sample.At,
		&sample.FetchedFrom,
	); err != nil {
		return PriceSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}
	sample.Price = price
	sample.At = sample.At.UTC()
	return sample, nil
}

var (
	_ SampleStore    = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
