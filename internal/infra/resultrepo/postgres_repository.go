package resultrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
)

// PostgresRepository implements evaluation.ResultRepository using pgx.
// Results are stored as JSONB documents keyed by site and year so the schema
// does not chase every metric the evaluation adds.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the results table when it does not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS season_results (
			site_id    TEXT        NOT NULL,
			year       INT         NOT NULL,
			payload    JSONB       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (site_id, year)
		)
	`)
	if err != nil {
		return fmt.Errorf("create season_results table: %w", err)
	}
	return nil
}

// SaveAll upserts the full result set in one transaction.
func (r *PostgresRepository) SaveAll(ctx context.Context, results []evaluation.SeasonResult) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin results transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, result := range results {
		payload, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result %s/%d: %w", result.SiteID, result.Year, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO season_results (site_id, year, payload, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (site_id, year)
			DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
		`, result.SiteID, result.Year, payload)
		if err != nil {
			return fmt.Errorf("upsert result %s/%d: %w", result.SiteID, result.Year, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit results transaction: %w", err)
	}
	return nil
}

// List returns all stored results ordered by site and year.
func (r *PostgresRepository) List(ctx context.Context) ([]evaluation.SeasonResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payload
		FROM season_results
		ORDER BY site_id, year
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []evaluation.SeasonResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var result evaluation.SeasonResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("decode stored result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

var _ evaluation.ResultRepository = (*PostgresRepository)(nil)
