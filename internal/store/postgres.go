package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	postgresSelect = `SELECT id, query, max_results, domains, status, mode, error, leads, created_at, finished_at FROM searches`
	postgresUpsert = `INSERT INTO searches (id, query, max_results, domains, status, mode, error, leads, created_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	query = EXCLUDED.query,
	max_results = EXCLUDED.max_results,
	domains = EXCLUDED.domains,
	status = EXCLUDED.status,
	mode = EXCLUDED.mode,
	error = EXCLUDED.error,
	leads = EXCLUDED.leads,
	finished_at = EXCLUDED.finished_at`
)

// preparedStatements lists queries prepared on each new connection.
var preparedStatements = map[string]string{
	"upsert_search": postgresUpsert,
	"get_search":    postgresSelect + ` WHERE id = $1`,
	"delete_search": `DELETE FROM searches WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// The searches table may not exist before the first Migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS searches (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query       TEXT NOT NULL,
	max_results INTEGER NOT NULL DEFAULT 0,
	domains     JSONB NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'idle',
	mode        TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	leads       JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_searches_status ON searches(status);
CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSearch(ctx context.Context, search *model.Search) error {
	row, err := encodeSearch(search)
	if err != nil {
		return err
	}
	if search.CreatedAt.IsZero() {
		search.CreatedAt = time.Now().UTC()
	}

	var finished *time.Time
	if search.FinishedAt != nil {
		t := search.FinishedAt.UTC()
		finished = &t
	}

	_, err = s.pool.Exec(ctx, postgresUpsert,
		search.ID, search.Query, search.MaxResults, row.domains, string(search.Status),
		string(search.Mode), search.Error, row.leads, search.CreatedAt.UTC(), finished,
	)
	return eris.Wrapf(err, "postgres: save search %s", search.ID)
}

func (s *PostgresStore) GetSearch(ctx context.Context, id string) (*model.Search, error) {
	row := s.pool.QueryRow(ctx, postgresSelect+` WHERE id = $1`, id)
	out, err := scanPostgresSearch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get search %s", id)
	}
	return out, nil
}

func (s *PostgresStore) ListSearches(ctx context.Context, filter SearchFilter) ([]model.Search, error) {
	query := postgresSelect + ` WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Query != "" {
		query += fmt.Sprintf(` AND query ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Query+"%")
		argIdx++
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list searches")
	}
	defer rows.Close()

	var searches []model.Search
	for rows.Next() {
		out, err := scanPostgresSearch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan search")
		}
		searches = append(searches, *out)
	}
	return searches, eris.Wrap(rows.Err(), "postgres: list searches iterate")
}

func (s *PostgresStore) DeleteSearch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM searches WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete search %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func scanPostgresSearch(row scannable) (*model.Search, error) {
	var (
		out            model.Search
		status, mode   string
		domains, leads []byte
		finished       *time.Time
	)
	if err := row.Scan(&out.ID, &out.Query, &out.MaxResults, &domains, &status, &mode, &out.Error, &leads, &out.CreatedAt, &finished); err != nil {
		return nil, err
	}

	out.Status = model.SearchStatus(status)
	out.Mode = model.SearchMode(mode)
	out.CreatedAt = out.CreatedAt.UTC()
	if finished != nil {
		t := finished.UTC()
		out.FinishedAt = &t
	}
	if err := decodeSearch(&out, domains, leads); err != nil {
		return nil, err
	}
	return &out, nil
}
