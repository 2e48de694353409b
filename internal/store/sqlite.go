package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-finder/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS searches (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	max_results INTEGER NOT NULL DEFAULT 0,
	domains     TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'idle',
	mode        TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	leads       TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_searches_status ON searches(status);
CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at);
`

const sqliteSelect = `SELECT id, query, max_results, domains, status, mode, error, leads, created_at, finished_at FROM searches`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSearch(ctx context.Context, search *model.Search) error {
	row, err := encodeSearch(search)
	if err != nil {
		return err
	}
	if search.CreatedAt.IsZero() {
		search.CreatedAt = time.Now().UTC()
	}

	var finished sql.NullTime
	if search.FinishedAt != nil {
		finished = sql.NullTime{Time: search.FinishedAt.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO searches (id, query, max_results, domains, status, mode, error, leads, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			query = excluded.query,
			max_results = excluded.max_results,
			domains = excluded.domains,
			status = excluded.status,
			mode = excluded.mode,
			error = excluded.error,
			leads = excluded.leads,
			finished_at = excluded.finished_at`,
		search.ID, search.Query, search.MaxResults, string(row.domains), string(search.Status),
		string(search.Mode), search.Error, string(row.leads), search.CreatedAt.UTC(), finished,
	)
	return eris.Wrapf(err, "sqlite: save search %s", search.ID)
}

func (s *SQLiteStore) GetSearch(ctx context.Context, id string) (*model.Search, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE id = ?`, id)
	out, err := scanSearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, id)
	}
	return out, err
}

func (s *SQLiteStore) ListSearches(ctx context.Context, filter SearchFilter) ([]model.Search, error) {
	query := sqliteSelect + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Query != "" {
		query += ` AND query LIKE ?`
		args = append(args, "%"+filter.Query+"%")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list searches")
	}
	defer rows.Close()

	var searches []model.Search
	for rows.Next() {
		out, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *out)
	}
	return searches, eris.Wrap(rows.Err(), "sqlite: list searches iterate")
}

func (s *SQLiteStore) DeleteSearch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM searches WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete search %s", id)
	}
	return checkRowsAffected(res, id)
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSearch(row scannable) (*model.Search, error) {
	var (
		out            model.Search
		status, mode   string
		domains, leads string
		finished       sql.NullTime
	)
	err := row.Scan(&out.ID, &out.Query, &out.MaxResults, &domains, &status, &mode, &out.Error, &leads, &out.CreatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan search")
	}

	out.Status = model.SearchStatus(status)
	out.Mode = model.SearchMode(mode)
	if finished.Valid {
		t := finished.Time.UTC()
		out.FinishedAt = &t
	}
	out.CreatedAt = out.CreatedAt.UTC()
	if err := decodeSearch(&out, []byte(domains), []byte(leads)); err != nil {
		return nil, err
	}
	return &out, nil
}
