// Package store persists finished searches and their result sets.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
)

// ErrNotFound is returned when a search id does not exist.
var ErrNotFound = eris.New("store: search not found")

// SearchFilter specifies criteria for listing searches.
type SearchFilter struct {
	Status model.SearchStatus `json:"status,omitempty"`
	Query  string             `json:"query,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for search history.
type Store interface {
	// SaveSearch inserts or replaces s by ID, assigning an ID when empty.
	SaveSearch(ctx context.Context, s *model.Search) error
	GetSearch(ctx context.Context, id string) (*model.Search, error)
	// ListSearches returns matching searches, newest first.
	ListSearches(ctx context.Context, filter SearchFilter) ([]model.Search, error)
	DeleteSearch(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for driver ("sqlite" or "postgres"), migrated and
// ready. poolCfg only applies to postgres and may be nil.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(driver) {
	case "", "sqlite":
		st, err = NewSQLite(dsn)
	case "postgres", "postgresql", "pgx":
		st, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

const defaultListLimit = 100

// searchRow holds the encoded columns shared by both backends.
type searchRow struct {
	domains []byte
	leads   []byte
}

func encodeSearch(s *model.Search) (searchRow, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	domains := s.Domains
	if domains == nil {
		domains = []string{}
	}
	leads := s.Leads
	if leads == nil {
		leads = []model.Lead{}
	}

	d, err := json.Marshal(domains)
	if err != nil {
		return searchRow{}, eris.Wrap(err, "store: marshal domains")
	}
	l, err := json.Marshal(leads)
	if err != nil {
		return searchRow{}, eris.Wrap(err, "store: marshal leads")
	}
	return searchRow{domains: d, leads: l}, nil
}

func decodeSearch(s *model.Search, domains, leads []byte) error {
	if len(domains) > 0 {
		if err := json.Unmarshal(domains, &s.Domains); err != nil {
			return eris.Wrap(err, "store: unmarshal domains")
		}
		if len(s.Domains) == 0 {
			s.Domains = nil
		}
	}
	s.Leads = []model.Lead{}
	if len(leads) > 0 {
		if err := json.Unmarshal(leads, &s.Leads); err != nil {
			return eris.Wrap(err, "store: unmarshal leads")
		}
	}
	return nil
}

func listLimit(f SearchFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
