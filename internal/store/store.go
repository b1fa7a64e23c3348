package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/marketsync/internal/models"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrUnindexedField indicates a lookup on a field that is neither the primary key nor indexed.
	ErrUnindexedField = errors.New("store: field is not indexed")
	// ErrUnknownTable indicates an operation targeted a table the store does not manage.
	ErrUnknownTable = errors.New("store: unknown table")
	// ErrMissingID indicates a partial write that does not name its record.
	ErrMissingID = errors.New("store: record id is required")
)

// router is the untyped surface used by the sync path.
type router interface {
	Name() string
	PutLocalJSON(ctx context.Context, payload []byte) (string, error)
	PatchLocalJSON(ctx context.Context, payload []byte) (string, error)
	Delete(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, ids ...string) error
	Count(ctx context.Context) (int64, error)
}

// Store groups the entity tables.
type Store struct {
	Users         *Table[models.User]
	Tokens        *Table[models.CollectibleToken]
	Opportunities *Table[models.Opportunity]
	Achievements  *Table[models.Achievement]

	routes map[string]router
}

// Option customises store construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow overrides the clock used for last_synced stamps.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs a Store over the migrated database.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	cfg := options{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	users, err := NewTable[models.User](db, cfg.now)
	if err != nil {
		return nil, err
	}
	tokens, err := NewTable[models.CollectibleToken](db, cfg.now)
	if err != nil {
		return nil, err
	}
	opportunities, err := NewTable[models.Opportunity](db, cfg.now)
	if err != nil {
		return nil, err
	}
	achievements, err := NewTable[models.Achievement](db, cfg.now)
	if err != nil {
		return nil, err
	}

	s := &Store{
		Users:         users,
		Tokens:        tokens,
		Opportunities: opportunities,
		Achievements:  achievements,
	}
	s.index()
	return s, nil
}

// WithDB returns a store whose tables run on db. Writes made through it commit or roll back
// with db when db is a transaction.
func (s *Store) WithDB(db *gorm.DB) *Store {
	bound := &Store{
		Users:         s.Users.WithDB(db),
		Tokens:        s.Tokens.WithDB(db),
		Opportunities: s.Opportunities.WithDB(db),
		Achievements:  s.Achievements.WithDB(db),
	}
	bound.index()
	return bound
}

func (s *Store) index() {
	s.routes = make(map[string]router, 4)
	for _, r := range []router{s.Users, s.Tokens, s.Opportunities, s.Achievements} {
		s.routes[r.Name()] = r
	}
}

// Tables returns the managed table names in sorted order.
func (s *Store) Tables() []string {
	names := make([]string, 0, len(s.routes))
	for name := range s.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the table is managed by the store.
func (s *Store) Has(table string) bool {
	_, ok := s.routes[table]
	return ok
}

// PutLocalJSON decodes payload into the table's model and writes it locally.
func (s *Store) PutLocalJSON(ctx context.Context, table string, payload []byte) (string, error) {
	r, err := s.route(table)
	if err != nil {
		return "", err
	}
	return r.PutLocalJSON(ctx, payload)
}

// PatchLocalJSON writes only the fields present in payload to the named table.
func (s *Store) PatchLocalJSON(ctx context.Context, table string, payload []byte) (string, error) {
	r, err := s.route(table)
	if err != nil {
		return "", err
	}
	return r.PatchLocalJSON(ctx, payload)
}

// DeleteByID removes a record from the named table.
func (s *Store) DeleteByID(ctx context.Context, table, id string) error {
	r, err := s.route(table)
	if err != nil {
		return err
	}
	return r.Delete(ctx, id)
}

// MarkSynced stamps last_synced on records of the named table.
func (s *Store) MarkSynced(ctx context.Context, table string, ids ...string) error {
	r, err := s.route(table)
	if err != nil {
		return err
	}
	return r.MarkSynced(ctx, ids...)
}

// Counts returns the row count per table.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(s.routes))
	for name, r := range s.routes {
		n, err := r.Count(ctx)
		if err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, nil
}

func (s *Store) route(table string) (router, error) {
	r, ok := s.routes[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return r, nil
}
