// Package engine wires the cache, durable store, sync queue and connectivity coordinator
// into one explicitly constructed instance.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/marketsync/internal/cache"
	"github.com/charlesng35/marketsync/internal/connectivity"
	"github.com/charlesng35/marketsync/internal/models"
	"github.com/charlesng35/marketsync/internal/realtime"
	"github.com/charlesng35/marketsync/internal/store"
	"github.com/charlesng35/marketsync/internal/syncqueue"
	"github.com/charlesng35/marketsync/pkg/logger"
)

// ErrMissingID is returned when an update or delete does not name a record.
var ErrMissingID = errors.New("engine: record id is required")

// Config holds the constructor-time settings of an engine.
type Config struct {
	Cache             cache.Config
	PersistQuotaBytes int
	RetryCeiling      int
	DeadLetter        bool
	DrainSchedule     string
}

// Option customises an Engine.
type Option func(*options)

type options struct {
	publisher     *realtime.Hub
	prober        connectivity.Prober
	probeSchedule string
	now           func() time.Time
	initialOnline *bool
}

// WithPublisher broadcasts queue and connectivity events on hub.
func WithPublisher(hub *realtime.Hub) Option {
	return func(o *options) {
		o.publisher = hub
	}
}

// WithProber enables periodic remote reachability checks.
func WithProber(p connectivity.Prober, spec string) Option {
	return func(o *options) {
		o.prober = p
		o.probeSchedule = spec
	}
}

// WithNow overrides the clock of every component.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithInitialOnline sets the connectivity state assumed before the first signal.
func WithInitialOnline(online bool) Option {
	return func(o *options) {
		o.initialOnline = &online
	}
}

// Engine is the offline cache and write-behind sync engine.
type Engine struct {
	DB          *gorm.DB
	KV          *cache.DatabaseStore
	Cache       *cache.Cache
	Store       *store.Store
	Queue       *syncqueue.Queue
	Coordinator *connectivity.Coordinator

	log *zap.Logger
}

// New builds an engine over db. applier performs remote mutations during drains.
func New(cfg Config, db *gorm.DB, applier syncqueue.Applier, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, errors.New("engine: db is required")
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	e := &Engine{DB: db, log: logger.WithModule("engine")}

	kvOpts := []cache.StoreOption{cache.WithStoreNow(o.now)}
	if cfg.PersistQuotaBytes > 0 {
		kvOpts = append(kvOpts, cache.WithQuota(cfg.PersistQuotaBytes))
	}
	e.KV = cache.NewDatabaseStore(db, kvOpts...)

	c, err := cache.New(cfg.Cache, cache.WithStore(e.KV), cache.WithNow(o.now), cache.WithLogger(logger.WithModule("cache")))
	if err != nil {
		return nil, err
	}
	e.Cache = c

	s, err := store.New(db, store.WithNow(o.now))
	if err != nil {
		return nil, err
	}
	e.Store = s

	queueOpts := []syncqueue.Option{
		syncqueue.WithNow(o.now),
		syncqueue.WithRetryCeiling(cfg.RetryCeiling),
		syncqueue.WithDeadLetter(cfg.DeadLetter),
		syncqueue.WithTables(s.Tables()...),
		syncqueue.WithAppliedHook(e.markApplied),
	}
	coordOpts := []connectivity.Option{
		connectivity.WithCache(c),
		connectivity.WithDrainSchedule(cfg.DrainSchedule),
		connectivity.WithNow(o.now),
	}
	if o.publisher != nil {
		queueOpts = append(queueOpts, syncqueue.WithPublisher(o.publisher))
		coordOpts = append(coordOpts, connectivity.WithPublisher(o.publisher))
	}
	if o.prober != nil {
		coordOpts = append(coordOpts, connectivity.WithProber(o.prober, o.probeSchedule))
	}
	if o.initialOnline != nil {
		coordOpts = append(coordOpts, connectivity.WithInitialOnline(*o.initialOnline))
	}

	q, err := syncqueue.New(db, applier, queueOpts...)
	if err != nil {
		return nil, err
	}
	e.Queue = q
	e.Coordinator = connectivity.New(db, q, coordOpts...)
	return e, nil
}

// Start restores the cache and begins scheduling drains.
func (e *Engine) Start(ctx context.Context) error {
	return e.Coordinator.Start(ctx)
}

// Shutdown waits for in-flight drains and persists the cache.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.Coordinator.Shutdown(ctx)
}

// Mutation is a local change to one entity record.
type Mutation struct {
	Action models.SyncAction `json:"action" validate:"required,oneof=create update delete"`
	Table  string            `json:"table" validate:"required,tablename"`
	ID     string            `json:"id"`
	Record any               `json:"record"`
}

// Mutate writes the change locally, enqueues it for the remote and invalidates cached
// reads for the table. The local write and the queue entry commit in one transaction. An
// update writes only the fields present in the record.
func (e *Engine) Mutate(ctx context.Context, m Mutation) (models.PendingOperation, error) {
	if !e.Store.Has(m.Table) {
		return models.PendingOperation{}, fmt.Errorf("%w: %q", store.ErrUnknownTable, m.Table)
	}

	var (
		payload []byte
		write   func(local *store.Store) error
	)
	switch m.Action {
	case models.ActionCreate, models.ActionUpdate:
		fields, err := recordFields(m.Record)
		if err != nil {
			return models.PendingOperation{}, err
		}
		if m.ID == "" {
			if id, ok := fields["id"].(string); ok {
				m.ID = id
			}
		}
		if m.ID == "" {
			if m.Action == models.ActionUpdate {
				return models.PendingOperation{}, ErrMissingID
			}
			m.ID = uuid.NewString()
		}
		fields["id"] = m.ID

		payload, err = json.Marshal(fields)
		if err != nil {
			return models.PendingOperation{}, fmt.Errorf("engine: encode record: %w", err)
		}
		write = func(local *store.Store) error {
			if m.Action == models.ActionUpdate {
				_, err := local.PatchLocalJSON(ctx, m.Table, payload)
				return err
			}
			_, err := local.PutLocalJSON(ctx, m.Table, payload)
			return err
		}
	case models.ActionDelete:
		if m.ID == "" {
			return models.PendingOperation{}, ErrMissingID
		}
		payload, _ = json.Marshal(map[string]string{"id": m.ID})
		write = func(local *store.Store) error {
			return local.DeleteByID(ctx, m.Table, m.ID)
		}
	default:
		return models.PendingOperation{}, fmt.Errorf("engine: unsupported action %q", m.Action)
	}

	op, err := e.Queue.EnqueueWith(ctx, m.Action, m.Table, m.ID, payload, func(tx *gorm.DB) error {
		return write(e.Store.WithDB(tx))
	})
	if err != nil {
		return models.PendingOperation{}, err
	}

	if n := e.Cache.InvalidatePrefix(CacheKeyPrefix(m.Table)); n > 0 {
		e.log.Debug("invalidated cached reads", zap.String("table", m.Table), zap.Int("entries", n))
	}
	return op, nil
}

// Status reports connectivity, backlog and cache statistics.
func (e *Engine) Status(ctx context.Context) (connectivity.Status, cache.Stats, error) {
	status, err := e.Coordinator.Status(ctx)
	return status, e.Cache.Stats(), err
}

// CacheKeyPrefix is the prefix shared by cached reads of table.
func CacheKeyPrefix(table string) string {
	return table + ":"
}

// CacheKey names the cached read of one record.
func CacheKey(table, id string) string {
	return CacheKeyPrefix(table) + id
}

func (e *Engine) markApplied(ctx context.Context, op models.PendingOperation) error {
	if op.Action == models.ActionDelete || op.RecordID == "" {
		return nil
	}
	return e.Store.MarkSynced(ctx, op.Table, op.RecordID)
}

func recordFields(record any) (map[string]any, error) {
	var raw []byte
	switch v := record.(type) {
	case nil:
		return map[string]any{}, nil
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("engine: encode record: %w", err)
		}
		raw = encoded
	}

	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("engine: record must be a JSON object: %w", err)
	}
	return fields, nil
}
