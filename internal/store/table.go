package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const lastSyncedColumn = "last_synced"

// Record is implemented by every entity model.
type Record interface {
	RecordID() string
}

// Table is a typed view over one entity table.
type Table[T Record] struct {
	db      *gorm.DB
	schema  *schema.Schema
	now     func() time.Time
	indexed map[string]struct{}
	local   []string
}

// NewTable parses the model schema for T and prepares the column sets used by local writes and index lookups.
func NewTable[T Record](db *gorm.DB, now func() time.Time) (*Table[T], error) {
	if db == nil {
		return nil, errors.New("store: db is nil")
	}
	if now == nil {
		now = time.Now
	}

	var model T
	sch, err := schema.Parse(&model, &sync.Map{}, db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("store: parse schema %T: %w", model, err)
	}

	indexed := make(map[string]struct{})
	for _, field := range sch.PrimaryFields {
		indexed[field.DBName] = struct{}{}
	}
	for _, idx := range sch.ParseIndexes() {
		for _, opt := range idx.Fields {
			if opt.Field != nil {
				indexed[opt.Field.DBName] = struct{}{}
			}
		}
	}

	local := make([]string, 0, len(sch.DBNames))
	for _, field := range sch.Fields {
		if field.DBName == "" || field.PrimaryKey || field.AutoCreateTime > 0 || field.DBName == lastSyncedColumn {
			continue
		}
		local = append(local, field.DBName)
	}

	return &Table[T]{
		db:      db,
		schema:  sch,
		now:     now,
		indexed: indexed,
		local:   local,
	}, nil
}

// WithDB returns a view of the table that runs on db, typically an open transaction.
func (t *Table[T]) WithDB(db *gorm.DB) *Table[T] {
	bound := *t
	bound.db = db
	return &bound
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.schema.Table
}

// Get loads a record by primary key.
func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	var record T
	err := t.db.WithContext(ctx).Take(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record, fmt.Errorf("store: get %s %q: %w", t.Name(), id, ErrNotFound)
	}
	if err != nil {
		return record, fmt.Errorf("store: get %s %q: %w", t.Name(), id, err)
	}
	return record, nil
}

// BulkPut upserts records confirmed by the remote and stamps last_synced for every written id.
// The write is atomic for this table.
func (t *Table[T]) BulkPut(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}

	now := t.now().UTC()
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&records).Error; err != nil {
			return fmt.Errorf("store: bulk put %s: %w", t.Name(), err)
		}

		ids := make([]string, 0, len(records))
		for _, record := range records {
			ids = append(ids, record.RecordID())
		}
		return t.markSynced(tx, now, ids)
	})
}

// PutLocal performs an optimistic local write. last_synced is left untouched so the record
// stays visible to staleness queries until the remote confirms it.
func (t *Table[T]) PutLocal(ctx context.Context, record T) (T, error) {
	err := t.db.WithContext(ctx).
		Omit(lastSyncedColumn).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(t.local),
		}).
		Create(&record).Error
	if err != nil {
		return record, fmt.Errorf("store: put local %s: %w", t.Name(), err)
	}
	return record, nil
}

// PutLocalJSON decodes payload into T and writes it locally, returning the record id.
func (t *Table[T]) PutLocalJSON(ctx context.Context, payload []byte) (string, error) {
	var record T
	if err := json.Unmarshal(payload, &record); err != nil {
		return "", fmt.Errorf("store: decode %s payload: %w", t.Name(), err)
	}
	saved, err := t.PutLocal(ctx, record)
	if err != nil {
		return "", err
	}
	return saved.RecordID(), nil
}

// PatchLocalJSON writes only the columns named in payload. A record that does not exist yet
// is inserted from the payload.
func (t *Table[T]) PatchLocalJSON(ctx context.Context, payload []byte) (string, error) {
	var record T
	if err := json.Unmarshal(payload, &record); err != nil {
		return "", fmt.Errorf("store: decode %s payload: %w", t.Name(), err)
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(payload, &present); err != nil {
		return "", fmt.Errorf("store: decode %s payload: %w", t.Name(), err)
	}

	id := record.RecordID()
	if id == "" {
		return "", fmt.Errorf("store: patch %s: %w", t.Name(), ErrMissingID)
	}
	columns := t.patchColumns(present)

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model T
		var count int64
		if err := tx.Model(&model).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return tx.Omit(lastSyncedColumn).Create(&record).Error
		}
		if len(columns) == 0 {
			return nil
		}
		return tx.Model(&model).Where("id = ?", id).Select(columns).Updates(&record).Error
	})
	if err != nil {
		return "", fmt.Errorf("store: patch %s %q: %w", t.Name(), id, err)
	}
	return id, nil
}

func (t *Table[T]) patchColumns(present map[string]json.RawMessage) []string {
	allowed := make(map[string]struct{}, len(t.local))
	for _, name := range t.local {
		allowed[name] = struct{}{}
	}

	columns := make([]string, 0, len(present))
	for key := range present {
		f := t.schema.LookUpField(key)
		if f == nil {
			continue
		}
		if _, ok := allowed[f.DBName]; ok {
			columns = append(columns, f.DBName)
		}
	}
	sort.Strings(columns)
	return columns
}

// Delete removes a record. Deleting a missing record is not an error.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	var model T
	if err := t.db.WithContext(ctx).Where("id = ?", id).Delete(&model).Error; err != nil {
		return fmt.Errorf("store: delete %s %q: %w", t.Name(), id, err)
	}
	return nil
}

// MarkSynced stamps last_synced on the given ids.
func (t *Table[T]) MarkSynced(ctx context.Context, ids ...string) error {
	return t.markSynced(t.db.WithContext(ctx), t.now().UTC(), ids)
}

func (t *Table[T]) markSynced(tx *gorm.DB, at time.Time, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var model T
	if err := tx.Model(&model).Where("id IN ?", ids).UpdateColumn(lastSyncedColumn, at).Error; err != nil {
		return fmt.Errorf("store: mark synced %s: %w", t.Name(), err)
	}
	return nil
}

// QueryByIndex returns records whose field equals value. The field must be the primary key
// or carry an index.
func (t *Table[T]) QueryByIndex(ctx context.Context, field string, value any) ([]T, error) {
	f := t.schema.LookUpField(field)
	if f == nil {
		return nil, fmt.Errorf("store: query %s.%s: %w", t.Name(), field, ErrUnindexedField)
	}
	if _, ok := t.indexed[f.DBName]; !ok {
		return nil, fmt.Errorf("store: query %s.%s: %w", t.Name(), field, ErrUnindexedField)
	}

	var records []T
	err := t.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: f.DBName}, Value: value}).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store: query %s.%s: %w", t.Name(), field, err)
	}
	return records, nil
}

// Stale returns records that were never synced or were last synced before olderThan.
func (t *Table[T]) Stale(ctx context.Context, olderThan time.Time) ([]T, error) {
	var records []T
	err := t.db.WithContext(ctx).
		Where("last_synced IS NULL OR last_synced < ?", olderThan.UTC()).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store: stale %s: %w", t.Name(), err)
	}
	return records, nil
}

// Count returns the number of rows in the table.
func (t *Table[T]) Count(ctx context.Context) (int64, error) {
	var model T
	var count int64
	if err := t.db.WithContext(ctx).Model(&model).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: count %s: %w", t.Name(), err)
	}
	return count, nil
}
