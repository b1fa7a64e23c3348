// Package syncqueue persists local mutations and replays them against the remote in enqueue
// order, retrying rejected operations up to a ceiling.
package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/marketsync/internal/database"
	"github.com/charlesng35/marketsync/internal/models"
	"github.com/charlesng35/marketsync/internal/monitoring"
	"github.com/charlesng35/marketsync/internal/realtime"
	"github.com/charlesng35/marketsync/pkg/logger"
	"github.com/charlesng35/marketsync/pkg/validator"
)

const maxErrorLength = 1024

// Result summarises one drain pass.
type Result struct {
	Synced       int  `json:"synced"`
	Failed       int  `json:"failed"`
	Dropped      int  `json:"dropped"`
	DeadLettered int  `json:"dead_lettered"`
	Remaining    int  `json:"remaining"`
	Halted       bool `json:"halted"`
}

// EnqueueRequest is the validated shape of a new pending operation.
type EnqueueRequest struct {
	Action   string `json:"action" validate:"required,oneof=create update delete"`
	Table    string `json:"table" validate:"required,tablename"`
	RecordID string `json:"record_id" validate:"required_unless=Action create,max=64"`
}

// Queue is the durable write-behind queue.
type Queue struct {
	db         *gorm.DB
	applier    Applier
	ceiling    int
	deadLetter bool
	tables     map[string]struct{}
	applied    AppliedHook
	publisher  Publisher
	now        func() time.Time
	log        *zap.Logger

	draining atomic.Bool
}

// New constructs a queue backed by db that applies operations through applier.
func New(db *gorm.DB, applier Applier, opts ...Option) (*Queue, error) {
	if db == nil {
		return nil, errors.New("syncqueue: db is required")
	}
	if applier == nil {
		return nil, errors.New("syncqueue: applier is required")
	}

	q := &Queue{
		db:      db,
		applier: applier,
		ceiling: DefaultRetryCeiling,
		now:     time.Now,
		log:     logger.WithModule("syncqueue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// RetryCeiling returns the configured attempt limit.
func (q *Queue) RetryCeiling() int {
	return q.ceiling
}

// Draining reports whether a pass is currently running.
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

// Enqueue appends an operation with a zero retry count. It only touches local storage.
func (q *Queue) Enqueue(ctx context.Context, action models.SyncAction, table, recordID string, payload any) (models.PendingOperation, error) {
	return q.EnqueueWith(ctx, action, table, recordID, payload, nil)
}

// Validate checks an operation against the queue's rules without storing it.
func (q *Queue) Validate(action models.SyncAction, table, recordID string) error {
	req := EnqueueRequest{Action: string(action), Table: table, RecordID: recordID}
	if err := validator.ValidateStruct(req); err != nil {
		return fmt.Errorf("syncqueue: enqueue: %w", err)
	}
	if q.tables != nil {
		if _, ok := q.tables[table]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
	}
	return nil
}

// EnqueueWith runs write and the insert of the operation in one transaction, so the local
// change and its queue entry commit together. write may be nil.
func (q *Queue) EnqueueWith(ctx context.Context, action models.SyncAction, table, recordID string, payload any, write func(tx *gorm.DB) error) (models.PendingOperation, error) {
	if err := q.Validate(action, table, recordID); err != nil {
		return models.PendingOperation{}, err
	}

	body, err := encodePayload(payload)
	if err != nil {
		return models.PendingOperation{}, err
	}

	op := models.PendingOperation{
		Action:     action,
		Table:      table,
		RecordID:   recordID,
		Payload:    datatypes.JSON(body),
		EnqueuedAt: q.now().UTC(),
	}
	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if write != nil {
			if err := write(tx); err != nil {
				return err
			}
		}
		if err := tx.Create(&op).Error; err != nil {
			return fmt.Errorf("syncqueue: enqueue: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.PendingOperation{}, err
	}

	q.log.Debug("operation enqueued",
		zap.Uint64("operation_id", op.ID),
		zap.String("table", table),
		zap.String("action", string(action)),
		zap.String("record_id", recordID),
	)
	q.publishBacklog(ctx, "queue.enqueued")
	return op, nil
}

// Drain applies every pending operation in enqueue order. A concurrent call returns
// ErrDrainInProgress without touching the queue.
func (q *Queue) Drain(ctx context.Context) (Result, error) {
	if !q.draining.CompareAndSwap(false, true) {
		monitoring.RecordDrain("skipped", 0)
		return Result{}, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	start := time.Now()
	var result Result

	var ops []models.PendingOperation
	if err := q.db.WithContext(ctx).Order("enqueued_at ASC, id ASC").Find(&ops).Error; err != nil {
		return result, fmt.Errorf("syncqueue: load pending: %w", err)
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			result.Halted = true
			break
		}

		err := q.applier.Apply(ctx, op)
		if err == nil {
			if err := q.complete(ctx, op); err != nil {
				return result, err
			}
			result.Synced++
			continue
		}

		if errors.Is(err, ErrRemoteUnavailable) || ctx.Err() != nil {
			q.log.Info("drain halted, remote unavailable",
				zap.Uint64("operation_id", op.ID),
				zap.Error(err),
			)
			result.Halted = true
			break
		}

		result.Failed++
		outcome, ferr := q.fail(ctx, op, err)
		if ferr != nil {
			return result, ferr
		}
		switch outcome {
		case "dropped":
			result.Dropped++
		case "dead_lettered":
			result.DeadLettered++
		}
	}

	remaining, err := q.Backlog(ctx)
	if err != nil {
		return result, err
	}
	result.Remaining = int(remaining)
	monitoring.SetSyncBacklog(remaining)

	status := "completed"
	if result.Halted {
		status = "halted"
	} else if err := database.MarkFullSync(ctx, q.db, q.now()); err != nil {
		q.log.Warn("failed to record full sync", zap.Error(err))
	}
	monitoring.RecordDrain(status, time.Since(start))

	q.log.Info("drain finished",
		zap.String("status", status),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
		zap.Int("dropped", result.Dropped),
		zap.Int("dead_lettered", result.DeadLettered),
		zap.Int("remaining", result.Remaining),
	)
	q.publish("drain."+status, result)
	return result, nil
}

func (q *Queue) complete(ctx context.Context, op models.PendingOperation) error {
	if err := q.db.WithContext(ctx).Delete(&models.PendingOperation{}, op.ID).Error; err != nil {
		return fmt.Errorf("syncqueue: remove applied operation %d: %w", op.ID, err)
	}
	monitoring.RecordSyncOperation(op.Table, "synced")

	if q.applied != nil {
		if err := q.applied(ctx, op); err != nil {
			q.log.Warn("applied hook failed",
				zap.Uint64("operation_id", op.ID),
				zap.String("table", op.Table),
				zap.Error(err),
			)
		}
	}
	return nil
}

// fail records a rejected attempt and discards the operation once the ceiling is reached.
func (q *Queue) fail(ctx context.Context, op models.PendingOperation, cause error) (string, error) {
	op.RetryCount++
	op.LastError = truncate(cause.Error(), maxErrorLength)

	if op.RetryCount < q.ceiling {
		err := q.db.WithContext(ctx).Model(&models.PendingOperation{}).
			Where("id = ?", op.ID).
			Updates(map[string]any{
				"retry_count": op.RetryCount,
				"last_error":  op.LastError,
				"updated_at":  q.now().UTC(),
			}).Error
		if err != nil {
			return "", fmt.Errorf("syncqueue: record failure %d: %w", op.ID, err)
		}
		monitoring.RecordSyncOperation(op.Table, "failed")
		q.log.Debug("operation rejected, will retry",
			zap.Uint64("operation_id", op.ID),
			zap.Int("retry_count", op.RetryCount),
			zap.Error(cause),
		)
		return "failed", nil
	}

	outcome := "dropped"
	if q.deadLetter {
		outcome = "dead_lettered"
	}

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if q.deadLetter {
			letter := models.DeadLetter{
				OperationID: op.ID,
				Action:      op.Action,
				Table:       op.Table,
				RecordID:    op.RecordID,
				Payload:     op.Payload,
				EnqueuedAt:  op.EnqueuedAt,
				RetryCount:  op.RetryCount,
				LastError:   op.LastError,
				DroppedAt:   q.now().UTC(),
			}
			if err := tx.Create(&letter).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.PendingOperation{}, op.ID).Error
	})
	if err != nil {
		return "", fmt.Errorf("syncqueue: discard operation %d: %w", op.ID, err)
	}

	monitoring.RecordSyncOperation(op.Table, outcome)
	q.log.Warn("sync operation discarded after retry ceiling",
		zap.Bool("data_loss", !q.deadLetter),
		zap.String("outcome", outcome),
		zap.Uint64("operation_id", op.ID),
		zap.String("table", op.Table),
		zap.String("action", string(op.Action)),
		zap.String("record_id", op.RecordID),
		zap.Int("retry_count", op.RetryCount),
		zap.String("last_error", op.LastError),
	)
	return outcome, nil
}

// Backlog returns the number of pending operations.
func (q *Queue) Backlog(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.WithContext(ctx).Model(&models.PendingOperation{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("syncqueue: backlog: %w", err)
	}
	return count, nil
}

// Pending lists queued operations in drain order.
func (q *Queue) Pending(ctx context.Context, limit int) ([]models.PendingOperation, error) {
	var ops []models.PendingOperation
	query := q.db.WithContext(ctx).Order("enqueued_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("syncqueue: list pending: %w", err)
	}
	return ops, nil
}

// DeadLetters lists discarded operations, newest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	var letters []models.DeadLetter
	query := q.db.WithContext(ctx).Order("dropped_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&letters).Error; err != nil {
		return nil, fmt.Errorf("syncqueue: list dead letters: %w", err)
	}
	return letters, nil
}

// Requeue moves a dead letter back to the tail of the queue with a fresh retry budget.
func (q *Queue) Requeue(ctx context.Context, deadLetterID uint64) (models.PendingOperation, error) {
	var op models.PendingOperation
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var letter models.DeadLetter
		if err := tx.First(&letter, deadLetterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDeadLetterNotFound
			}
			return err
		}

		op = models.PendingOperation{
			Action:     letter.Action,
			Table:      letter.Table,
			RecordID:   letter.RecordID,
			Payload:    letter.Payload,
			EnqueuedAt: q.now().UTC(),
		}
		if err := tx.Create(&op).Error; err != nil {
			return err
		}
		return tx.Delete(&letter).Error
	})
	if err != nil {
		if errors.Is(err, ErrDeadLetterNotFound) {
			return models.PendingOperation{}, err
		}
		return models.PendingOperation{}, fmt.Errorf("syncqueue: requeue %d: %w", deadLetterID, err)
	}

	q.log.Info("dead letter requeued",
		zap.Uint64("dead_letter_id", deadLetterID),
		zap.Uint64("operation_id", op.ID),
	)
	q.publishBacklog(ctx, "queue.requeued")
	return op, nil
}

// PurgeDeadLetters deletes dead letters discarded before olderThan.
func (q *Queue) PurgeDeadLetters(ctx context.Context, olderThan time.Time) (int64, error) {
	res := q.db.WithContext(ctx).Where("dropped_at < ?", olderThan.UTC()).Delete(&models.DeadLetter{})
	if res.Error != nil {
		return 0, fmt.Errorf("syncqueue: purge dead letters: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (q *Queue) publishBacklog(ctx context.Context, event string) {
	backlog, err := q.Backlog(ctx)
	if err != nil {
		q.log.Warn("failed to count backlog", zap.Error(err))
		return
	}
	monitoring.SetSyncBacklog(backlog)
	q.publish(event, map[string]any{"backlog": backlog})
}

func (q *Queue) publish(event string, data any) {
	if q.publisher == nil {
		return
	}
	q.publisher.BroadcastStream(realtime.StreamSyncStatus, realtime.Message{Event: event, Data: data})
}

func encodePayload(payload any) ([]byte, error) {
	var body []byte
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		body = v
	case json.RawMessage:
		body = v
	case datatypes.JSON:
		body = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		body = encoded
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrInvalidPayload
	}
	return trimmed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
