package syncqueue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/marketsync/internal/models"
	"github.com/charlesng35/marketsync/internal/realtime"
)

// DefaultRetryCeiling is the number of remote attempts before an operation is discarded.
const DefaultRetryCeiling = 3

// AppliedHook runs after an operation was applied remotely and removed from the queue.
type AppliedHook func(ctx context.Context, op models.PendingOperation) error

// Publisher receives queue status events.
type Publisher interface {
	BroadcastStream(stream string, message realtime.Message)
}

// Option customises a Queue.
type Option func(*Queue)

// WithRetryCeiling overrides DefaultRetryCeiling. Values below one are ignored.
func WithRetryCeiling(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ceiling = n
		}
	}
}

// WithDeadLetter keeps exhausted operations in the dead_letters table instead of dropping them.
func WithDeadLetter(enabled bool) Option {
	return func(q *Queue) {
		q.deadLetter = enabled
	}
}

// WithNow overrides the queue clock.
func WithNow(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithTables restricts Enqueue to the named tables.
func WithTables(names ...string) Option {
	return func(q *Queue) {
		if len(names) == 0 {
			return
		}
		q.tables = make(map[string]struct{}, len(names))
		for _, name := range names {
			q.tables[name] = struct{}{}
		}
	}
}

// WithAppliedHook registers a callback invoked after each applied operation.
func WithAppliedHook(hook AppliedHook) Option {
	return func(q *Queue) {
		q.applied = hook
	}
}

// WithPublisher sends enqueue and drain events to a realtime publisher.
func WithPublisher(p Publisher) Option {
	return func(q *Queue) {
		q.publisher = p
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}
