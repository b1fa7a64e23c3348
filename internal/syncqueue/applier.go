package syncqueue

import (
	"context"

	"github.com/charlesng35/marketsync/internal/models"
)

// Applier performs the remote equivalent of a pending operation. Returning an error wrapping
// ErrRemoteUnavailable stops the current pass; any other error counts as a rejection.
type Applier interface {
	Apply(ctx context.Context, op models.PendingOperation) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, op models.PendingOperation) error

// Apply calls f.
func (f ApplierFunc) Apply(ctx context.Context, op models.PendingOperation) error {
	return f(ctx, op)
}
