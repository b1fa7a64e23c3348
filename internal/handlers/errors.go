package handlers

import (
	"errors"

	"github.com/charlesng35/marketsync/internal/cache"
	"github.com/charlesng35/marketsync/internal/connectivity"
	"github.com/charlesng35/marketsync/internal/engine"
	"github.com/charlesng35/marketsync/internal/store"
	"github.com/charlesng35/marketsync/internal/syncqueue"
	appErrors "github.com/charlesng35/marketsync/pkg/errors"
)

// translateError maps engine sentinels onto API errors.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, connectivity.ErrSyncSuppressed):
		return appErrors.ErrSyncSuppressed.WithInternal(err)
	case errors.Is(err, syncqueue.ErrDrainInProgress):
		return appErrors.ErrSyncInProgress.WithInternal(err)
	case errors.Is(err, cache.ErrInvalidPattern):
		return appErrors.ErrPatternInvalid.WithInternal(err)
	case errors.Is(err, syncqueue.ErrDeadLetterNotFound), errors.Is(err, store.ErrNotFound):
		return appErrors.ErrNotFound.WithInternal(err)
	case errors.Is(err, store.ErrUnknownTable),
		errors.Is(err, syncqueue.ErrUnknownTable),
		errors.Is(err, syncqueue.ErrInvalidPayload),
		errors.Is(err, engine.ErrMissingID):
		return appErrors.NewBadRequest(err.Error())
	default:
		return err
	}
}
