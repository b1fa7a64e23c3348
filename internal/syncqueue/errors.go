package syncqueue

import "errors"

var (
	// ErrDrainInProgress is returned when Drain is called while another pass is running.
	ErrDrainInProgress = errors.New("syncqueue: drain already in progress")
	// ErrRemoteUnavailable signals the remote cannot be reached. It halts a pass without
	// consuming a retry.
	ErrRemoteUnavailable = errors.New("syncqueue: remote unavailable")
	// ErrUnknownTable is returned when an operation targets a table outside the configured set.
	ErrUnknownTable = errors.New("syncqueue: unknown table")
	// ErrInvalidPayload is returned when the payload is not a JSON document.
	ErrInvalidPayload = errors.New("syncqueue: payload must be a JSON object")
	// ErrDeadLetterNotFound is returned when requeueing an unknown dead letter.
	ErrDeadLetterNotFound = errors.New("syncqueue: dead letter not found")
)
