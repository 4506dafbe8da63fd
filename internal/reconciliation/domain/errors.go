package domain

import "errors"

var (
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrInvalidEvent          = errors.New("invalid_event")
	// ErrMappingFailed means no local subscription could be attributed. The
	// delivery must be reported as failed so the gateway retries it.
	ErrMappingFailed   = errors.New("mapping_failed")
	ErrInvalidBackfill = errors.New("invalid_backfill_window")
)
