package domain

import "errors"

var (
	ErrMissingRecipient = errors.New("missing_recipient")
	ErrUnknownKind      = errors.New("unknown_notification_kind")
)
