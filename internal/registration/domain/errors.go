package domain

import "errors"

var (
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidFirstName = errors.New("invalid_first_name")
	ErrInvalidPlanKey   = errors.New("invalid_plan_key")
	ErrInvalidSetupID   = errors.New("invalid_setup_intent_id")

	ErrPlanNotFound        = errors.New("plan_not_found")
	ErrParentNotFound      = errors.New("parent_not_found")
	ErrSetupIntentNotFound = errors.New("setup_intent_not_found")
	ErrSetupIncomplete     = errors.New("setup_incomplete")
	ErrAlreadyConfirmed    = errors.New("already_confirmed")
)
