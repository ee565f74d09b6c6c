package app

import "errors"

// Validation errors returned before any database work happens. Handlers map
// them to 400 responses.
var (
	ErrEmptyUsername = errors.New("username must not be empty")
	ErrInvalidAmount = errors.New("amount must be a positive number with at most two decimal places")
)
