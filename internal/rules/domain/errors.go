package rules

import "errors"

// ErrNotFound indicates a missing rule record.
var ErrNotFound = errors.New("rules: not found")

// ErrInvalidRule indicates a rule that fails validation.
var ErrInvalidRule = errors.New("rules: invalid rule")
