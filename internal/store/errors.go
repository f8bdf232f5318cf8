package store

import "errors"

var (
	ErrNotFound          = errors.New("journal entry not found")
	ErrMissingAssignment = errors.New("cluster assignment references unknown entry")
)
