package journal

import "errors"

var (
	// ErrNotOwner is returned when an entry exists but belongs to a
	// different owner. Rejected before any crypto work happens.
	ErrNotOwner = errors.New("entry does not belong to the requesting owner")

	// ErrNoOwner is returned when a session carries no owner id.
	ErrNoOwner = errors.New("no owner id in session")
)
