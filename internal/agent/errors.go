package agent

import "errors"

var (
	// ErrProviderNotFound is returned when an agent name is not registered.
	ErrProviderNotFound = errors.New("agent not found")

	// ErrProviderConflict is returned when registering an agent name that is
	// already registered.
	ErrProviderConflict = errors.New("agent already registered")
)
