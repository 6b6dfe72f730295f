package storage

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is not open")

	// ErrTransient marks failures that may succeed when retried
	ErrTransient = errors.New("transient persistence failure")
)

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func transient(err error) error {
	if err == nil || IsTransient(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
