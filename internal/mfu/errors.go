package mfu

import (
	"context"
	"errors"

	"github.com/lazypower/mfu/internal/mainloop"
)

var (
	// ErrForeground is returned when a blocking tracker call is made from
	// the foreground loop. It signals a caller bug.
	ErrForeground = errors.New("mfu: blocking call on the foreground loop")

	// ErrNotForeground is returned when observer registration is attempted
	// off the foreground loop.
	ErrNotForeground = errors.New("mfu: observer registration off the foreground loop")

	// ErrEmptyKey is returned for objects with no path.
	ErrEmptyKey = errors.New("mfu: empty key")

	// ErrUnknownRegistration is returned when unregistering a handle that
	// is not registered.
	ErrUnknownRegistration = errors.New("mfu: observer not registered")
)

func requireBackground(ctx context.Context) error {
	if mainloop.IsForeground(ctx) {
		return ErrForeground
	}
	return nil
}

func requireForeground(ctx context.Context) error {
	if !mainloop.IsForeground(ctx) {
		return ErrNotForeground
	}
	return nil
}
