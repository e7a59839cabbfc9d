package utils

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
)

// Guard runs fn and converts a panic into an error.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// SafeNotify runs each callback in order, logging failures under logPrefix.
// A failing callback never prevents the remaining ones from running.
func SafeNotify[F any](ctx context.Context, logPrefix string, callbacks []F, call func(F) error) {
	logger := log.WithFunc(logPrefix)
	for i, cb := range callbacks {
		if err := Guard(func() error { return call(cb) }); err != nil {
			logger.Warnf(ctx, "callback %d failed: %v", i, err)
		}
	}
}
