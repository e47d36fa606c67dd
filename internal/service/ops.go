package service

import (
	"context"
	"errors"
	"time"

	"ReadyCheckserver/internal/domain"
)

const defaultOpTimeout = 10 * time.Second

// opContext bounds a mutating operation with a fixed deadline. The parent's
// cancellation is detached on purpose: a client disconnecting mid-operation
// must not abort a mutation already in flight.
func opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func mapDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	return err
}
