package framework

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"
)

// ErrStop is returned by a periodic func to end Every without error.
var ErrStop = errors.New("stop")

// RunWithContextCancel runs a func with doesn't accept a context.
// cancel is called only when the context is canceled.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	if ctx.Done() == nil {
		return fn()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		glog.V(4).Infof("canceled: %v", ctx.Err())
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// RunWithContextCloser is a convinient wrapper for RunWithContextCancel and
// ensures closer.Close is called on cancel.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	return RunWithContextCancel(ctx, func() {
		closer.Close()
	}, fn)
}

// Sleep waits for the duration or until the context is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Every calls fn immediately and then at each interval until the context
// is done or fn returns an error. ErrStop and context cancellation end
// the loop without error.
func Every(ctx context.Context, interval time.Duration, fn func() error) error {
	for {
		if err := fn(); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
		if err := Sleep(ctx, interval); err != nil {
			return nil
		}
	}
}
