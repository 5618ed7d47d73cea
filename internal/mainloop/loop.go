// Package mainloop provides the foreground event loop: a single goroutine
// that runs posted work one item at a time, the way a UI thread does.
// Contexts handed to posted work are tagged so callers can tell whether they
// are running on the loop.
package mainloop

import (
	"context"
	"errors"
	"sync"
)

// ErrReentrant is returned by Do when called from the loop itself.
var ErrReentrant = errors.New("mainloop: Do called from the foreground loop")

// ErrStopped is returned by Do when the loop is no longer running.
var ErrStopped = errors.New("mainloop: loop stopped")

type foregroundKey struct{}

// IsForeground reports whether ctx belongs to work running on a Loop.
func IsForeground(ctx context.Context) bool {
	_, ok := ctx.Value(foregroundKey{}).(*Loop)
	return ok
}

// Loop is a foreground event loop. The zero value is not usable; call New.
type Loop struct {
	mu      sync.Mutex
	queue   []func(context.Context)
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// New returns a loop that is not yet running.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn to run on the loop. It never blocks. Work posted after
// the loop stopped is dropped.
func (l *Loop) Post(fn func(ctx context.Context)) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context)) error {
	if IsForeground(ctx) {
		return ErrReentrant
	}

	finished := make(chan struct{})
	l.Post(func(fctx context.Context) {
		defer close(finished)
		fn(fctx)
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted work on the calling goroutine until ctx is cancelled.
// Run may only be called once.
func (l *Loop) Run(ctx context.Context) error {
	fctx := context.WithValue(ctx, foregroundKey{}, l)
	defer l.stop()

	for {
		for {
			fn, ok := l.pop()
			if !ok {
				break
			}
			fn(fctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) pop() (func(context.Context), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
	close(l.done)
}
