package mfu

import (
	"context"

	"github.com/google/uuid"
	"github.com/lazypower/mfu/internal/store"
)

// Observer receives ranked lists on the foreground loop. The slice is
// shared between observers and must not be modified.
type Observer interface {
	FilesChanged(files []File)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(files []File)

func (f ObserverFunc) FilesChanged(files []File) { f(files) }

// Registration is the handle returned by RegisterObserver.
type Registration struct {
	ID  string
	obs Observer
}

type watcher struct {
	cancel      context.CancelFunc
	unsubscribe func()
	trigger     chan struct{}
}

// RegisterObserver adds obs. The first registration starts the watch
// goroutine and schedules an immediate delivery of the current ranking;
// later registrations get the most recent list, if any.
func (t *Tracker) RegisterObserver(ctx context.Context, obs Observer) (*Registration, error) {
	if err := requireForeground(ctx); err != nil {
		return nil, err
	}

	reg := &Registration{ID: uuid.NewString(), obs: obs}
	t.observers = append(t.observers, reg)
	observersGauge.Set(float64(len(t.observers)))

	if t.watch == nil {
		t.startWatch()
		t.log.Debugf("observe: watching (%s)", reg.ID)
	} else if t.hasLast {
		last, w := t.last, t.watch
		t.loop.Post(func(context.Context) {
			if t.watch == w && t.registered(reg) {
				reg.obs.FilesChanged(last)
				deliveries.Inc()
			}
		})
	}
	return reg, nil
}

// UnregisterObserver removes reg. Removing the last observer stops the
// watch goroutine.
func (t *Tracker) UnregisterObserver(ctx context.Context, reg *Registration) error {
	if err := requireForeground(ctx); err != nil {
		return err
	}

	idx := -1
	for i, r := range t.observers {
		if r == reg {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownRegistration
	}
	t.observers = append(t.observers[:idx], t.observers[idx+1:]...)
	observersGauge.Set(float64(len(t.observers)))

	if len(t.observers) == 0 {
		t.stopWatch()
		t.log.Debugf("observe: idle (%s)", reg.ID)
	}
	return nil
}

// Observers returns the number of registered observers. Foreground only.
func (t *Tracker) Observers(ctx context.Context) (int, error) {
	if err := requireForeground(ctx); err != nil {
		return 0, err
	}
	return len(t.observers), nil
}

func (t *Tracker) registered(reg *Registration) bool {
	for _, r := range t.observers {
		if r == reg {
			return true
		}
	}
	return false
}

func (t *Tracker) startWatch() {
	changes, unsubscribe := t.db.Changes().Subscribe()
	ctx, cancel := context.WithCancel(t.ctx)
	w := &watcher{
		cancel:      cancel,
		unsubscribe: unsubscribe,
		trigger:     make(chan struct{}, 1),
	}
	t.watch = w

	// Synthetic change so the first observer sees the current ranking.
	w.trigger <- struct{}{}

	t.watchers.Add(1)
	go t.runWatch(ctx, w, changes)
}

func (t *Tracker) stopWatch() {
	if t.watch == nil {
		return
	}
	t.watch.unsubscribe()
	t.watch.cancel()
	t.watch = nil
	t.last = nil
	t.hasLast = false
}

// runWatch recomputes the ranking on every change and posts it to the loop.
// ctx is never a foreground context.
func (t *Tracker) runWatch(ctx context.Context, w *watcher, changes <-chan store.Change) {
	defer t.watchers.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
		case _, ok := <-changes:
			if !ok {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		files, err := t.GetFiles(ctx)
		if !drainMaintenance(changes, w.trigger) {
			return
		}
		if err != nil {
			t.log.Warnf("observe: recompute: %v", err)
			continue
		}
		t.loop.Post(func(context.Context) { t.deliver(w, files) })
	}
}

// drainMaintenance drops a pending decay or prune change, since a list
// computed after it already reflects it. Any other pending change re-arms
// trigger. It reports false once changes is closed.
func drainMaintenance(changes <-chan store.Change, trigger chan struct{}) bool {
	select {
	case c, ok := <-changes:
		if !ok {
			return false
		}
		if !c.Op.Maintenance() {
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	default:
	}
	return true
}

// deliver fans files out to every observer. Runs on the loop; lists from a
// watcher that has since been torn down are dropped.
func (t *Tracker) deliver(w *watcher, files []File) {
	if t.watch != w {
		return
	}
	t.last = files
	t.hasLast = true

	observers := append([]*Registration(nil), t.observers...)
	for _, reg := range observers {
		reg.obs.FilesChanged(files)
		deliveries.Inc()
	}
}
