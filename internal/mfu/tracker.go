package mfu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lazypower/mfu/internal/mainloop"
	"github.com/lazypower/mfu/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// DefaultMaxResults is how many entries GetFiles returns and pruning keeps.
const DefaultMaxResults = 10

// Options tunes a Tracker. Zero values select defaults.
type Options struct {
	MaxResults int
	Logger     logrus.FieldLogger
	Clock      func() time.Time
}

// Tracker ranks file-system objects by decayed access frequency.
//
// Mutations and GetFiles block on the store and must not be called from the
// foreground loop. Observer registration must be called from it.
type Tracker struct {
	db         *store.DB
	resolver   Resolver
	loop       *mainloop.Loop
	log        logrus.FieldLogger
	maxResults int
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	asyncMu  sync.Mutex
	closed   bool
	async    conc.WaitGroup
	watchers sync.WaitGroup

	stopOnce sync.Once
	stopCh   chan struct{}

	// Loop-owned state. Only touched from work running on loop.
	observers []*Registration
	watch     *watcher
	last      []File
	hasLast   bool
}

// New creates a Tracker over db.
func New(db *store.DB, resolver Resolver, loop *mainloop.Loop, opts Options) *Tracker {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		db:         db,
		resolver:   resolver,
		loop:       loop,
		log:        opts.Logger,
		maxResults: opts.MaxResults,
		now:        opts.Clock,
		ctx:        ctx,
		cancel:     cancel,
		stopCh:     make(chan struct{}),
	}
}

// MaxResults returns the ranked list length.
func (t *Tracker) MaxResults() int {
	return t.maxResults
}

// NotifyAccessed records one access of obj.
func (t *Tracker) NotifyAccessed(ctx context.Context, obj Object) error {
	if err := requireBackground(ctx); err != nil {
		return err
	}
	key := obj.FullPath()
	if key == "" {
		return ErrEmptyKey
	}

	err := t.db.Increment(key, t.now())
	countNotification("accessed", err)
	if err != nil {
		return fmt.Errorf("notify accessed %s: %w", key, err)
	}
	return nil
}

// NotifyMoved carries the score of from over to to. Nothing happens if from
// is not tracked.
func (t *Tracker) NotifyMoved(ctx context.Context, from, to Object) error {
	if err := requireBackground(ctx); err != nil {
		return err
	}
	src, dst := from.FullPath(), to.FullPath()
	if src == "" || dst == "" {
		return ErrEmptyKey
	}

	_, err := t.db.RenameItem(src, dst)
	countNotification("moved", err)
	if err != nil {
		return fmt.Errorf("notify moved %s -> %s: %w", src, dst, err)
	}
	return nil
}

// NotifyDeleted forgets obj.
func (t *Tracker) NotifyDeleted(ctx context.Context, obj Object) error {
	if err := requireBackground(ctx); err != nil {
		return err
	}
	key := obj.FullPath()
	if key == "" {
		return ErrEmptyKey
	}

	_, err := t.db.DeleteItem(key)
	countNotification("deleted", err)
	if err != nil {
		return fmt.Errorf("notify deleted %s: %w", key, err)
	}
	return nil
}

// NotifyAccessedAsync runs NotifyAccessed on a background goroutine. After
// Close it does nothing.
func (t *Tracker) NotifyAccessedAsync(obj Object) {
	t.goAsync(func() error { return t.NotifyAccessed(t.ctx, obj) })
}

// NotifyMovedAsync runs NotifyMoved on a background goroutine.
func (t *Tracker) NotifyMovedAsync(from, to Object) {
	t.goAsync(func() error { return t.NotifyMoved(t.ctx, from, to) })
}

// NotifyDeletedAsync runs NotifyDeleted on a background goroutine.
func (t *Tracker) NotifyDeletedAsync(obj Object) {
	t.goAsync(func() error { return t.NotifyDeleted(t.ctx, obj) })
}

// goAsync runs fn on the async group. Calls after Close are dropped.
func (t *Tracker) goAsync(fn func() error) {
	t.asyncMu.Lock()
	defer t.asyncMu.Unlock()
	if t.closed {
		asyncDropped.Inc()
		t.log.Debug("async: tracker closed, dropping notification")
		return
	}
	t.async.Go(func() {
		if err := fn(); err != nil {
			t.log.Warnf("async: %v", err)
		}
	})
}

// GetFiles decays and prunes the table, then returns up to MaxResults
// resolved objects, most accessed first. Keys that no longer resolve are
// skipped. Only the ranked read itself can fail the call.
func (t *Tracker) GetFiles(ctx context.Context) ([]File, error) {
	if err := requireBackground(ctx); err != nil {
		return nil, err
	}

	t.maintain()

	items, err := t.db.TopItems(t.maxResults)
	if err != nil {
		return nil, fmt.Errorf("ranked read: %w", err)
	}

	files := make([]File, 0, len(items))
	for _, it := range items {
		f, err := t.resolver.Resolve(ctx, it.Key)
		if err != nil {
			resolveFailures.Inc()
			t.log.Debugf("resolve %s: %v", it.Key, err)
			continue
		}
		f.Count = it.Count
		files = append(files, f)
	}
	return files, nil
}

// Maintain runs one decay and prune pass and reports what it changed.
// Unlike the pass inside GetFiles, failures are returned.
func (t *Tracker) Maintain(ctx context.Context) (decayed, pruned int, err error) {
	if err := requireBackground(ctx); err != nil {
		return 0, 0, err
	}
	decayed, err = t.db.DecayItems(t.now())
	if err != nil {
		return 0, 0, err
	}
	decayedRows.Add(float64(decayed))
	pruned, err = t.db.PruneItems(t.maxResults)
	if err != nil {
		return decayed, 0, err
	}
	prunedRows.Add(float64(pruned))
	return decayed, pruned, nil
}

// maintain is the advisory pass run before every ranked read.
func (t *Tracker) maintain() {
	if decayed, err := t.db.DecayItems(t.now()); err != nil {
		t.log.Warnf("decay error: %v", err)
	} else if decayed > 0 {
		decayedRows.Add(float64(decayed))
		t.log.Debugf("decay: updated %d rows", decayed)
	}

	if pruned, err := t.db.PruneItems(t.maxResults); err != nil {
		t.log.Warnf("prune error: %v", err)
	} else if pruned > 0 {
		prunedRows.Add(float64(pruned))
		t.log.Debugf("prune: removed %d rows", pruned)
	}
}

// StartMaintenance runs a decay and prune pass now and then every interval
// until Stop or Close.
func (t *Tracker) StartMaintenance(interval time.Duration) {
	t.runMaintenance()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.runMaintenance()
			case <-t.stopCh:
				return
			}
		}
	}()
}

func (t *Tracker) runMaintenance() {
	if decayed, pruned, err := t.Maintain(t.ctx); err != nil {
		t.log.Warnf("maintenance error: %v", err)
	} else if decayed > 0 || pruned > 0 {
		t.log.Infof("maintenance: decayed %d, pruned %d", decayed, pruned)
	}
}

// Stop halts the maintenance timer.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Close stops background work and waits for async notifications and watch
// goroutines to finish. Async notifications issued afterwards are dropped.
// It must not be called from the foreground loop.
func (t *Tracker) Close() error {
	t.Stop()

	t.asyncMu.Lock()
	t.closed = true
	t.asyncMu.Unlock()

	t.async.Wait()
	t.cancel()
	t.watchers.Wait()
	return nil
}
