package mfu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lazypower/mfu/internal/mainloop"
	"github.com/lazypower/mfu/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *store.DB
	loop    *mainloop.Loop
	tracker *Tracker

	missing  map[string]bool
	resolves atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)

	f := &fixture{db: db, loop: mainloop.New(), missing: map[string]bool{}}

	resolver := ResolverFunc(func(ctx context.Context, key string) (File, error) {
		f.resolves.Add(1)
		if f.missing[key] {
			return File{}, errors.New("no such file")
		}
		return File{Path: key, Name: key[1:]}, nil
	})

	log := logrus.New()
	log.SetOutput(io.Discard)
	f.tracker = New(db, resolver, f.loop, Options{
		Logger: log,
		Clock:  func() time.Time { return testNow },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go f.loop.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-f.loop.Done()
		f.tracker.Close()
		db.Close()
	})
	return f
}

func (f *fixture) seed(t *testing.T, key string, count int64, degradedAt time.Time) {
	t.Helper()
	_, err := f.db.Exec(
		"INSERT INTO items (key, count, last_degrade_timestamp) VALUES (?, ?, ?)",
		key, count, degradedAt.UnixMilli(),
	)
	require.NoError(t, err)
}

func counts(files []File) []int64 {
	out := make([]int64, 0, len(files))
	for _, f := range files {
		out = append(out, f.Count)
	}
	return out
}

func TestNotifyAccessedUpsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker.NotifyAccessed(ctx, Path("/a")))
	it, err := f.db.GetItem("/a")
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, int64(1), it.Count)

	require.NoError(t, f.tracker.NotifyAccessed(ctx, Path("/a")))
	it, _ = f.db.GetItem("/a")
	assert.Equal(t, int64(2), it.Count)

	n, _ := f.db.CountItems()
	assert.Equal(t, 1, n)
}

func TestNotifyEmptyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.tracker.NotifyAccessed(ctx, Path("")), ErrEmptyKey)
	assert.ErrorIs(t, f.tracker.NotifyDeleted(ctx, Path("")), ErrEmptyKey)
	assert.ErrorIs(t, f.tracker.NotifyMoved(ctx, Path("/a"), Path("")), ErrEmptyKey)
}

func TestNotifyMovedPreservesScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker.NotifyAccessed(ctx, Path("/a")))
	require.NoError(t, f.tracker.NotifyAccessed(ctx, Path("/a")))
	require.NoError(t, f.tracker.NotifyMoved(ctx, Path("/a"), File{Path: "/b"}))

	old, _ := f.db.GetItem("/a")
	assert.Nil(t, old)
	it, _ := f.db.GetItem("/b")
	require.NotNil(t, it)
	assert.Equal(t, int64(2), it.Count)

	n, _ := f.db.CountItems()
	assert.Equal(t, 1, n)
}

func TestNotifyMovedUntracked(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.tracker.NotifyMoved(context.Background(), Path("/ghost"), Path("/b")))
	n, _ := f.db.CountItems()
	assert.Equal(t, 0, n)
}

func TestNotifyDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker.NotifyAccessed(ctx, Path("/a")))
	require.NoError(t, f.tracker.NotifyDeleted(ctx, Path("/a")))
	require.NoError(t, f.tracker.NotifyDeleted(ctx, Path("/a")))

	it, _ := f.db.GetItem("/a")
	assert.Nil(t, it)
}

func TestAsyncNotifications(t *testing.T) {
	f := newFixture(t)

	f.tracker.NotifyAccessedAsync(Path("/x"))
	f.tracker.NotifyAccessedAsync(Path("/y"))
	f.tracker.NotifyAccessedAsync(Path("/y"))
	f.tracker.async.Wait()

	f.tracker.NotifyMovedAsync(Path("/y"), Path("/z"))
	f.tracker.NotifyDeletedAsync(Path("/x"))
	f.tracker.async.Wait()

	x, _ := f.db.GetItem("/x")
	assert.Nil(t, x)
	z, _ := f.db.GetItem("/z")
	require.NotNil(t, z)
	assert.Equal(t, int64(2), z.Count)
}

func TestAsyncAfterCloseDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Close())

	before := testutil.ToFloat64(asyncDropped)
	f.tracker.NotifyAccessedAsync(Path("/late"))
	f.tracker.NotifyMovedAsync(Path("/late"), Path("/later"))
	f.tracker.NotifyDeletedAsync(Path("/late"))
	f.tracker.async.Wait()

	assert.Equal(t, before+3, testutil.ToFloat64(asyncDropped))
	n, err := f.db.CountItems()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetFilesDecay(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "/old", 5, testNow.Add(-72*time.Hour))

	files, err := f.tracker.GetFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(2), files[0].Count)

	it, _ := f.db.GetItem("/old")
	assert.Equal(t, int64(2), it.Count)
	assert.Equal(t, testNow.UnixMilli(), it.LastDegradeAt)

	// A second read on the same day leaves the score alone.
	files, err = f.tracker.GetFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, counts(files))
}

func TestGetFilesPruneFloor(t *testing.T) {
	f := newFixture(t)
	for i, c := range []int64{6, 2, 0} {
		f.seed(t, fmt.Sprintf("/keep%d", i), c, testNow)
	}
	for i := 0; i < 12; i++ {
		f.seed(t, fmt.Sprintf("/neg%02d", i), int64(-1-i), testNow)
	}

	files, err := f.tracker.GetFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 2, 0, -1, -2, -3, -4, -5, -6, -7}, counts(files))

	n, _ := f.db.CountItems()
	assert.Equal(t, DefaultMaxResults, n)
}

func TestGetFilesRankingOrder(t *testing.T) {
	f := newFixture(t)
	for i, c := range []int64{7, 3, 9, -1} {
		f.seed(t, fmt.Sprintf("/f%d", i), c, testNow)
	}

	files, err := f.tracker.GetFiles(context.Background())
	require.NoError(t, err)
	// -1 is inside the retained top ten, so it survives pruning and sorts last.
	assert.Equal(t, []int64{9, 7, 3, -1}, counts(files))
	assert.Equal(t, "/f2", files[0].Path)
}

func TestGetFilesSkipsUnresolvable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "/a", 9, testNow)
	f.seed(t, "/b", 7, testNow)
	f.seed(t, "/c", 3, testNow)
	f.missing["/b"] = true

	files, err := f.tracker.GetFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/a", files[0].Path)
	assert.Equal(t, "/c", files[1].Path)
}

func TestGetFilesEmpty(t *testing.T) {
	f := newFixture(t)

	files, err := f.tracker.GetFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGetFilesMaxResults(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 15; i++ {
		f.seed(t, fmt.Sprintf("/p%02d", i), int64(i+1), testNow)
	}

	files, err := f.tracker.GetFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, DefaultMaxResults)
	assert.Equal(t, int64(15), files[0].Count)
	assert.Equal(t, int64(6), files[9].Count)
}

func TestMaintain(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "/stale", 1, testNow.Add(-5*24*time.Hour))
	f.seed(t, "/fresh", 3, testNow)

	decayed, pruned, err := f.tracker.Maintain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, decayed)
	// Two rows fit inside the top ten, so the negative one is kept.
	assert.Equal(t, 0, pruned)

	it, _ := f.db.GetItem("/stale")
	assert.Equal(t, int64(-4), it.Count)
}

func TestBlockingCallsRejectedOnLoop(t *testing.T) {
	f := newFixture(t)

	var accessErr, movedErr, deletedErr, filesErr, maintainErr error
	require.NoError(t, f.loop.Do(context.Background(), func(ctx context.Context) {
		accessErr = f.tracker.NotifyAccessed(ctx, Path("/a"))
		movedErr = f.tracker.NotifyMoved(ctx, Path("/a"), Path("/b"))
		deletedErr = f.tracker.NotifyDeleted(ctx, Path("/a"))
		_, filesErr = f.tracker.GetFiles(ctx)
		_, _, maintainErr = f.tracker.Maintain(ctx)
	}))

	assert.ErrorIs(t, accessErr, ErrForeground)
	assert.ErrorIs(t, movedErr, ErrForeground)
	assert.ErrorIs(t, deletedErr, ErrForeground)
	assert.ErrorIs(t, filesErr, ErrForeground)
	assert.ErrorIs(t, maintainErr, ErrForeground)

	n, _ := f.db.CountItems()
	assert.Equal(t, 0, n)
}
