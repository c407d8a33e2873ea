package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/reelboard/go/internal/docstore"
)

type recorder struct {
	mu    sync.Mutex
	snaps []docstore.Snapshot
	errs  []error
}

func (r *recorder) onSnapshot(s docstore.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshots() []docstore.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]docstore.Snapshot(nil), r.snaps...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) waitFor(t *testing.T, n int) []docstore.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshots()) >= n }, time.Second, 5*time.Millisecond)
	return r.snapshots()
}

func TestSubscribeDeliversAbsentThenWrites(t *testing.T) {
	ctx := context.Background()
	store := New()
	rec := &recorder{}

	sub, err := store.Subscribe(ctx, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snaps := rec.waitFor(t, 1)
	assert.False(t, snaps[0].Exists)

	require.NoError(t, store.WriteWhole(ctx, []byte(`{"n":1}`)))
	require.NoError(t, store.WriteWhole(ctx, []byte(`{"n":2}`)))

	snaps = rec.waitFor(t, 3)
	assert.True(t, snaps[1].Exists)
	assert.Equal(t, `{"n":1}`, string(snaps[1].Data))
	assert.Equal(t, uint64(1), snaps[1].Revision)
	assert.Equal(t, `{"n":2}`, string(snaps[2].Data))
	assert.Equal(t, uint64(2), snaps[2].Revision)

	read, err := store.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, snaps[2], read)
}

func TestPauseQueuesInOrder(t *testing.T) {
	ctx := context.Background()
	store := New()
	rec := &recorder{}

	sub, err := store.Subscribe(ctx, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	rec.waitFor(t, 1)

	store.Pause()
	require.NoError(t, store.WriteWhole(ctx, []byte("a")))
	require.NoError(t, store.WriteWhole(ctx, []byte("b")))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.snapshots(), 1)

	store.Resume()
	snaps := rec.waitFor(t, 3)
	assert.Equal(t, "a", string(snaps[1].Data))
	assert.Equal(t, "b", string(snaps[2].Data))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	store := New()
	rec := &recorder{}

	sub, err := store.Subscribe(ctx, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	rec.waitFor(t, 1)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, store.Subscribers())

	require.NoError(t, store.WriteWhole(ctx, []byte("late")))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.snapshots(), 1)
	assert.Empty(t, rec.errors())
}

func TestBreakIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := New()
	rec := &recorder{}
	boom := errors.New("connection reset")

	sub, err := store.Subscribe(ctx, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	rec.waitFor(t, 1)

	store.Break(boom)
	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rec.errors()[0], boom)

	require.NoError(t, store.WriteWhole(ctx, []byte("after")))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.snapshots(), 1)
	assert.Len(t, rec.errors(), 1)
}

func TestFailWritesAndDelete(t *testing.T) {
	ctx := context.Background()
	store := New()
	boom := errors.New("quota exceeded")

	require.NoError(t, store.WriteWhole(ctx, []byte("x")))
	store.FailWrites(boom)
	assert.ErrorIs(t, store.WriteWhole(ctx, []byte("y")), boom)
	store.FailWrites(nil)

	read, err := store.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", string(read.Data))

	store.Delete()
	read, err = store.ReadOnce(ctx)
	require.NoError(t, err)
	assert.False(t, read.Exists)

	require.NoError(t, store.Close())
	_, err = store.ReadOnce(ctx)
	assert.ErrorIs(t, err, docstore.ErrClosed)
}
