package natskv

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/reelboard/go/internal/docstore"
)

func TestSnapshotOf(t *testing.T) {
	value := []byte(`{"users":[]}`)

	put := snapshotOf(jetstream.KeyValuePut, value, 7)
	assert.True(t, put.Exists)
	assert.Equal(t, uint64(7), put.Revision)
	assert.Equal(t, value, put.Data)
	value[0] = 'x'
	assert.Equal(t, byte('{'), put.Data[0], "snapshot must not alias the entry")

	for _, op := range []jetstream.KeyValueOp{jetstream.KeyValueDelete, jetstream.KeyValuePurge} {
		snap := snapshotOf(op, nil, 8)
		assert.False(t, snap.Exists)
		assert.Equal(t, uint64(8), snap.Revision)
	}
}

func TestWatchDeliversAbsentThenPuts(t *testing.T) {
	url := os.Getenv("REELBOARD_TEST_NATS_URL")
	if url == "" {
		t.Skip("REELBOARD_TEST_NATS_URL not set")
	}
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Key = "test-" + uuid.NewString()

	store, err := Connect(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	var mu sync.Mutex
	var got []docstore.Snapshot
	sub, err := store.Subscribe(ctx, func(s docstore.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	}, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, store.WriteWhole(ctx, []byte(`{"n":1}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.False(t, got[0].Exists)
	assert.Equal(t, `{"n":1}`, string(got[1].Data))
	mu.Unlock()

	snap, err := store.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(snap.Data))
}
