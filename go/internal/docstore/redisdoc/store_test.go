package redisdoc

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/reelboard/go/internal/docstore"
)

func TestSnapshotOf(t *testing.T) {
	tests := []struct {
		name    string
		doc     interface{}
		rev     interface{}
		want    docstore.Snapshot
		wantErr bool
	}{
		{name: "never written", want: docstore.Snapshot{}},
		{name: "document", doc: `{"users":[]}`, rev: "4", want: docstore.Snapshot{Exists: true, Data: []byte(`{"users":[]}`), Revision: 4}},
		{name: "deleted document keeps revision", rev: "9", want: docstore.Snapshot{Revision: 9}},
		{name: "bad revision", doc: "{}", rev: "nine", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := snapshotOf(tt.doc, tt.rev)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteReadAndSubscribe(t *testing.T) {
	addr := os.Getenv("REELBOARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("REELBOARD_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.Key = "test:" + uuid.NewString()
	cfg.Channel = cfg.Key + ":changed"

	rdb, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	store := New(rdb, cfg)
	defer store.Close()
	defer rdb.Del(ctx, cfg.Key, cfg.Key+":rev")

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
	assert.Equal(t, uint64(1), got[1].Revision)
	assert.Equal(t, `{"n":1}`, string(got[1].Data))
	mu.Unlock()
}
