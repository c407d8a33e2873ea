package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/reelboard/go/internal/board"
	"github.com/mcdev12/reelboard/go/internal/docstore/memory"
	"github.com/mcdev12/reelboard/go/internal/models"
)

type schemaStore struct {
	*memory.Store
	schemaErr error
	ensured   int
}

func (s *schemaStore) EnsureSchema(ctx context.Context) error {
	s.ensured++
	return s.schemaErr
}

func TestSeedWritesOnlyWhenMissingUnlessForced(t *testing.T) {
	ctx := context.Background()
	store := &schemaStore{Store: memory.New()}
	_, doc, err := prepare(nil)
	require.NoError(t, err)

	revision, written, err := seed(ctx, store, doc, false)
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, uint64(1), revision)

	revision, written, err = seed(ctx, store, []byte(`{"users":[]}`), false)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, uint64(1), revision)
	current, err := store.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc, current.Data)

	revision, written, err = seed(ctx, store, doc, true)
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, uint64(2), revision)
	assert.Equal(t, 3, store.ensured)
}

func TestSeedStopsOnStoreErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("permission denied")

	store := &schemaStore{Store: memory.New(), schemaErr: boom}
	_, _, err := seed(ctx, store, []byte("{}"), true)
	assert.ErrorIs(t, err, boom)

	store = &schemaStore{Store: memory.New()}
	store.FailWrites(boom)
	_, written, err := seed(ctx, store, []byte("{}"), true)
	assert.ErrorIs(t, err, boom)
	assert.False(t, written)
}

func TestPrepareDefaultBoard(t *testing.T) {
	b, doc, err := prepare(nil)
	require.NoError(t, err)
	assert.Len(t, b.Users, models.MemberCount)

	decoded, err := board.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, board.NewDefaultBoard(), decoded)
}

func TestPrepareMigratesLegacyFile(t *testing.T) {
	seed := board.NewDefaultBoard()
	seed.Users[1].Slots[0].Title = "Paddington 2"

	// Legacy documents only carry the loveIt list, with a duplicate voter.
	var raw map[string]any
	data, err := board.Encode(seed)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, u := range raw["users"].([]any) {
		for _, s := range u.(map[string]any)["slots"].([]any) {
			s.(map[string]any)["votes"] = map[string]any{"loveIt": []int{}}
		}
	}
	raw["users"].([]any)[1].(map[string]any)["slots"].([]any)[0].(map[string]any)["votes"] = map[string]any{"loveIt": []int{4, 4}}
	legacy, err := json.Marshal(raw)
	require.NoError(t, err)

	b, doc, err := prepare(legacy)
	require.NoError(t, err)
	slot := b.Users[1].Slots[0]
	assert.Equal(t, "Paddington 2", slot.Title)
	assert.Equal(t, []int{4}, slot.Votes.LoveIt)
	assert.Equal(t, []int{}, slot.Votes.SeenIt)
	assert.Contains(t, string(doc), `"wantToWatch":[]`)
}

func TestPrepareRejectsMalformedFile(t *testing.T) {
	_, _, err := prepare([]byte(`{"users":[]}`))
	assert.ErrorIs(t, err, board.ErrMalformedBoard)
}
