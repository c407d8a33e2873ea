package board

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/reelboard/go/internal/models"
)

// legacyDocument builds a stored document in the shape written before
// reactions existed: slots carry no votes key at all.
func legacyDocument(t *testing.T) []byte {
	t.Helper()
	users := make([]map[string]any, models.MemberCount)
	for i := range users {
		slots := make([]map[string]any, models.SlotsPerMember)
		for j := range slots {
			slots[j] = map[string]any{"id": j, "title": "", "description": "", "genre": "", "rating": 0}
		}
		users[i] = map[string]any{"id": i, "name": DefaultNames[i], "color": Palette[i], "slots": slots}
	}
	users[3]["slots"].([]map[string]any)[2]["title"] = "Heat"
	users[3]["slots"].([]map[string]any)[2]["genre"] = "Thriller"
	users[3]["slots"].([]map[string]any)[2]["rating"] = 4

	data, err := json.Marshal(map[string]any{"users": users})
	require.NoError(t, err)
	return data
}

func TestNewDefaultBoard(t *testing.T) {
	b := NewDefaultBoard()

	require.Len(t, b.Users, models.MemberCount)
	for i, m := range b.Users {
		assert.Equal(t, i, m.ID)
		assert.Equal(t, DefaultNames[i], m.Name)
		assert.Equal(t, Palette[i], m.Color)
		require.Len(t, m.Slots, models.SlotsPerMember)
		for j, s := range m.Slots {
			assert.Equal(t, models.EmptySlot(j), s)
		}
	}
}

func TestDecodeMigratesLegacyVotes(t *testing.T) {
	b, err := Decode(legacyDocument(t))
	require.NoError(t, err)

	slot := b.Users[3].Slots[2]
	assert.Equal(t, "Heat", slot.Title)
	assert.Equal(t, models.GenreThriller, slot.Genre)
	assert.Equal(t, 4, slot.Rating)

	for _, m := range b.Users {
		for _, s := range m.Slots {
			for _, kind := range models.ReactionKinds {
				assert.NotNil(t, s.Votes.Voters(kind), "member %d slot %d kind %s", m.ID, s.ID, kind)
			}
		}
	}
}

func TestDecodeFillsMissingKind(t *testing.T) {
	b := NewDefaultBoard()
	data, err := Encode(b)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	slot := doc["users"].([]any)[0].(map[string]any)["slots"].([]any)[0].(map[string]any)
	slot["title"] = "Arrival"
	slot["votes"] = map[string]any{"loveIt": []int{4, 4, 7}}
	data, err = json.Marshal(doc)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	votes := got.Users[0].Slots[0].Votes
	assert.Equal(t, []int{4, 7}, votes.LoveIt)
	assert.Equal(t, []int{}, votes.WantToWatch)
	assert.Equal(t, []int{}, votes.SeenIt)
}

func TestMigrateIsIdempotent(t *testing.T) {
	once, err := Decode(legacyDocument(t))
	require.NoError(t, err)

	twice := Migrate(once)
	assert.Equal(t, once, twice)

	encoded, err := Encode(once)
	require.NoError(t, err)
	again, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, once, again)
}

func TestMigrateNormalisesNilVoters(t *testing.T) {
	b := NewDefaultBoard()
	b.Users[1].Slots[1].Votes = models.Votes{}

	got := Migrate(b)
	assert.Equal(t, models.EmptyVotes(), got.Users[1].Slots[1].Votes)
	assert.Nil(t, b.Users[1].Slots[1].Votes.LoveIt, "input must not be modified")
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{"users":`},
		{name: "missing users", data: `{"members":[]}`},
		{name: "null users", data: `{"users":null}`},
		{name: "too few members", data: `{"users":[{"id":0,"slots":[]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, ErrMalformedBoard)
		})
	}
}

func TestDecodeWrongSlotCount(t *testing.T) {
	b := NewDefaultBoard()
	b.Users[5].Slots = b.Users[5].Slots[:9]
	data, err := json.Marshal(b)
	require.NoError(t, err)

	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrMalformedBoard)
}
