package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/reelboard/go/internal/models"
)

type fixturePick struct {
	member, slot int
	title        string
	genre        models.Genre
	rating       int
	voters       []int
}

// fixtureBoard fills the given picks and has each listed voter leave a
// loveIt reaction.
func fixtureBoard(t *testing.T, picks []fixturePick) *models.Board {
	t.Helper()
	b := NewDefaultBoard()
	var err error
	for _, p := range picks {
		b, _, err = EditSlot(b, p.member, p.slot, SlotInput{Title: p.title, Genre: p.genre, Rating: p.rating})
		require.NoError(t, err)
		for _, v := range p.voters {
			b, _, err = ToggleVote(b, p.member, p.slot, models.ReactionLoveIt, v)
			require.NoError(t, err)
		}
	}
	return b
}

func titles(picks []Pick) []string {
	out := make([]string, len(picks))
	for i, p := range picks {
		out[i] = p.Title
	}
	return out
}

var viewFixture = []fixturePick{
	{member: 0, slot: 4, title: "Heat", genre: models.GenreThriller, rating: 4, voters: []int{1}},
	{member: 0, slot: 1, title: "Alien", genre: models.GenreSciFi, rating: 0, voters: []int{1, 2, 3}},
	{member: 3, slot: 0, title: "Amelie", genre: models.GenreRomance, rating: 5},
	{member: 5, slot: 2, title: "Arrival", genre: models.GenreSciFi, rating: 5, voters: []int{0}},
	{member: 9, slot: 9, title: "Coco", genre: models.GenreAnimation, rating: 3, voters: []int{0, 1, 2}},
}

func TestTotalVotes(t *testing.T) {
	b := fixtureBoard(t, viewFixture)
	b, _, err := ToggleVote(b, 0, 1, models.ReactionSeenIt, 8)
	require.NoError(t, err)

	assert.Equal(t, 4, TotalVotes(b.Users[0].Slots[1]))
	assert.Equal(t, 0, TotalVotes(b.Users[3].Slots[0]))
}

func TestAllPicksRecentKeepsFlattenOrder(t *testing.T) {
	b := fixtureBoard(t, viewFixture)

	picks := AllPicks(b, PickQuery{})
	assert.Equal(t, []string{"Alien", "Heat", "Amelie", "Arrival", "Coco"}, titles(picks))

	first := picks[0]
	assert.Equal(t, 0, first.MemberID)
	assert.Equal(t, "Alex", first.MemberName)
	assert.Equal(t, Palette[0], first.MemberColor)
	assert.Equal(t, 1, first.SlotIndex)
	assert.Equal(t, 3, first.TotalVotes)
}

func TestAllPicksSortByVotesIsStable(t *testing.T) {
	b := fixtureBoard(t, viewFixture)

	picks := AllPicks(b, PickQuery{Sort: SortVotes})
	assert.Equal(t, []string{"Alien", "Coco", "Heat", "Arrival", "Amelie"}, titles(picks))
	for i := 1; i < len(picks); i++ {
		assert.GreaterOrEqual(t, picks[i-1].TotalVotes, picks[i].TotalVotes)
	}
}

func TestAllPicksSortByRating(t *testing.T) {
	b := fixtureBoard(t, viewFixture)

	picks := AllPicks(b, PickQuery{Sort: SortRating})
	assert.Equal(t, []string{"Amelie", "Arrival", "Heat", "Coco", "Alien"}, titles(picks))
}

func TestAllPicksFilters(t *testing.T) {
	b := fixtureBoard(t, viewFixture)
	member := 0

	assert.Equal(t, []string{"Alien", "Arrival"}, titles(AllPicks(b, PickQuery{Genre: models.GenreSciFi})))
	assert.Equal(t, []string{"Alien", "Heat"}, titles(AllPicks(b, PickQuery{MemberID: &member})))
	assert.Equal(t, []string{"Alien"}, titles(AllPicks(b, PickQuery{Genre: models.GenreSciFi, MemberID: &member})))
	assert.Empty(t, AllPicks(b, PickQuery{Genre: models.GenreHorror}))
	assert.Empty(t, AllPicks(NewDefaultBoard(), PickQuery{Sort: SortVotes}))
}

func TestTopPicks(t *testing.T) {
	b := fixtureBoard(t, viewFixture)

	top := TopPicks(b, DefaultTopPicks)
	assert.Equal(t, []string{"Alien", "Coco", "Heat"}, titles(top))

	all := TopPicks(b, 10)
	assert.Len(t, all, 4, "picks without reactions never rank")
	for _, p := range all {
		assert.Positive(t, p.TotalVotes)
	}

	assert.Empty(t, TopPicks(b, 0))
	assert.Empty(t, TopPicks(NewDefaultBoard(), DefaultTopPicks))
}

func TestCountsOf(t *testing.T) {
	assert.Equal(t, Counts{Picks: 0, Members: 10, Reactions: 0}, CountsOf(NewDefaultBoard()))

	b := fixtureBoard(t, viewFixture)
	assert.Equal(t, Counts{Picks: 5, Members: 10, Reactions: 8}, CountsOf(b))
}

func TestLeaderboard(t *testing.T) {
	b := fixtureBoard(t, viewFixture)

	entries := Leaderboard(b)
	require.Len(t, entries, models.MemberCount)

	assert.Equal(t, 0, entries[0].MemberID)
	assert.Equal(t, 4, entries[0].ReactionsReceived)
	assert.Equal(t, 2, entries[0].Picks)
	assert.Equal(t, 9, entries[1].MemberID)
	assert.Equal(t, 5, entries[2].MemberID)
	assert.Equal(t, 3, entries[3].MemberID, "a pick without reactions outranks no picks")
	assert.Equal(t, 1, entries[4].MemberID)
}

func TestMemberList(t *testing.T) {
	b := fixtureBoard(t, viewFixture)

	slots, err := MemberList(b, 0)
	require.NoError(t, err)
	require.Len(t, slots, models.SlotsPerMember)
	assert.True(t, slots[1].Occupied)
	assert.Equal(t, 3, slots[1].TotalVotes)
	assert.False(t, slots[2].Occupied)
	assert.Equal(t, 2, PickCount(b.Users[0]))

	_, err = MemberList(b, 99)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestParseSortMode(t *testing.T) {
	for in, want := range map[string]SortMode{"": SortRecent, "recent": SortRecent, "votes": SortVotes, "rating": SortRating} {
		got, err := ParseSortMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSortMode("alpha")
	assert.Error(t, err)
}
