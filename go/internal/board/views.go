package board

import (
	"fmt"
	"sort"

	"github.com/mcdev12/reelboard/go/internal/models"
)

// DefaultTopPicks is how many picks the top picks strip shows.
const DefaultTopPicks = 3

// SortMode orders the flattened pick list.
type SortMode string

const (
	SortRecent SortMode = "recent"
	SortVotes  SortMode = "votes"
	SortRating SortMode = "rating"
)

// ParseSortMode maps a query value to a SortMode; empty means SortRecent.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case "", SortRecent:
		return SortRecent, nil
	case SortVotes, SortRating:
		return SortMode(s), nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

// Pick is an occupied slot annotated with its owner.
type Pick struct {
	models.Slot
	MemberID    int    `json:"member_id"`
	MemberName  string `json:"member_name"`
	MemberColor string `json:"member_color"`
	SlotIndex   int    `json:"slot_index"`
	TotalVotes  int    `json:"total_votes"`
}

// PickQuery filters and orders AllPicks. Zero values mean no filter and
// SortRecent.
type PickQuery struct {
	Genre    models.Genre
	MemberID *int
	Sort     SortMode
}

// Counts are the board-wide aggregate counters.
type Counts struct {
	Picks     int `json:"picks"`
	Members   int `json:"members"`
	Reactions int `json:"reactions"`
}

// LeaderboardEntry summarises one member's standing.
type LeaderboardEntry struct {
	MemberID          int    `json:"member_id"`
	Name              string `json:"name"`
	Color             string `json:"color"`
	Picks             int    `json:"picks"`
	ReactionsReceived int    `json:"reactions_received"`
}

// SlotView is one entry of a member's own list, occupied or not.
type SlotView struct {
	models.Slot
	Occupied   bool `json:"occupied"`
	TotalVotes int  `json:"total_votes"`
}

// TotalVotes sums the voters across all reaction kinds.
func TotalVotes(s models.Slot) int {
	return s.Votes.Total()
}

// PickCount returns how many of the member's slots are occupied.
func PickCount(m models.Member) int {
	n := 0
	for _, s := range m.Slots {
		if s.Occupied() {
			n++
		}
	}
	return n
}

// flatten lists every occupied slot in member order, then slot order.
func flatten(b *models.Board) []Pick {
	var picks []Pick
	for _, m := range b.Users {
		for i, s := range m.Slots {
			if !s.Occupied() {
				continue
			}
			picks = append(picks, Pick{
				Slot:        s,
				MemberID:    m.ID,
				MemberName:  m.Name,
				MemberColor: m.Color,
				SlotIndex:   i,
				TotalVotes:  TotalVotes(s),
			})
		}
	}
	return picks
}

// AllPicks flattens the occupied slots, applies the filters and sorts. Both
// sorts are stable so ties keep flatten order.
func AllPicks(b *models.Board, q PickQuery) []Pick {
	picks := make([]Pick, 0)
	for _, p := range flatten(b) {
		if q.Genre != models.GenreNone && p.Genre != q.Genre {
			continue
		}
		if q.MemberID != nil && p.MemberID != *q.MemberID {
			continue
		}
		picks = append(picks, p)
	}

	switch q.Sort {
	case SortVotes:
		sort.SliceStable(picks, func(i, j int) bool { return picks[i].TotalVotes > picks[j].TotalVotes })
	case SortRating:
		sort.SliceStable(picks, func(i, j int) bool { return picks[i].Rating > picks[j].Rating })
	}
	return picks
}

// TopPicks returns at most n picks with at least one reaction, most
// reacted first.
func TopPicks(b *models.Board, n int) []Pick {
	top := make([]Pick, 0, n)
	if n <= 0 {
		return top
	}
	for _, p := range flatten(b) {
		if p.TotalVotes > 0 {
			top = append(top, p)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].TotalVotes > top[j].TotalVotes })
	if len(top) > n {
		top = top[:n]
	}
	return top
}

// CountsOf computes the header counters.
func CountsOf(b *models.Board) Counts {
	c := Counts{Members: len(b.Users)}
	for _, m := range b.Users {
		for _, s := range m.Slots {
			if s.Occupied() {
				c.Picks++
			}
			c.Reactions += TotalVotes(s)
		}
	}
	return c
}

// Leaderboard ranks members by reactions received, then by picks. Members
// that tie keep roster order.
func Leaderboard(b *models.Board) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(b.Users))
	for _, m := range b.Users {
		e := LeaderboardEntry{MemberID: m.ID, Name: m.Name, Color: m.Color, Picks: PickCount(m)}
		for _, s := range m.Slots {
			e.ReactionsReceived += TotalVotes(s)
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ReactionsReceived != entries[j].ReactionsReceived {
			return entries[i].ReactionsReceived > entries[j].ReactionsReceived
		}
		return entries[i].Picks > entries[j].Picks
	})
	return entries
}

// MemberList returns all ten slots of one member for the "my list" view.
func MemberList(b *models.Board, memberID int) ([]SlotView, error) {
	m, ok := b.Member(memberID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMemberNotFound, memberID)
	}
	out := make([]SlotView, len(m.Slots))
	for i, s := range m.Slots {
		out[i] = SlotView{Slot: s, Occupied: s.Occupied(), TotalVotes: TotalVotes(s)}
	}
	return out, nil
}
