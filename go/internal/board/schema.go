package board

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/reelboard/go/internal/models"
)

// ErrMalformedBoard is returned for documents that migration cannot repair:
// no users list, the wrong number of members, or a member with the wrong
// number of slots.
var ErrMalformedBoard = errors.New("malformed board document")

// DefaultNames are the member names a fresh board is seeded with.
var DefaultNames = [models.MemberCount]string{
	"Alex", "Blake", "Casey", "Dana", "Ellis", "Fran", "Grey", "Harper", "Indigo", "Jules",
}

// Palette holds the fixed member colors, indexed by member id.
var Palette = [models.MemberCount]string{
	"#E63946", "#F4A261", "#2A9D8F", "#E9C46A", "#457B9D",
	"#A8DADC", "#6D6875", "#B5838D", "#52B788", "#F77F00",
}

// NewDefaultBoard builds the board written on first access: ten members with
// the default names and colors, each holding ten empty slots.
func NewDefaultBoard() *models.Board {
	b := &models.Board{Users: make([]models.Member, models.MemberCount)}
	for i := range b.Users {
		slots := make([]models.Slot, models.SlotsPerMember)
		for j := range slots {
			slots[j] = models.EmptySlot(j)
		}
		b.Users[i] = models.Member{
			ID:    i,
			Name:  DefaultNames[i],
			Color: Palette[i],
			Slots: slots,
		}
	}
	return b
}

// rawBoard mirrors the stored document loosely enough to tell a missing
// votes structure apart from an empty one.
type rawBoard struct {
	Users *[]rawMember `json:"users"`
}

type rawMember struct {
	ID    int       `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
	Slots []rawSlot `json:"slots"`
}

type rawSlot struct {
	ID          int              `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Genre       models.Genre     `json:"genre"`
	Rating      int              `json:"rating"`
	Votes       map[string][]int `json:"votes"`
}

// Decode parses a stored document and migrates it to the current shape.
func Decode(data []byte) (*models.Board, error) {
	var raw rawBoard
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBoard, err)
	}
	if raw.Users == nil {
		return nil, fmt.Errorf("%w: missing users", ErrMalformedBoard)
	}
	users := *raw.Users
	if len(users) != models.MemberCount {
		return nil, fmt.Errorf("%w: expected %d members, got %d", ErrMalformedBoard, models.MemberCount, len(users))
	}

	b := &models.Board{Users: make([]models.Member, len(users))}
	for i, rm := range users {
		if len(rm.Slots) != models.SlotsPerMember {
			return nil, fmt.Errorf("%w: member %d has %d slots", ErrMalformedBoard, rm.ID, len(rm.Slots))
		}
		slots := make([]models.Slot, len(rm.Slots))
		for j, rs := range rm.Slots {
			slots[j] = models.Slot{
				ID:          rs.ID,
				Title:       rs.Title,
				Description: rs.Description,
				Genre:       rs.Genre,
				Rating:      rs.Rating,
				Votes:       votesFromRaw(rs.Votes),
			}
		}
		b.Users[i] = models.Member{ID: rm.ID, Name: rm.Name, Color: rm.Color, Slots: slots}
	}
	return b, nil
}

// Encode serialises the board in the stored document shape.
func Encode(b *models.Board) ([]byte, error) {
	data, err := json.Marshal(Migrate(b))
	if err != nil {
		return nil, fmt.Errorf("encode board: %w", err)
	}
	return data, nil
}

// Migrate returns a copy of b in which every slot carries all three vote
// kinds. Applying it more than once has no further effect.
func Migrate(b *models.Board) *models.Board {
	out := b.Clone()
	if out == nil {
		return nil
	}
	for i := range out.Users {
		for j := range out.Users[i].Slots {
			v := out.Users[i].Slots[j].Votes
			out.Users[i].Slots[j].Votes = models.Votes{
				WantToWatch: dedupe(v.WantToWatch),
				LoveIt:      dedupe(v.LoveIt),
				SeenIt:      dedupe(v.SeenIt),
			}
		}
	}
	return out
}

func votesFromRaw(raw map[string][]int) models.Votes {
	if raw == nil {
		return models.EmptyVotes()
	}
	return models.Votes{
		WantToWatch: dedupe(raw[string(models.ReactionWantToWatch)]),
		LoveIt:      dedupe(raw[string(models.ReactionLoveIt)]),
		SeenIt:      dedupe(raw[string(models.ReactionSeenIt)]),
	}
}

// dedupe keeps the first occurrence of every id and never returns nil.
func dedupe(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
