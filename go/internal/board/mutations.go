package board

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/reelboard/go/internal/models"
)

var (
	ErrMemberNotFound   = errors.New("member not found")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrUnknownReaction  = errors.New("unknown reaction kind")
	ErrUnknownGenre     = errors.New("unknown genre")
	ErrRatingOutOfRange = errors.New("rating out of range")
)

// SlotInput carries the editable fields of a slot.
type SlotInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Genre       models.Genre `json:"genre"`
	Rating      int          `json:"rating"`
}

// Every mutation below is a pure function of the current board and its
// parameters. The returned bool is false when the request was a silent
// no-op, in which case the returned board is the input unchanged.

// EditSlot fills or overwrites a slot. A blank title is a no-op. Title and
// description are trimmed and existing votes are kept.
func EditSlot(b *models.Board, memberID, slotID int, in SlotInput) (*models.Board, bool, error) {
	if _, err := locate(b, memberID, slotID); err != nil {
		return b, false, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return b, false, nil
	}
	if !in.Genre.Valid() {
		return b, false, fmt.Errorf("%w: %q", ErrUnknownGenre, in.Genre)
	}
	if in.Rating < 0 || in.Rating > models.MaxRating {
		return b, false, fmt.Errorf("%w: %d", ErrRatingOutOfRange, in.Rating)
	}

	out := b.Clone()
	slot, _ := locate(out, memberID, slotID)
	slot.Title = title
	slot.Description = strings.TrimSpace(in.Description)
	slot.Genre = in.Genre
	slot.Rating = in.Rating
	return out, true, nil
}

// ClearSlot resets a slot to the canonical empty value, discarding its votes.
func ClearSlot(b *models.Board, memberID, slotID int) (*models.Board, bool, error) {
	if _, err := locate(b, memberID, slotID); err != nil {
		return b, false, err
	}
	out := b.Clone()
	slot, _ := locate(out, memberID, slotID)
	*slot = models.EmptySlot(slot.ID)
	return out, true, nil
}

// ToggleVote adds actorID to the voters of kind on the owner's slot, or
// removes it when already present. Voting on your own slot or on an empty
// slot is a no-op.
func ToggleVote(b *models.Board, ownerID, slotID int, kind models.ReactionKind, actorID int) (*models.Board, bool, error) {
	if _, err := locate(b, ownerID, slotID); err != nil {
		return b, false, err
	}
	if _, ok := b.Member(actorID); !ok {
		return b, false, fmt.Errorf("%w: actor %d", ErrMemberNotFound, actorID)
	}
	if !kind.Valid() {
		return b, false, fmt.Errorf("%w: %q", ErrUnknownReaction, kind)
	}
	if actorID == ownerID {
		return b, false, nil
	}

	out := b.Clone()
	slot, _ := locate(out, ownerID, slotID)
	if !slot.Occupied() {
		return b, false, nil
	}
	slot.Votes = slot.Votes.WithVoters(kind, toggle(slot.Votes.Voters(kind), actorID))
	return out, true, nil
}

// RenameMember replaces a member's display name. A blank name is a no-op.
func RenameMember(b *models.Board, memberID int, name string) (*models.Board, bool, error) {
	if _, ok := b.Member(memberID); !ok {
		return b, false, fmt.Errorf("%w: %d", ErrMemberNotFound, memberID)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return b, false, nil
	}
	out := b.Clone()
	m, _ := out.Member(memberID)
	m.Name = name
	return out, true, nil
}

func locate(b *models.Board, memberID, slotID int) (*models.Slot, error) {
	m, ok := b.Member(memberID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMemberNotFound, memberID)
	}
	if slotID < 0 || slotID >= len(m.Slots) {
		return nil, fmt.Errorf("%w: member %d slot %d", ErrSlotNotFound, memberID, slotID)
	}
	return &m.Slots[slotID], nil
}

func toggle(voters []int, id int) []int {
	out := make([]int, 0, len(voters)+1)
	found := false
	for _, v := range voters {
		if v == id {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, id)
	}
	return out
}
