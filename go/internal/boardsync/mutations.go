package boardsync

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/activity"
	"github.com/mcdev12/reelboard/go/internal/board"
	"github.com/mcdev12/reelboard/go/internal/models"
)

// Every mutation returns (false, nil) for a silent no-op: blank title, blank
// name, self-vote or a vote on an empty slot.

// EditSlot fills or overwrites one of a member's slots.
func (s *Syncer) EditSlot(memberID, slotID int, in board.SlotInput) (bool, error) {
	return s.mutate(
		func(b *models.Board) (*models.Board, bool, error) {
			return board.EditSlot(b, memberID, slotID, in)
		},
		func(prev, next *models.Board) activity.Activity {
			a := s.newActivity(activity.TypeSlotSaved, next, memberID, memberID)
			a.SlotID = &slotID
			a.Title = slotTitle(next, memberID, slotID)
			return a
		},
	)
}

// ClearSlot empties a slot and drops its votes.
func (s *Syncer) ClearSlot(memberID, slotID int) (bool, error) {
	return s.mutate(
		func(b *models.Board) (*models.Board, bool, error) {
			return board.ClearSlot(b, memberID, slotID)
		},
		func(prev, next *models.Board) activity.Activity {
			a := s.newActivity(activity.TypeSlotCleared, next, memberID, memberID)
			a.SlotID = &slotID
			a.Title = slotTitle(prev, memberID, slotID)
			return a
		},
	)
}

// ToggleVote flips actorID's reaction of the given kind on another member's slot.
func (s *Syncer) ToggleVote(ownerID, slotID int, kind models.ReactionKind, actorID int) (bool, error) {
	return s.mutate(
		func(b *models.Board) (*models.Board, bool, error) {
			return board.ToggleVote(b, ownerID, slotID, kind, actorID)
		},
		func(prev, next *models.Board) activity.Activity {
			a := s.newActivity(activity.TypeVoteToggled, next, ownerID, actorID)
			a.SlotID = &slotID
			a.Title = slotTitle(next, ownerID, slotID)
			a.Reaction = kind
			if m, ok := next.Member(ownerID); ok {
				a.Added = slices.Contains(m.Slots[slotID].Votes.Voters(kind), actorID)
			}
			return a
		},
	)
}

// RenameMember changes a member's display name.
func (s *Syncer) RenameMember(memberID int, name string) (bool, error) {
	return s.mutate(
		func(b *models.Board) (*models.Board, bool, error) {
			return board.RenameMember(b, memberID, name)
		},
		func(prev, next *models.Board) activity.Activity {
			return s.newActivity(activity.TypeMemberRenamed, next, memberID, memberID)
		},
	)
}

// mutate runs a read-modify-write against the current mirror, applies the
// result optimistically and queues it for writing.
func (s *Syncer) mutate(
	apply func(*models.Board) (*models.Board, bool, error),
	describe func(prev, next *models.Board) activity.Activity,
) (bool, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false, ErrStopped
	}
	if s.board == nil {
		s.mu.Unlock()
		return false, ErrNotReady
	}

	prev := s.board
	next, changed, err := apply(prev)
	if err != nil || !changed {
		s.mu.Unlock()
		return false, err
	}
	s.board = next
	s.enqueueLocked(next)

	if s.publisher != nil {
		a := describe(prev, next)
		s.bg.Add(1)
		go s.publish(a)
	}
	s.mu.Unlock()

	s.watchers.notify()
	return true, nil
}

func (s *Syncer) publish(a activity.Activity) {
	defer s.bg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, a); err != nil {
		log.Warn().Err(err).Str("type", string(a.Type)).Msg("failed to publish board activity")
	}
}

func (s *Syncer) newActivity(t activity.Type, b *models.Board, memberID, actorID int) activity.Activity {
	a := activity.New(t, s.clock.Now())
	a.MemberID = memberID
	a.ActorID = actorID
	if m, ok := b.Member(memberID); ok {
		a.MemberName = m.Name
	}
	return a
}

func slotTitle(b *models.Board, memberID, slotID int) string {
	m, ok := b.Member(memberID)
	if !ok || slotID < 0 || slotID >= len(m.Slots) {
		return ""
	}
	return m.Slots[slotID].Title
}
