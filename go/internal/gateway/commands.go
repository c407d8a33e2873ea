package gateway

import (
	"errors"
	"fmt"

	"github.com/mcdev12/reelboard/go/internal/board"
	"github.com/mcdev12/reelboard/go/internal/models"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingMember  = errors.New("member_id is required")
	ErrMissingActor   = errors.New("actor_id is required")
)

// CommandType names a board mutation a client can request.
type CommandType string

const (
	CommandEditSlot     CommandType = "editSlot"
	CommandClearSlot    CommandType = "clearSlot"
	CommandToggleVote   CommandType = "toggleVote"
	CommandRenameMember CommandType = "renameMember"
)

// Command is the JSON body of POST /api/commands and of websocket messages.
// For toggleVote MemberID is the owner of the slot and ActorID the voter.
type Command struct {
	Type      CommandType         `json:"type"`
	RequestID string              `json:"request_id,omitempty"`
	MemberID  *int                `json:"member_id,omitempty"`
	SlotID    int                 `json:"slot_id"`
	Slot      board.SlotInput     `json:"slot"`
	Reaction  models.ReactionKind `json:"reaction,omitempty"`
	ActorID   *int                `json:"actor_id,omitempty"`
	Name      string              `json:"name,omitempty"`
}

// Mutator is the write side of the board the gateway drives.
type Mutator interface {
	EditSlot(memberID, slotID int, in board.SlotInput) (bool, error)
	ClearSlot(memberID, slotID int) (bool, error)
	ToggleVote(ownerID, slotID int, kind models.ReactionKind, actorID int) (bool, error)
	RenameMember(memberID int, name string) (bool, error)
}

// Apply runs cmd against m. The bool is false for silent no-ops.
func Apply(m Mutator, cmd Command) (bool, error) {
	switch cmd.Type {
	case CommandEditSlot, CommandClearSlot, CommandToggleVote, CommandRenameMember:
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	if cmd.MemberID == nil {
		return false, ErrMissingMember
	}
	memberID := *cmd.MemberID

	switch cmd.Type {
	case CommandEditSlot:
		return m.EditSlot(memberID, cmd.SlotID, cmd.Slot)
	case CommandClearSlot:
		return m.ClearSlot(memberID, cmd.SlotID)
	case CommandToggleVote:
		if cmd.ActorID == nil {
			return false, ErrMissingActor
		}
		return m.ToggleVote(memberID, cmd.SlotID, cmd.Reaction, *cmd.ActorID)
	default:
		return m.RenameMember(memberID, cmd.Name)
	}
}

// isClientError reports whether err was caused by the request itself.
func isClientError(err error) bool {
	return errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrMissingMember) ||
		errors.Is(err, ErrMissingActor) ||
		errors.Is(err, board.ErrMemberNotFound) ||
		errors.Is(err, board.ErrSlotNotFound) ||
		errors.Is(err, board.ErrUnknownReaction) ||
		errors.Is(err, board.ErrUnknownGenre) ||
		errors.Is(err, board.ErrRatingOutOfRange)
}
