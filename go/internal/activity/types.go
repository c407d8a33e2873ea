package activity

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/reelboard/go/internal/models"
)

// Type names what happened on the board.
type Type string

const (
	TypeSlotSaved     Type = "SlotSaved"
	TypeSlotCleared   Type = "SlotCleared"
	TypeVoteToggled   Type = "VoteToggled"
	TypeMemberRenamed Type = "MemberRenamed"
)

// Activity is one accepted change to the board, published after the local
// mirror has been updated.
type Activity struct {
	ID         uuid.UUID           `json:"id"`
	Type       Type                `json:"type"`
	MemberID   int                 `json:"member_id"`
	MemberName string              `json:"member_name"`
	SlotID     *int                `json:"slot_id,omitempty"`
	Title      string              `json:"title,omitempty"`
	ActorID    int                 `json:"actor_id"`
	Reaction   models.ReactionKind `json:"reaction,omitempty"`
	Added      bool                `json:"added,omitempty"`
	At         time.Time           `json:"at"`
}

// New stamps a fresh activity with an id and time.
func New(t Type, at time.Time) Activity {
	return Activity{ID: uuid.New(), Type: t, At: at.UTC()}
}
