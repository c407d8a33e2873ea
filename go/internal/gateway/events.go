package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/reelboard/go/internal/board"
	"github.com/mcdev12/reelboard/go/internal/boardsync"
	"github.com/mcdev12/reelboard/go/internal/models"
)

// BoardEvent represents the base structure for all events sent to clients
type BoardEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of board event
type EventType string

const (
	EventTypeBoardSnapshot EventType = "BoardSnapshot"
	EventTypeCommandResult EventType = "CommandResult"
)

// SnapshotPayload is everything a client needs to render the board.
type SnapshotPayload struct {
	Board       *models.Board            `json:"board"`
	Counts      board.Counts             `json:"counts"`
	Top         []board.Pick             `json:"top"`
	Leaderboard []board.LeaderboardEntry `json:"leaderboard"`
	Saving      bool                     `json:"saving"`
	State       boardsync.State          `json:"state"`
}

// CommandResultPayload answers a command sent over the websocket.
type CommandResultPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Changed   bool   `json:"changed"`
	Error     string `json:"error,omitempty"`
}

func newEvent(t EventType, at time.Time, payload any) (*BoardEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &BoardEvent{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// buildSnapshot derives the client view from a board.
func buildSnapshot(b *models.Board, saving bool, state boardsync.State) SnapshotPayload {
	return SnapshotPayload{
		Board:       b,
		Counts:      board.CountsOf(b),
		Top:         board.TopPicks(b, board.DefaultTopPicks),
		Leaderboard: board.Leaderboard(b),
		Saving:      saving,
		State:       state,
	}
}
