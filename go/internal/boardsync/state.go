package boardsync

import (
	"fmt"
	"time"

	"github.com/mcdev12/reelboard/go/internal/models"
)

// State is the lifecycle state of a Syncer.
type State int

const (
	// StateUninitialized: started (or not) but no snapshot seen yet.
	StateUninitialized State = iota
	// StateSyncing: subscription live and mirror populated.
	StateSyncing
	// StateDisconnected: the subscription failed. The mirror keeps serving
	// local mutations but no remote snapshot will reach it again.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSyncing:
		return "syncing"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, known := range []State{StateUninitialized, StateSyncing, StateDisconnected} {
		if string(text) == known.String() {
			*s = known
			return nil
		}
	}
	return fmt.Errorf("unknown sync state %q", text)
}

// SnapshotPolicy decides how an inbound snapshot combines with the mirror.
type SnapshotPolicy int

const (
	// OverwriteOnSnapshot replaces the mirror with every inbound snapshot,
	// discarding any optimistic change the snapshot does not contain.
	// Concurrent whole-document writers can therefore lose updates.
	OverwriteOnSnapshot SnapshotPolicy = iota
)

func (p SnapshotPolicy) String() string {
	if p == OverwriteOnSnapshot {
		return "overwrite"
	}
	return "unknown"
}

// apply returns the board that becomes the mirror after a snapshot.
func (p SnapshotPolicy) apply(current, incoming *models.Board) *models.Board {
	// Overwrite is the only policy: no merge with pending local changes.
	return incoming
}

// Status is a point-in-time view of the syncer's counters.
type Status struct {
	State            State     `json:"state"`
	Saving           bool      `json:"saving"`
	Revision         uint64    `json:"revision"`
	SnapshotsApplied int64     `json:"snapshots_applied"`
	Reseeds          int64     `json:"reseeds"`
	WritesSucceeded  int64     `json:"writes_succeeded"`
	WritesFailed     int64     `json:"writes_failed"`
	LastSnapshotAt   time.Time `json:"last_snapshot_at,omitzero"`
	LastWriteAt      time.Time `json:"last_write_at,omitzero"`
	// LastWriteError is cleared by the next successful write.
	LastWriteError        string `json:"last_write_error,omitempty"`
	LastSubscriptionError string `json:"last_subscription_error,omitempty"`
}
