package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/reelboard/go/internal/activity"
	"github.com/mcdev12/reelboard/go/internal/board"
	"github.com/mcdev12/reelboard/go/internal/boardsync"
	"github.com/mcdev12/reelboard/go/internal/models"
)

// BoardSyncer is the synchronised board the gateway serves.
type BoardSyncer interface {
	Mutator
	Board() *models.Board
	State() boardsync.State
	Saving() bool
	Status() boardsync.Status
	Watch() (<-chan struct{}, func())
}

// MetricsSource exposes activity publishing counters for /api/stats.
type MetricsSource interface {
	Snapshot() activity.MetricsSnapshot
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Counts   board.Counts               `json:"counts"`
	Status   boardsync.Status           `json:"status"`
	Activity *activity.MetricsSnapshot `json:"activity,omitempty"`
}

// CommandResponse is the body of a successful POST /api/commands.
type CommandResponse struct {
	Changed bool          `json:"changed"`
	Board   *models.Board `json:"board"`
}

// StateHandler handles HTTP requests for board state and commands
type StateHandler struct {
	syncer  BoardSyncer
	metrics MetricsSource
}

// NewStateHandler creates a new state handler. metrics may be nil.
func NewStateHandler(syncer BoardSyncer, metrics MetricsSource) *StateHandler {
	return &StateHandler{syncer: syncer, metrics: metrics}
}

// board returns the current board or writes a 503.
func (h *StateHandler) board(w http.ResponseWriter) *models.Board {
	b := h.syncer.Board()
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, "board is not ready")
	}
	return b
}

// HandleGetBoard handles GET /api/board
func (h *StateHandler) HandleGetBoard(w http.ResponseWriter, r *http.Request) {
	b := h.board(w)
	if b == nil {
		return
	}
	writeJSON(w, http.StatusOK, buildSnapshot(b, h.syncer.Saving(), h.syncer.State()))
}

// HandleGetPicks handles GET /api/picks?genre=&member_id=&sort=
func (h *StateHandler) HandleGetPicks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var q board.PickQuery

	if g := query.Get("genre"); g != "" {
		genre := models.Genre(g)
		if !genre.Valid() {
			writeError(w, http.StatusBadRequest, "unknown genre")
			return
		}
		q.Genre = genre
	}
	if m := query.Get("member_id"); m != "" {
		id, err := strconv.Atoi(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid member_id format")
			return
		}
		q.MemberID = &id
	}
	sortMode, err := board.ParseSortMode(query.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.Sort = sortMode

	b := h.board(w)
	if b == nil {
		return
	}
	writeJSON(w, http.StatusOK, board.AllPicks(b, q))
}

// HandleGetTop handles GET /api/top?n=
func (h *StateHandler) HandleGetTop(w http.ResponseWriter, r *http.Request) {
	n := board.DefaultTopPicks
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = v
	}
	b := h.board(w)
	if b == nil {
		return
	}
	writeJSON(w, http.StatusOK, board.TopPicks(b, n))
}

// HandleGetLeaderboard handles GET /api/leaderboard
func (h *StateHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	b := h.board(w)
	if b == nil {
		return
	}
	writeJSON(w, http.StatusOK, board.Leaderboard(b))
}

// HandleGetStats handles GET /api/stats. It answers before the first
// snapshot too, with zero counts.
func (h *StateHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Status: h.syncer.Status()}
	if b := h.syncer.Board(); b != nil {
		resp.Counts = board.CountsOf(b)
	}
	if h.metrics != nil {
		snap := h.metrics.Snapshot()
		resp.Activity = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetMemberSlots handles GET /api/members/{id}/slots
func (h *StateHandler) HandleGetMemberSlots(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member id format")
		return
	}
	b := h.board(w)
	if b == nil {
		return
	}
	slots, err := board.MemberList(b, id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// HandlePostCommand handles POST /api/commands
func (h *StateHandler) HandlePostCommand(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "malformed command: "+err.Error())
		return
	}

	changed, err := Apply(h.syncer, cmd)
	switch {
	case errors.Is(err, boardsync.ErrNotReady), errors.Is(err, boardsync.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case isClientError(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("command", string(cmd.Type)).Msg("failed to apply command")
		writeError(w, http.StatusInternalServerError, "failed to apply command")
		return
	}

	log.Debug().
		Str("command", string(cmd.Type)).
		Str("request_id", cmd.RequestID).
		Bool("changed", changed).
		Msg("command applied")
	writeJSON(w, http.StatusOK, CommandResponse{Changed: changed, Board: h.syncer.Board()})
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/board", h.HandleGetBoard)
	mux.HandleFunc("GET /api/picks", h.HandleGetPicks)
	mux.HandleFunc("GET /api/top", h.HandleGetTop)
	mux.HandleFunc("GET /api/leaderboard", h.HandleGetLeaderboard)
	mux.HandleFunc("GET /api/stats", h.HandleGetStats)
	mux.HandleFunc("GET /api/members/{id}/slots", h.HandleGetMemberSlots)
	mux.HandleFunc("POST /api/commands", h.HandlePostCommand)
}

func snapshotEvent(s BoardSyncer, at time.Time) (*BoardEvent, error) {
	return newEvent(EventTypeBoardSnapshot, at, buildSnapshot(s.Board(), s.Saving(), s.State()))
}
