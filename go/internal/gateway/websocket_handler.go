package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests for board clients
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	syncer            BoardSyncer
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(cm *ConnectionManager, syncer BoardSyncer) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		syncer:            syncer,
	}
}

// HandleBoardConnection handles GET /ws/board?member_id=N. The client acts
// as member N and receives the current board right after the upgrade.
func (h *WebSocketHandler) HandleBoardConnection(w http.ResponseWriter, r *http.Request) {
	memberIDStr := r.URL.Query().Get("member_id")
	if memberIDStr == "" {
		writeError(w, http.StatusBadRequest, "member_id is required")
		return
	}
	memberID, err := strconv.Atoi(memberIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member_id format")
		return
	}

	b := h.syncer.Board()
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, "board is not ready")
		return
	}
	if _, ok := b.Member(memberID); !ok {
		writeError(w, http.StatusBadRequest, "unknown member_id")
		return
	}

	initial := func() (*BoardEvent, error) {
		return snapshotEvent(h.syncer, h.connectionManager.clock.Now())
	}

	// Upgrade writes its own error response on failure.
	if err := h.connectionManager.UpgradeConnection(w, r, memberID, initial); err != nil {
		log.Error().
			Err(err).
			Int("member_id", memberID).
			Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers websocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/board", h.HandleBoardConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
