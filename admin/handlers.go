package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/maxpert/statusbridge/publisher"
	"github.com/rs/zerolog/log"
)

// SubscriberState reports whether the bridge has a subscriber
type SubscriberState interface {
	Active() bool
}

// LastRecord returns the most recently relayed status record
type LastRecord interface {
	Last() (publisher.Record, bool)
}

// AdminHandlers serves read-only views of the bridge and relay
type AdminHandlers struct {
	nodeID  uint64
	bridge  SubscriberState
	relay   LastRecord
	started time.Time
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(nodeID uint64, bridge SubscriberState, relay LastRecord) *AdminHandlers {
	return &AdminHandlers{
		nodeID:  nodeID,
		bridge:  bridge,
		relay:   relay,
		started: time.Now(),
	}
}

// handleStatus returns the last relayed record, or 204 before the first one
func (h *AdminHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	rec, ok := h.relay.Last()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"data": rec,
		"time": formatTimestamp(rec.TS),
	})
}

// handleSubscriber reports whether a consumer currently holds the bridge slot
func (h *AdminHandlers) handleSubscriber(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"active": h.bridge.Active(),
	})
}

func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"node_id": h.nodeID,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, map[string]interface{}{
		"error": message,
	})
}

// formatTimestamp converts unix milliseconds to an RFC 3339 string
func formatTimestamp(millis int64) string {
	if millis == 0 {
		return ""
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339Nano)
}
