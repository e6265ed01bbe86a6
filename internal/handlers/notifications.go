package handlers

import (
	"errors"
	"net/http"
	"time"

	"photo-library/internal/logging"
	"photo-library/internal/streaming"
)

// Notifications streams scanner notifications as Server-Sent Events until
// the client disconnects or the hub closes.
func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the connected comment so clients see every
	// notification published after it.
	sub := h.hub.Subscribe()
	defer sub.Close()

	ew, err := streaming.NewEventWriter(r.Context(), w, streaming.DefaultConfig())
	if err != nil {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			err = ew.Comment("ping")
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			err = ew.JSON(string(n.Type), n)
		}
		if err != nil {
			if !errors.Is(err, streaming.ErrClientGone) {
				stats := ew.Stats()
				logging.Warn("Notification stream ended after %d events in %v: %v", stats.Events, stats.Duration, err)
			}
			return
		}
	}
}
