package registration_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"delified/internal/auth"

	"github.com/go-chi/chi/v5"
)

var heartbeatInterval = 25 * time.Second

// Stream pushes registration events for one MUN to its organizer over SSE.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	munID := chi.URLParam(r, "munId")
	ctx := r.Context()

	if err := h.RegistrationService.CanWatch(ctx, auth.PrincipalFrom(ctx), munID); err != nil {
		h.fail(w, "Stream", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events := h.Broker.Subscribe(ctx, munID)

	fmt.Fprintf(w, "event: connected\ndata: {\"mun_id\":%q}\n\n", munID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to registration stream for mun %s", munID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Stream closed for mun %s", munID))
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize registration event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Info("SSE", fmt.Sprintf("Client disconnected from registration stream for mun %s", munID))
			return
		}
	}
}
