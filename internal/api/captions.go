package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

type CaptionsHandler struct {
	captions *Broadcaster
}

func NewCaptionsHandler(captions *Broadcaster) *CaptionsHandler {
	return &CaptionsHandler{captions: captions}
}

// StreamCaptions opens an SSE connection and pushes live captions as they
// complete.
func (h *CaptionsHandler) StreamCaptions(w http.ResponseWriter, r *http.Request) {
	if h.captions == nil {
		WriteError(w, http.StatusServiceUnavailable, "caption streaming not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Replay missed captions if the client reconnects with Last-Event-ID.
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		for _, ev := range h.captions.ReplaySince(lastEventID) {
			fmt.Fprintf(w, "id: %s\nevent: caption\ndata: %s\n\n", ev.ID, ev.Data)
		}
		flusher.Flush()
	}

	ch, cancel := h.captions.Subscribe()
	defer cancel()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Msg("caption stream client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("caption stream client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "id: %s\nevent: caption\ndata: %s\n\n", ev.ID, ev.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// Routes registers caption routes on the given router.
func (h *CaptionsHandler) Routes(r chi.Router) {
	r.Get("/api/v1/captions/stream", h.StreamCaptions)
}
