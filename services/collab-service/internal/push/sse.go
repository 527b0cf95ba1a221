package push

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/identity"
)

// SSEHandler serves the long-lived push stream. One-way server-to-client;
// the client reconnects on its own and recovers state from the inbox listing.
type SSEHandler struct {
	registry *Registry
	logger   *slog.Logger
}

func NewSSEHandler(registry *Registry, logger *slog.Logger) *SSEHandler {
	return &SSEHandler{registry: registry, logger: logger}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := h.registry.Connect(ident.UserID)
	defer h.registry.Disconnect(stream)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stream.Done():
			return
		case evt := <-stream.Events():
			if err := writeSSE(w, evt); err != nil {
				h.logger.Debug("live stream write failed", "user_id", ident.UserID, "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt Event) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, data)
	return err
}
