package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// watchDocuments streams the workspace listing as server-sent events until the
// client disconnects.
func (rt *Router) watchDocuments(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Warn("watch_stream_unsupported", "request_id", requestIDFromContext(r.Context()), "error", err)
		return
	}

	owner := ownerFromContext(r.Context())
	for listing, err := range rt.services.Watcher.Watch(r.Context(), r.PathValue("workspaceID")) {
		var writeErr error
		if err != nil {
			writeErr = writeEvent(w, "poll_error", map[string]string{"error": err.Error()})
		} else {
			writeErr = writeEvent(w, "listing", ownerListing(listing, owner))
		}
		if writeErr == nil {
			writeErr = rc.Flush()
		}
		if writeErr != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
