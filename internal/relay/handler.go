package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const heartbeatInterval = 15 * time.Second

// SSEHandler returns an http.HandlerFunc that streams UI events as SSE.
// Clients may filter by handler name via ?events=name1,name2.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var filter map[string]bool
		if q := r.URL.Query().Get("events"); q != "" {
			filter = make(map[string]bool)
			for _, name := range strings.Split(q, ",") {
				if name = strings.TrimSpace(name); name != "" {
					filter[name] = true
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.Name] {
					continue
				}
				data, err := json.Marshal(evt)
				if err != nil {
					slog.Warn("relay event encode failed", "event", evt.Name, "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, data)
				flusher.Flush()
			}
		}
	}
}
