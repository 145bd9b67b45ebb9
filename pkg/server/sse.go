package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"spai-hq/gatekeeper/pkg/agent"
)

// heartbeatInterval keeps idle SSE streams alive through proxies.
const heartbeatInterval = 25 * time.Second

// handleSignals streams UI signals to one tab over server-sent events.
// Mounted outside the timeout middleware so the stream can live as long
// as the tab does.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	tab, err := strconv.Atoi(r.URL.Query().Get("tab"))
	if err != nil || tab <= 0 {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "tab query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, agent.CodeInternal, "streaming unsupported")
		return
	}

	// Subscribe before the headers go out so a signal sent right after
	// the client sees 200 cannot race the registration.
	ch, cancel := s.hub.Subscribe(tab)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, ": connected tab=%d\n\n", tab)
	flusher.Flush()

	s.logger.Debug("signal stream opened", "tab", tab)
	defer s.logger.Debug("signal stream closed", "tab", tab)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case sig, open := <-ch:
			if !open {
				// Replaced by a newer stream for the same tab.
				return
			}
			data, err := json.Marshal(sig)
			if err != nil {
				s.logger.Warn("signal marshal failed", "tab", tab, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: signal\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
