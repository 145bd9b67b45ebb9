package server

import (
	"encoding/json"
	"net/http"

	"spai-hq/gatekeeper/pkg/agent"
)

// writeJSON writes v wrapped in the success envelope.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(agent.OKResponse(v))
}

// writeError writes a failure envelope.
func writeError(w http.ResponseWriter, status int, code agent.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(agent.ErrResponse(code, message))
}

// writeEnvelope writes an agent response envelope as-is.
func writeEnvelope(w http.ResponseWriter, status int, resp *agent.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
