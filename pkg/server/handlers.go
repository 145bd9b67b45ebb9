package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"spai-hq/gatekeeper/pkg/agent"
	"spai-hq/gatekeeper/pkg/appeal"
	"spai-hq/gatekeeper/pkg/pipeline"
	"spai-hq/gatekeeper/pkg/settings"
)

// TabHeader carries the originating tab's identifier on surface requests.
const TabHeader = "X-Gatekeeper-Tab"

const (
	msgSessionInvalid = "Session invalid. Reload and try again."
	msgAppealError    = "Error evaluating appeal."

	// defaultGrantMinutes applies when an allow request omits a duration;
	// maxGrantMinutes caps what any single grant can ask for.
	defaultGrantMinutes = 20
	maxGrantMinutes     = 30
)

// tabFromRequest reads the tab id from the header, or 0 when absent.
func tabFromRequest(r *http.Request) int {
	raw := r.Header.Get(TabHeader)
	if raw == "" {
		return 0
	}
	tab, err := strconv.Atoi(raw)
	if err != nil || tab <= 0 {
		return 0
	}
	return tab
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// handleCapture runs a page capture through the evaluation pipeline.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	tab := tabFromRequest(r)
	if tab == 0 {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "missing or invalid "+TabHeader+" header")
		return
	}

	var capture pipeline.Capture
	if err := json.NewDecoder(r.Body).Decode(&capture); err != nil {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "invalid capture body")
		return
	}
	if capture.URL == "" {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "capture url is required")
		return
	}
	if capture.Timestamp == 0 {
		capture.Timestamp = time.Now().UnixMilli()
	}

	s.captures.put(tab, capture)
	if host := hostnameOf(capture.URL); host != "" {
		s.hub.SetTabHost(tab, host)
	}

	ac := &agent.Context{TabID: tab}
	result, err := s.pipeline.Run(r.Context(), ac, capture)
	if err != nil {
		writeError(w, http.StatusInternalServerError, agent.CodeInternal, err.Error())
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]any{"evaluated": false})
		return
	}

	body := map[string]any{
		"evaluated": true,
		"decision":  result.Decision,
		"features":  result.Features,
	}
	if result.Enforcement != nil {
		body["enforcement"] = result.Enforcement
	}
	if result.EnforceErr != nil {
		body["enforceError"] = result.EnforceErr
	}
	writeJSON(w, http.StatusOK, body)
}

// handleLastCapture returns the most recent capture a tab reported.
func (s *Server) handleLastCapture(w http.ResponseWriter, r *http.Request) {
	tab, err := strconv.Atoi(r.URL.Query().Get("tab"))
	if err != nil || tab <= 0 {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "tab query parameter is required")
		return
	}
	capture, ok := s.captures.get(tab)
	if !ok {
		writeError(w, http.StatusNotFound, agent.CodeNotFound, "no capture recorded for tab")
		return
	}
	writeJSON(w, http.StatusOK, capture)
}

// handleGetSettings returns the current settings snapshot.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	snap, err := s.settings.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, agent.CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// settingsPatch carries a partial settings update. Nil fields keep their
// current value.
type settingsPatch struct {
	Schedule          *settings.WeeklySchedule `json:"schedule"`
	WhitelistPatterns *[]string                `json:"whitelistPatterns"`
	BlacklistPatterns *[]string                `json:"blacklistPatterns"`
}

// handlePatchSettings merges a partial update over the current settings.
// Strict mode refuses the write with 423 Locked.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "invalid settings body")
		return
	}

	updated, err := s.settings.Update(r.Context(), func(cur settings.Settings) settings.Settings {
		if patch.Schedule != nil {
			cur.Schedule = *patch.Schedule
		}
		if patch.WhitelistPatterns != nil {
			cur.WhitelistPatterns = *patch.WhitelistPatterns
		}
		if patch.BlacklistPatterns != nil {
			cur.BlacklistPatterns = *patch.BlacklistPatterns
		}
		return cur
	})
	if err != nil {
		var pe *settings.PatternError
		switch {
		case errors.Is(err, settings.ErrLocked):
			writeError(w, http.StatusLocked, agent.CodeBadInput, "settings are locked by strict mode")
		case errors.As(err, &pe):
			writeError(w, http.StatusBadRequest, agent.CodeBadInput, pe.Error())
		default:
			writeError(w, http.StatusInternalServerError, agent.CodeInternal, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// strictRequest is the body of POST /v1/settings/strict.
type strictRequest struct {
	Days  int `json:"days"`
	Hours int `json:"hours"`
}

// handleStrictMode enables the strict-mode time lock and schedules its
// expiry callback.
func (s *Server) handleStrictMode(w http.ResponseWriter, r *http.Request) {
	var req strictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "invalid strict-mode body")
		return
	}

	updated, err := s.settings.EnableStrictMode(r.Context(), req.Days, req.Hours)
	if err != nil {
		if errors.Is(err, settings.ErrLocked) {
			writeError(w, http.StatusLocked, agent.CodeBadInput, "settings are locked by strict mode")
			return
		}
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, err.Error())
		return
	}
	if updated.StrictMode.ExpiresAt != nil {
		at := time.UnixMilli(*updated.StrictMode.ExpiresAt)
		s.state.ScheduleStrictExpiry(at, s.onStrictExpiry)
	}
	writeJSON(w, http.StatusOK, updated)
}

// appealEvaluateRequest is the body of POST /v1/appeal/evaluate.
type appealEvaluateRequest struct {
	URL          string        `json:"url"`
	Title        string        `json:"title"`
	Conversation []appeal.Turn `json:"conversation"`
}

// handleAppealEvaluate runs one appeal conversation turn through the
// arbiter. A missing or mismatched session never reaches the arbiter.
func (s *Server) handleAppealEvaluate(w http.ResponseWriter, r *http.Request) {
	tab := tabFromRequest(r)

	var req appealEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "invalid appeal body")
		return
	}

	host := hostnameOf(req.URL)
	if tab == 0 || host == "" || !s.state.ValidateAppealSession(tab, host) {
		writeJSON(w, http.StatusOK, appeal.Verdict{Assistant: msgSessionInvalid})
		return
	}

	verdict, err := s.arbiter.Evaluate(r.Context(), req.Conversation, appeal.PageContext{URL: req.URL, Title: req.Title})
	if err != nil {
		s.logger.Warn("appeal evaluation failed", "tab", tab, "error", err)
		writeJSON(w, http.StatusOK, appeal.Verdict{Assistant: msgAppealError})
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// appealAllowRequest is the body of POST /v1/appeal/allow.
type appealAllowRequest struct {
	URL     string `json:"url"`
	Minutes int    `json:"minutes"`
}

// handleAppealAllow converts a granted appeal into a temporary allow. A
// valid appeal session for the tab and host is the sole authorization.
func (s *Server) handleAppealAllow(w http.ResponseWriter, r *http.Request) {
	tab := tabFromRequest(r)

	var req appealAllowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "invalid allow body")
		return
	}

	host := hostnameOf(req.URL)
	if tab == 0 || host == "" || !s.state.ValidateAppealSession(tab, host) {
		writeError(w, http.StatusForbidden, agent.CodeBadInput, msgSessionInvalid)
		return
	}

	// Out-of-range requests get the default, not a proportional grant: a
	// zero or negative duration means the surface sent no usable value.
	minutes := req.Minutes
	if minutes <= 0 {
		minutes = defaultGrantMinutes
	}
	if minutes > maxGrantMinutes {
		minutes = maxGrantMinutes
	}
	expiresAt := s.state.AddTemporaryAllow(host, minutes)
	s.state.ClearAppealSession(tab)

	if err := s.hub.SignalTab(tab, pipeline.Signal{Type: pipeline.SignalCloseBlockModal}); err != nil {
		s.logger.Debug("close signal undeliverable", "tab", tab, "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordGrant()
		s.metrics.UpdateActiveAllows(len(s.state.ActiveAllows()))
		s.metrics.UpdateActiveSessions(len(s.state.Sessions()))
	}

	s.logger.Info("temporary allow granted", "host", host, "tab", tab, "minutes", minutes)
	writeJSON(w, http.StatusOK, map[string]any{
		"hostname":  host,
		"expiresAt": expiresAt.UnixMilli(),
	})
}

// handleAppealClose dismisses a tab's appeal without a grant.
func (s *Server) handleAppealClose(w http.ResponseWriter, r *http.Request) {
	tab := tabFromRequest(r)
	if tab == 0 {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "missing or invalid "+TabHeader+" header")
		return
	}

	s.state.ClearAppealSession(tab)
	if s.metrics != nil {
		s.metrics.UpdateActiveSessions(len(s.state.Sessions()))
	}
	if err := s.hub.SignalTab(tab, pipeline.Signal{Type: pipeline.SignalCloseBlockModal}); err != nil {
		s.logger.Debug("close signal undeliverable", "tab", tab, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": true})
}

// agentInvokeRequest is the body of POST /v1/agents/{name}.
type agentInvokeRequest struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// handleAgentInvoke dispatches a raw request to a registered agent.
func (s *Server) handleAgentInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req agentInvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, agent.CodeBadInput, "invalid invoke body")
		return
	}
	if req.Kind == "" {
		req.Kind = "invoke"
	}

	ac := &agent.Context{TabID: tabFromRequest(r)}
	resp := s.registry.Invoke(r.Context(), name, ac, &agent.Request{Kind: req.Kind, Payload: req.Payload})
	writeEnvelope(w, statusForEnvelope(resp), resp)
}

func statusForEnvelope(resp *agent.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch resp.Error.Code {
	case agent.CodeNotFound:
		return http.StatusNotFound
	case agent.CodeLLMError:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// handleState reports the ephemeral runtime state for diagnostics.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"temporaryAllows": s.state.ActiveAllows(),
		"appealSessions":  s.state.Sessions(),
		"agents":          s.registry.Names(),
	})
}

// handleHealth is the liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
