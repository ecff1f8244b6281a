package api

import (
	"net/http"
	"time"
)

// HealthCheck probes one dependency; nil error means healthy.
type HealthCheck func() error

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	SessionState  string            `json:"session_state"`
	Checks        map[string]string `json:"checks,omitempty"`
}

type HealthHandler struct {
	status    StatusSource
	checks    map[string]HealthCheck
	version   string
	startTime time.Time
}

func NewHealthHandler(status StatusSource, checks map[string]HealthCheck, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		status:    status,
		checks:    checks,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.status != nil {
		resp.SessionState = string(h.status.Status().State)
	}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// SessionHandler reports the full session snapshot: state, models, segment
// counters, and queue depth.
type SessionHandler struct {
	status StatusSource
}

func NewSessionHandler(status StatusSource) *SessionHandler {
	return &SessionHandler{status: status}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		WriteError(w, http.StatusServiceUnavailable, "no active session")
		return
	}
	WriteJSON(w, http.StatusOK, h.status.Status())
}
