package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/internal/session"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string          `json:"status"` // "ok" or "degraded"
	Sessions []SessionHealth `json:"sessions"`
}

// SessionHealth is the last known connection status of one chat.
type SessionHealth struct {
	Chat   string           `json:"chat"`
	Status inference.Status `json:"status"`
}

// handleHealth returns 200 unless a chat last saw its server as
// disconnected or in error, then 503. Unknown status counts as healthy
// so a freshly started gateway reports ok.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Sessions: []SessionHealth{}}
		for _, name := range g.sessions.Chats() {
			m, ok := g.sessions.Get(name)
			if !ok {
				continue
			}
			st := m.State().Status
			resp.Sessions = append(resp.Sessions, SessionHealth{Chat: name, Status: st})
			if !st.Healthy() {
				resp.Status = "degraded"
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   int64           `json:"uptime_seconds"`
	Sessions []session.State `json:"sessions"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			Uptime:   int64(time.Since(g.startedAt).Seconds()),
			Sessions: g.states(),
		})
	}
}
