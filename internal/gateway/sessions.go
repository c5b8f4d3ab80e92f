package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/internal/mission"
	"github.com/flemzord/companion/internal/session"
	"github.com/flemzord/companion/pkg/chat"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type ctxKey struct{}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, kind string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Kind: kind})
}

// writeInferenceError maps an inference failure to a reply: bad input is
// the caller's fault, anything else is a failing upstream.
func writeInferenceError(w http.ResponseWriter, err error) {
	kind := inference.KindOf(err)
	code := http.StatusBadGateway
	switch kind {
	case inference.KindEmptyInput, inference.KindInvalidURL:
		code = http.StatusBadRequest
	case inference.KindCanceled:
		code = 499
	}
	writeError(w, code, err.Error(), kind.String())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

// sessionContext resolves {chat} to its manager or answers 404.
func (g *Gateway) sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "chat")
		m, ok := g.sessions.Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown chat "+name, "")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, m)))
	})
}

func managerFrom(r *http.Request) *session.Manager {
	return r.Context().Value(ctxKey{}).(*session.Manager)
}

func (g *Gateway) states() []session.State {
	out := []session.State{}
	for _, name := range g.sessions.Chats() {
		if m, ok := g.sessions.Get(name); ok {
			out = append(out, m.State())
		}
	}
	return out
}

func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.states())
	}
}

func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, managerFrom(r).State())
	}
}

func (g *Gateway) handleGetHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		turns := managerFrom(r).History()
		if turns == nil {
			turns = []chat.ChatTurn{}
		}
		writeJSON(w, http.StatusOK, turns)
	}
}

func (g *Gateway) handleClearHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := managerFrom(r).ClearHistory(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "status": st})
	}
}

// MessageRequest is the body of POST /api/sessions/{chat}/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is the reply to a sent message.
type MessageResponse struct {
	Reply string `json:"reply"`
}

func (g *Gateway) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		reply, err := managerFrom(r).SendMessage(r.Context(), req.Text)
		if err != nil {
			writeInferenceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Reply: reply})
	}
}

func (g *Gateway) handleConfigure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u session.Update
		if err := decodeBody(r, &u); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		if u.Empty() {
			writeError(w, http.StatusBadRequest, "no setting to change", "")
			return
		}
		m := managerFrom(r)
		st, err := m.Configure(r.Context(), u)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": st, "config": m.Config()})
	}
}

func (g *Gateway) handleListModels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := managerFrom(r)
		refresh := r.URL.Query().Get("refresh")
		if refresh == "1" || strings.EqualFold(refresh, "true") {
			if _, err := m.FetchAvailableModels(r.Context()); err != nil {
				writeInferenceError(w, err)
				return
			}
		}
		st := m.State()
		models := st.Models
		if models == nil {
			models = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": models, "current": st.Config.Model})
	}
}

func (g *Gateway) handleProbe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, managerFrom(r).TestConnection(r.Context()))
	}
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Chat   string `json:"chat,omitempty"`
}

func (g *Gateway) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		name := req.Chat
		if name == "" {
			name = session.ChatMain
		}
		m, ok := g.sessions.Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown chat "+name, "")
			return
		}
		text, err := m.GenerateWithoutHistory(r.Context(), req.Prompt, req.Model)
		if err != nil {
			writeInferenceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"response": text})
	}
}

// MissionRequest is the body of POST /api/missions.
type MissionRequest struct {
	Topic string `json:"topic"`
	Model string `json:"model,omitempty"`

	// Wait runs the mission to completion before replying.
	Wait bool `json:"wait,omitempty"`
}

func (g *Gateway) handleListMissions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.missions == nil {
			writeError(w, http.StatusServiceUnavailable, "missions are not enabled", "")
			return
		}
		writeJSON(w, http.StatusOK, g.missions.List())
	}
}

func (g *Gateway) handleStartMission() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.missions == nil {
			writeError(w, http.StatusServiceUnavailable, "missions are not enabled", "")
			return
		}
		var req MissionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}

		var (
			m   mission.Mission
			err error
		)
		if req.Wait {
			m, err = g.missions.Execute(r.Context(), req.Topic, req.Model)
		} else {
			m, err = g.missions.Start(r.Context(), req.Topic, req.Model)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}

		code := http.StatusAccepted
		if req.Wait {
			code = http.StatusOK
		}
		writeJSON(w, code, m)
	}
}

func (g *Gateway) handleGetMission() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.missions == nil {
			writeError(w, http.StatusServiceUnavailable, "missions are not enabled", "")
			return
		}
		m, err := g.missions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error(), "")
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}
