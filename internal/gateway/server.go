// Package gateway exposes the agent over HTTP: the dashboard API, the
// WhatsApp webhook endpoint, and the embedded web UI. Handlers stay
// thin — decode, validate, hand off to the runtime or store, encode.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/NovaClaw/NovaClaw/internal/agent"
	"github.com/NovaClaw/NovaClaw/internal/state"
	"github.com/NovaClaw/NovaClaw/internal/whatsapp"
	webassets "github.com/NovaClaw/NovaClaw/web"
)

// Server wires the HTTP surface to the runtime and store.
type Server struct {
	store       state.Store
	runtime     *agent.Runtime
	verifyToken string
	authToken   string
}

// New creates a Server. verifyToken guards the webhook handshake;
// authToken, when non-empty, guards the mutating dashboard endpoints.
func New(store state.Store, runtime *agent.Runtime, verifyToken, authToken string) *Server {
	return &Server{
		store:       store,
		runtime:     runtime,
		verifyToken: verifyToken,
		authToken:   authToken,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/api/v1/persona", s.handlePersona)
	mux.HandleFunc("/api/v1/groups", s.handleGroups)
	mux.HandleFunc("/api/v1/messages", s.handleMessages)
	mux.HandleFunc("/webhook", s.handleWebhook)

	mux.Handle("/", http.FileServer(http.FS(webassets.Files)))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// authorized checks the bearer token on mutating dashboard endpoints.
// An empty configured token disables the check.
func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return token == s.authToken
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) handlePersona(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var patch state.PersonaPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	persona, err := s.store.UpdatePersona(patch)
	if err != nil {
		var ve *state.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, persona)
}

type groupRequest struct {
	GroupID     string `json:"groupId"`
	InviteCode  string `json:"inviteCode"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DryRun      bool   `json:"dryRun"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.GetState().Groups)

	case http.MethodPost:
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var body groupRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if body.GroupID == "" && body.InviteCode == "" {
			writeError(w, http.StatusBadRequest, "groupId or inviteCode is required")
			return
		}

		var req agent.JoinRequest
		switch {
		case body.DryRun:
			id := body.GroupID
			if id == "" {
				id = body.InviteCode
			}
			req = agent.DryRunJoin{ID: id, Name: body.Name, Description: body.Description}
		case body.InviteCode != "":
			req = agent.LiveJoin{InviteCode: body.InviteCode, Name: body.Name, Description: body.Description}
		default:
			req = agent.DirectRegister{GroupID: body.GroupID, Name: body.Name, Description: body.Description}
		}

		group, err := s.runtime.HandleGroupJoin(r.Context(), req)
		if err != nil {
			var apiErr *whatsapp.APIError
			if errors.As(err, &apiErr) {
				writeError(w, http.StatusBadGateway, apiErr.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, group)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type messageRequest struct {
	GroupID string `json:"groupId"`
	Content string `json:"content"`
	DryRun  bool   `json:"dryRun"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.GroupID == "" || body.Content == "" {
		writeError(w, http.StatusBadRequest, "groupId and content are required")
		return
	}

	if body.DryRun {
		msg, err := s.runtime.SimulateSend(body.GroupID, body.Content)
		if err != nil {
			if agent.IsNotFound(err) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "simulated", "message": msg})
		return
	}

	msg, err := s.runtime.HandleManualSend(r.Context(), body.GroupID, body.Content)
	if err != nil {
		switch {
		case agent.IsNotFound(err):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			var apiErr *whatsapp.APIError
			if errors.As(err, &apiErr) {
				writeError(w, http.StatusBadGateway, apiErr.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// Subscription handshake: echo the challenge only when the
		// presented token matches configuration.
		q := r.URL.Query()
		if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken && s.verifyToken != "" {
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, q.Get("hub.challenge"))
			return
		}
		http.Error(w, "Forbidden", http.StatusForbidden)

	case http.MethodPost:
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		s.runtime.HandleInboundEvent(r.Context(), payload)
		// Always ack so the upstream source never redelivers because of
		// a downstream failure.
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// LogRoutes logs the served surface once at startup.
func (s *Server) LogRoutes(addr string) {
	slog.Info("Gateway routes ready", "addr", addr,
		"api", "/api/v1/{state,persona,groups,messages}", "webhook", "/webhook")
}
