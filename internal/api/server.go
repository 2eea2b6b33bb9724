// Package api exposes the supervisor over HTTP: server lifecycle and env
// management, tool routing, user and admin management, and log access.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsimpletool/mcpo-simple-server/internal/auth"
	"github.com/getsimpletool/mcpo-simple-server/internal/mcpserver"
	"github.com/getsimpletool/mcpo-simple-server/internal/userstore"
)

// Server routes HTTP requests to the controller and the user store.
type Server struct {
	mux   *http.ServeMux
	ctrl  *mcpserver.Controller
	users userstore.Store
	auth  *auth.Service
}

// NewServer wires the full route table.
func NewServer(ctrl *mcpserver.Controller, users userstore.Store, authService *auth.Service) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		ctrl:  ctrl,
		users: users,
		auth:  authService,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Unauthenticated probes
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/ping", s.handlePing)

	// Session and self-service
	s.mux.HandleFunc("POST /api/v1/user/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/v1/user/me", s.authed(s.handleMe))
	s.mux.HandleFunc("PUT /api/v1/user/password", s.authed(s.handleUpdatePassword))
	s.mux.HandleFunc("GET /api/v1/user/config", s.authed(s.handleUserConfig))
	s.mux.HandleFunc("PUT /api/v1/user/env", s.authed(s.handlePutUserEnv))
	s.mux.HandleFunc("PUT /api/v1/user/env/{key}", s.authed(s.handlePutUserEnvKey))
	s.mux.HandleFunc("DELETE /api/v1/user/env", s.authed(s.handleDeleteUserEnv))
	s.mux.HandleFunc("DELETE /api/v1/user/env/{key}", s.authed(s.handleDeleteUserEnvKey))
	s.mux.HandleFunc("POST /api/v1/user/api-keys", s.authed(s.handleCreateAPIKey))
	s.mux.HandleFunc("DELETE /api/v1/user/api-keys/{prefix}", s.authed(s.handleDeleteAPIKey))

	// MCP server lifecycle and configuration
	s.mux.HandleFunc("POST /api/v1/mcpservers", s.authed(s.handleAddServer))
	s.mux.HandleFunc("GET /api/v1/mcpservers", s.authed(s.handleListServers))
	s.mux.HandleFunc("GET /api/v1/mcpservers/config", s.authed(s.handleServersConfig))
	s.mux.HandleFunc("GET /api/v1/mcpservers/{name}", s.authed(s.handleGetServer))
	s.mux.HandleFunc("GET /api/v1/mcpservers/{name}/status", s.authed(s.handleServerStatus))
	s.mux.HandleFunc("POST /api/v1/mcpservers/{name}/start", s.authed(s.handleStartServer))
	s.mux.HandleFunc("POST /api/v1/mcpservers/{name}/stop", s.authed(s.handleStopServer))
	s.mux.HandleFunc("POST /api/v1/mcpservers/{name}/restart", s.authed(s.handleRestartServer))
	s.mux.HandleFunc("DELETE /api/v1/mcpservers/{name}", s.authed(s.handleDeleteServer))
	s.mux.HandleFunc("PUT /api/v1/mcpservers/{name}/env", s.authed(s.handlePutServerEnv))
	s.mux.HandleFunc("PUT /api/v1/mcpservers/{name}/env/{key}", s.authed(s.handlePutServerEnvKey))
	s.mux.HandleFunc("DELETE /api/v1/mcpservers/{name}/env", s.authed(s.handleDeleteServerEnv))
	s.mux.HandleFunc("DELETE /api/v1/mcpservers/{name}/env/{key}", s.authed(s.handleDeleteServerEnvKey))

	// Tool routing
	s.mux.HandleFunc("POST /api/v1/user/tool/{server}/{tool}", s.authed(s.handleToolCall))
	s.mux.HandleFunc("POST /api/v1/tools/call", s.authed(s.handleToolCallFlat))

	// Administration
	s.mux.HandleFunc("POST /api/v1/admin/user", s.admin(s.handleCreateUser))
	s.mux.HandleFunc("GET /api/v1/admin/user/{username}", s.admin(s.handleGetUser))
	s.mux.HandleFunc("PUT /api/v1/admin/user/{username}", s.admin(s.handleUpdateUser))
	s.mux.HandleFunc("DELETE /api/v1/admin/user/{username}", s.admin(s.handleDeleteUser))
	s.mux.HandleFunc("GET /api/v1/admin/mcpservers", s.admin(s.handleListAllServers))
	s.mux.HandleFunc("GET /api/v1/admin/logs", s.admin(s.handleGetLogs))
	s.mux.HandleFunc("GET /api/v1/admin/logs/stream", s.admin(s.handleLogStream))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "pong")
}

// ── Identity plumbing ──────────────────────────────────────────────

type contextKey int

const userKey contextKey = iota

// authed wraps a handler with credential resolution; the user document
// rides the request context.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r.Context(), r)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

// admin additionally requires membership in the admin group.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		if !currentUser(r).IsAdmin() {
			writeDetail(w, http.StatusForbidden, "Admin privileges required")
			return
		}
		next(w, r)
	})
}

func currentUser(r *http.Request) *userstore.UserConfig {
	return r.Context().Value(userKey).(*userstore.UserConfig)
}

// targetUsername resolves which user's servers the request addresses.
// Admins may act on behalf of any user via the "user" query parameter.
func (s *Server) targetUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := currentUser(r)
	target := r.URL.Query().Get("user")
	if target == "" || target == user.Username {
		return user.Username, true
	}
	if !user.IsAdmin() {
		writeDetail(w, http.StatusForbidden, "Cannot address another user's servers")
		return "", false
	}
	return target, true
}

// ── Response helpers ───────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError translates core error kinds into HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch mcpserver.KindOf(err) {
	case mcpserver.KindBadRequest:
		status = http.StatusBadRequest
	case mcpserver.KindNotFound:
		status = http.StatusNotFound
	case mcpserver.KindServerNotRunning, mcpserver.KindConflict:
		status = http.StatusConflict
	case mcpserver.KindTimeout:
		status = http.StatusGatewayTimeout
	case mcpserver.KindChildGone:
		status = http.StatusBadGateway
	case mcpserver.KindProtocol:
		status = protocolStatus(err)
	case mcpserver.KindSpawn, mcpserver.KindHandshake:
		status = http.StatusInternalServerError
	}
	writeDetail(w, status, err.Error())
}

// protocolStatus maps the child's JSON-RPC code: request-shaped errors are
// the caller's fault, everything else is the child's.
func protocolStatus(err error) int {
	var e *mcpserver.Error
	if errors.As(err, &e) {
		switch e.Code {
		case mcpserver.InvalidRequest, mcpserver.MethodNotFound, mcpserver.InvalidParams:
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
