package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getsimpletool/mcpo-simple-server/internal/auth"
	"github.com/getsimpletool/mcpo-simple-server/internal/logger"
	"github.com/getsimpletool/mcpo-simple-server/internal/userstore"
)

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Group    string `json:"group"`
	Disabled bool   `json:"disabled"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body userRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Password == "" {
		writeDetail(w, http.StatusBadRequest, "Password is required")
		return
	}
	if body.Group == "" {
		body.Group = userstore.GroupUsers
	}

	if _, err := s.users.Get(r.Context(), body.Username); err == nil {
		writeDetail(w, http.StatusConflict, fmt.Sprintf("User %q already exists", body.Username))
		return
	}

	hashed, err := auth.HashPassword(body.Password)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	cfg := &userstore.UserConfig{
		Username:       body.Username,
		HashedPassword: hashed,
		Group:          body.Group,
		Disabled:       body.Disabled,
		Env:            map[string]string{},
		McpServers:     map[string]userstore.ServerSpec{},
	}
	if err := s.users.Save(r.Context(), cfg); err != nil {
		writeDetail(w, http.StatusBadRequest, "Failed to create user: "+err.Error())
		return
	}

	logger.Infof("user %q created (group %s)", body.Username, body.Group)
	writeJSON(w, http.StatusCreated, cfg.Public())
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.users.Get(r.Context(), r.PathValue("username"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg.Public())
}

// handleUpdateUser changes group, disabled flag, or password.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password *string `json:"password"`
		Group    *string `json:"group"`
		Disabled *bool   `json:"disabled"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	cfg, err := s.users.Get(r.Context(), r.PathValue("username"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}

	if body.Password != nil {
		hashed, err := auth.HashPassword(*body.Password)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Failed to update user")
			return
		}
		cfg.HashedPassword = hashed
	}
	if body.Group != nil {
		cfg.Group = *body.Group
	}
	if body.Disabled != nil {
		cfg.Disabled = *body.Disabled
	}

	if err := s.users.Save(r.Context(), cfg); err != nil {
		writeDetail(w, http.StatusBadRequest, "Failed to update user: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg.Public())
}

// handleDeleteUser stops and removes the user's servers, then drops the
// document.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	if _, err := s.users.Get(r.Context(), username); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "User not found")
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, info := range s.ctrl.List(username) {
		if err := s.ctrl.Delete(r.Context(), username, info.Key.Name); err != nil {
			logger.Warnf("failed to delete mcpserver %s while removing user: %v", info.Key, err)
		}
	}

	if err := s.users.Delete(r.Context(), username); err != nil && !errors.Is(err, userstore.ErrNotFound) {
		writeDetail(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	logger.Infof("user %q deleted", username)
	w.WriteHeader(http.StatusNoContent)
}

// ── Logs ───────────────────────────────────────────────────────────

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"logs": logger.GetLogs()})
}

// handleLogStream pushes log entries as server-sent events until the
// client disconnects.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	sub := logger.Subscribe()
	defer sub.Close()

	for {
		select {
		case entry := <-sub.C:
			fmt.Fprintf(w, "data: {\"timestamp\":%q,\"level\":%q,\"message\":%q}\n\n",
				entry.Timestamp, entry.Level, entry.Message)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
