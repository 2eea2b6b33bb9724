package api

import (
	"fmt"
	"net/http"

	"github.com/getsimpletool/mcpo-simple-server/internal/mcpserver"
	"github.com/getsimpletool/mcpo-simple-server/internal/userstore"
)

// ServerInfo is the HTTP shape of one server instance.
type ServerInfo struct {
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	PID           *int     `json:"pid"`
	UptimeSeconds int      `json:"uptime_seconds"`
	Tools         []string `json:"tools"`
	ToolCount     int      `json:"tool_count"`
	Type          string   `json:"type"`
	LastError     string   `json:"last_error,omitempty"`
}

func toServerInfo(info mcpserver.InstanceInfo) ServerInfo {
	out := ServerInfo{
		Name:          info.Key.Name,
		Status:        info.Status.String(),
		UptimeSeconds: info.Uptime(),
		Tools:         []string{},
		ToolCount:     len(info.Tools),
		Type:          "private",
		LastError:     info.LastError,
	}
	if info.PID > 0 {
		pid := info.PID
		out.PID = &pid
	}
	for _, tool := range info.Tools {
		out.Tools = append(out.Tools, tool.Name)
	}
	return out
}

// handleAddServer registers and starts a new server. The body uses the
// common MCP config.json format and must contain exactly one entry.
func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	var body struct {
		McpServers map[string]userstore.ServerSpec `json:"mcpServers"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.McpServers == nil {
		writeDetail(w, http.StatusBadRequest, "Invalid mcpserver configuration format: missing 'mcpServers' key")
		return
	}
	if len(body.McpServers) != 1 {
		writeDetail(w, http.StatusBadRequest, "Exactly one mcpserver must be provided")
		return
	}

	for name, spec := range body.McpServers {
		info, err := s.ctrl.Add(r.Context(), username, name, spec)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toServerInfo(info))
	}
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	infos := s.ctrl.List(username)
	out := make([]ServerInfo, len(infos))
	for i, info := range infos {
		out[i] = toServerInfo(info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListAllServers(w http.ResponseWriter, r *http.Request) {
	infos := s.ctrl.ListAll()
	out := make([]map[string]any, len(infos))
	for i, info := range infos {
		si := toServerInfo(info)
		out[i] = map[string]any{
			"user":           info.Key.Username,
			"name":           si.Name,
			"status":         si.Status,
			"pid":            si.PID,
			"uptime_seconds": si.UptimeSeconds,
			"tool_count":     si.ToolCount,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleServersConfig returns the caller's persisted specs in config.json
// format.
func (s *Server) handleServersConfig(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	cfg, err := s.users.Get(r.Context(), username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}

	servers := cfg.Public().McpServers
	if servers == nil {
		servers = map[string]userstore.ServerSpec{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mcpServers": servers})
}

// handleGetServer returns the caller's public document narrowed to one
// server entry.
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	cfg, err := s.users.Get(r.Context(), username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	spec, exists := cfg.McpServers[name]
	if !exists {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("No mcpserver %q configured", name))
		return
	}

	public := cfg.Public()
	public.McpServers = map[string]userstore.ServerSpec{name: spec.Clone()}
	writeJSON(w, http.StatusOK, public)
}

func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	info, err := s.ctrl.Status(username, r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}

	si := toServerInfo(info)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         si.Status,
		"pid":            si.PID,
		"uptime_seconds": si.UptimeSeconds,
		"tool_count":     si.ToolCount,
	})
}

func (s *Server) handleStartServer(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	info, err := s.ctrl.Start(r.Context(), username, r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toServerInfo(info))
}

func (s *Server) handleStopServer(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	info, err := s.ctrl.Stop(r.Context(), username, r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toServerInfo(info))
}

func (s *Server) handleRestartServer(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	info, err := s.ctrl.Restart(r.Context(), username, r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toServerInfo(info))
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	if err := s.ctrl.Delete(r.Context(), username, r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Server-scoped environment ──────────────────────────────────────

func (s *Server) handlePutServerEnv(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	var body struct {
		Env map[string]string `json:"env"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Env == nil {
		writeDetail(w, http.StatusBadRequest, "Missing 'env' key")
		return
	}

	_, err := s.ctrl.UpdateEnv(r.Context(), username, r.PathValue("name"), func(env map[string]string) {
		for k := range env {
			delete(env, k)
		}
		for k, v := range body.Env {
			env[k] = v
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePutServerEnvKey sets one variable and returns the updated public
// document so clients can confirm the write without a second read.
func (s *Server) handlePutServerEnvKey(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	key := r.PathValue("key")
	cfg, err := s.ctrl.UpdateEnv(r.Context(), username, r.PathValue("name"), func(env map[string]string) {
		env[key] = body.Value
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Public())
}

func (s *Server) handleDeleteServerEnv(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	_, err := s.ctrl.UpdateEnv(r.Context(), username, r.PathValue("name"), func(env map[string]string) {
		for k := range env {
			delete(env, k)
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteServerEnvKey(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	key := r.PathValue("key")
	_, err := s.ctrl.UpdateEnv(r.Context(), username, r.PathValue("name"), func(env map[string]string) {
		delete(env, key)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
