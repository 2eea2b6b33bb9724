package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/getsimpletool/mcpo-simple-server/internal/logger"
	"github.com/getsimpletool/mcpo-simple-server/internal/mcpserver"
)

// flatToolDelimiter splits a flat-namespace tool id into (server, tool).
const flatToolDelimiter = "__"

// handleToolCall dispatches the explicit route: the path names the server
// and tool, the body is the arguments object.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}
	s.callTool(w, r, username, r.PathValue("server"), r.PathValue("tool"))
}

// handleToolCallFlat dispatches the implicit route, where a flat tool
// namespace encodes the pair as server__tool in the name query parameter.
func (s *Server) handleToolCallFlat(w http.ResponseWriter, r *http.Request) {
	username, ok := s.targetUsername(w, r)
	if !ok {
		return
	}

	name := r.URL.Query().Get("name")
	server, tool, found := strings.Cut(name, flatToolDelimiter)
	if !found || server == "" || tool == "" {
		writeDetail(w, http.StatusBadRequest,
			fmt.Sprintf("Tool name must use the form server%stool", flatToolDelimiter))
		return
	}
	s.callTool(w, r, username, server, tool)
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request, username, server, tool string) {
	args := map[string]any{}
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeBody(w, r, &args) {
			return
		}
	}

	logger.Infof("tool call %s/%s.%s", username, server, tool)

	result, err := s.ctrl.CallTool(r.Context(), username, server, tool, args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shapeContent(result))
}

// shapeContent flattens an MCP content sequence for HTTP clients: text
// parts whose payload is itself JSON are replaced by the parsed value,
// everything else passes through as-is.
func shapeContent(result *mcpserver.ToolResult) []any {
	out := make([]any, 0, len(result.Content))
	for _, part := range result.Content {
		var text struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(part, &text); err == nil && text.Type == "text" {
			var parsed any
			if err := json.Unmarshal([]byte(text.Text), &parsed); err == nil {
				out = append(out, parsed)
				continue
			}
		}

		var raw any
		if err := json.Unmarshal(part, &raw); err == nil {
			out = append(out, raw)
		}
	}
	return out
}
