// Package userstore persists one configuration document per user: the
// user's credentials, API keys, user-scoped environment, and MCP server
// specs. The in-memory server registry is authoritative for live process
// state; this store is authoritative for configuration only.
package userstore

import (
	"fmt"
	"regexp"
)

// User groups. Members of GroupAdmins may address any user's servers.
const (
	GroupUsers  = "users"
	GroupAdmins = "admins"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)

// ServerSpec is a user-supplied MCP server definition.
type ServerSpec struct {
	Command     string            `json:"command" yaml:"command"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env         map[string]string `json:"env" yaml:"env"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Disabled    bool              `json:"disabled" yaml:"disabled"`
}

// Validate rejects definitions that cannot be launched; a command is
// required.
func (s ServerSpec) Validate() error {
	if s.Command == "" {
		return fmt.Errorf("server spec: command must not be empty")
	}
	return nil
}

// Clone returns a deep copy so callers can mutate safely.
func (s ServerSpec) Clone() ServerSpec {
	out := s
	out.Args = append([]string(nil), s.Args...)
	out.Env = cloneStringMap(s.Env)
	return out
}

// UserConfig is the full per-user document, one per username.
type UserConfig struct {
	Username       string                `json:"username" yaml:"username"`
	HashedPassword string                `json:"hashed_password" yaml:"hashed_password"`
	Group          string                `json:"group" yaml:"group"`
	Disabled       bool                  `json:"disabled" yaml:"disabled"`
	APIKeys        []string              `json:"api_keys" yaml:"api_keys"`
	Env            map[string]string     `json:"env" yaml:"env"`
	McpServers     map[string]ServerSpec `json:"mcpServers" yaml:"mcpServers"`
	Preferences    map[string]any        `json:"preferences" yaml:"preferences"`
}

// Validate checks the document invariants shared by every backend.
func (u *UserConfig) Validate() error {
	if !usernameRegex.MatchString(u.Username) {
		return fmt.Errorf("invalid username %q", u.Username)
	}
	if u.Group != GroupUsers && u.Group != GroupAdmins {
		return fmt.Errorf("invalid group %q for user %q", u.Group, u.Username)
	}
	for name, spec := range u.McpServers {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("mcpServer %q: %w", name, err)
		}
	}
	return nil
}

// IsAdmin reports whether the user belongs to the admin group.
func (u *UserConfig) IsAdmin() bool { return u.Group == GroupAdmins }

// Clone returns a deep copy of the document. Preferences values are
// copied one level deep; nested maps or slices inside them are shared.
func (u *UserConfig) Clone() *UserConfig {
	out := *u
	out.APIKeys = append([]string(nil), u.APIKeys...)
	out.Env = cloneStringMap(u.Env)
	out.McpServers = make(map[string]ServerSpec, len(u.McpServers))
	for name, spec := range u.McpServers {
		out.McpServers[name] = spec.Clone()
	}
	out.Preferences = make(map[string]any, len(u.Preferences))
	for k, v := range u.Preferences {
		out.Preferences[k] = v
	}
	return &out
}

// PublicUserConfig omits credentials and API keys for API responses.
type PublicUserConfig struct {
	Username    string                `json:"username"`
	Group       string                `json:"group"`
	Disabled    bool                  `json:"disabled"`
	Env         map[string]string     `json:"env"`
	McpServers  map[string]ServerSpec `json:"mcpServers"`
	Preferences map[string]any        `json:"preferences"`
}

// Public projects the document into its response shape.
func (u *UserConfig) Public() PublicUserConfig {
	c := u.Clone()
	return PublicUserConfig{
		Username:    c.Username,
		Group:       c.Group,
		Disabled:    c.Disabled,
		Env:         nonNilMap(c.Env),
		McpServers:  c.McpServers,
		Preferences: c.Preferences,
	}
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func nonNilMap(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return in
}
