package api

import (
	"net/http"
	"strings"

	"github.com/getsimpletool/mcpo-simple-server/internal/auth"
	"github.com/getsimpletool/mcpo-simple-server/internal/logger"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	token, err := s.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	logger.Infof("user %q logged in", body.Username)
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"username": user.Username,
		"group":    user.Group,
		"disabled": user.Disabled,
	})
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.NewPassword) < 8 {
		writeDetail(w, http.StatusBadRequest, "New password must be at least 8 characters")
		return
	}

	user := currentUser(r)
	if !auth.CheckPassword(user.HashedPassword, body.CurrentPassword) {
		writeDetail(w, http.StatusUnauthorized, "Incorrect current password")
		return
	}

	hashed, err := auth.HashPassword(body.NewPassword)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	// Re-read to avoid clobbering concurrent document updates.
	cfg, err := s.users.Get(r.Context(), user.Username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	cfg.HashedPassword = hashed
	if err := s.users.Save(r.Context(), cfg); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	logger.Infof("user %q changed password", user.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r).Public())
}

// ── User-scoped environment ────────────────────────────────────────

func (s *Server) updateUserEnv(w http.ResponseWriter, r *http.Request, status int, fn func(env map[string]string)) {
	user := currentUser(r)

	cfg, err := s.users.Get(r.Context(), user.Username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if cfg.Env == nil {
		cfg.Env = make(map[string]string)
	}
	fn(cfg.Env)

	if err := s.users.Save(r.Context(), cfg); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to save user config")
		return
	}

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, cfg.Public())
}

func (s *Server) handlePutUserEnv(w http.ResponseWriter, r *http.Request) {
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

	s.updateUserEnv(w, r, http.StatusNoContent, func(env map[string]string) {
		for k := range env {
			delete(env, k)
		}
		for k, v := range body.Env {
			env[k] = v
		}
	})
}

func (s *Server) handlePutUserEnvKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	key := r.PathValue("key")
	s.updateUserEnv(w, r, http.StatusOK, func(env map[string]string) {
		env[key] = body.Value
	})
}

func (s *Server) handleDeleteUserEnv(w http.ResponseWriter, r *http.Request) {
	s.updateUserEnv(w, r, http.StatusNoContent, func(env map[string]string) {
		for k := range env {
			delete(env, k)
		}
	})
}

func (s *Server) handleDeleteUserEnvKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	s.updateUserEnv(w, r, http.StatusNoContent, func(env map[string]string) {
		delete(env, key)
	})
}

// ── API keys ───────────────────────────────────────────────────────

// handleCreateAPIKey mints a key, stores it encrypted, and returns the
// plain text exactly once.
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	plain := auth.GenerateAPIKey()
	encrypted, err := s.auth.Cipher().Encrypt(plain)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to create API Key")
		return
	}

	cfg, err := s.users.Get(r.Context(), user.Username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	cfg.APIKeys = append(cfg.APIKeys, encrypted)
	if err := s.users.Save(r.Context(), cfg); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to create API Key")
		return
	}

	logger.Infof("API key created for user %q", user.Username)
	writeJSON(w, http.StatusOK, map[string]string{
		"api_key": plain,
		"detail":  "API Key created successfully. Store it securely, it won't be shown again.",
	})
}

// handleDeleteAPIKey removes keys matching the given plain-text prefix.
// Clients typically pass the first characters they noted at creation.
func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	prefix := r.PathValue("prefix")

	cfg, err := s.users.Get(r.Context(), user.Username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}

	kept := cfg.APIKeys[:0]
	removed := 0
	for _, enc := range cfg.APIKeys {
		plain, err := s.auth.Cipher().Decrypt(enc)
		if err == nil && strings.HasPrefix(plain, prefix) {
			removed++
			continue
		}
		kept = append(kept, enc)
	}
	if removed == 0 {
		writeDetail(w, http.StatusNotFound, "API Key not found")
		return
	}

	cfg.APIKeys = kept
	if err := s.users.Save(r.Context(), cfg); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to delete API Key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
