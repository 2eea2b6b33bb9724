package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsimpletool/mcpo-simple-server/internal/userstore"
)

// ErrUnauthorized is returned for missing, invalid, or expired
// credentials, and for disabled accounts.
var ErrUnauthorized = errors.New("not authenticated")

// Service resolves HTTP credentials to user documents. The authenticated
// identity supplies the username half of every server key.
type Service struct {
	tokens *TokenManager
	cipher *KeyCipher
	users  userstore.Store
}

// NewService wires the token manager and key cipher over the user store.
func NewService(users userstore.Store, jwtSecret, encryptionKey string, tokenTTL time.Duration) (*Service, error) {
	cipher, err := NewKeyCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &Service{
		tokens: NewTokenManager(jwtSecret, tokenTTL),
		cipher: cipher,
		users:  users,
	}, nil
}

// Cipher exposes the API key cipher for key management handlers.
func (s *Service) Cipher() *KeyCipher { return s.cipher }

// Login verifies a password and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	cfg, err := s.users.Get(ctx, username)
	if err != nil || cfg.Disabled || !CheckPassword(cfg.HashedPassword, password) {
		return "", ErrUnauthorized
	}
	return s.tokens.Issue(username)
}

// Authenticate resolves the request's credentials: a bearer JWT, a bearer
// API key, or an X-API-Key header.
func (s *Service) Authenticate(ctx context.Context, r *http.Request) (*userstore.UserConfig, error) {
	credential := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if credential == "" {
		header := r.Header.Get("Authorization")
		if header == "" {
			return nil, ErrUnauthorized
		}
		var ok bool
		credential, ok = strings.CutPrefix(header, "Bearer ")
		if !ok {
			return nil, ErrUnauthorized
		}
		credential = strings.TrimSpace(credential)
	}

	if strings.HasPrefix(credential, APIKeyPrefix) {
		return s.authenticateAPIKey(ctx, credential)
	}
	return s.authenticateToken(ctx, credential)
}

func (s *Service) authenticateToken(ctx context.Context, token string) (*userstore.UserConfig, error) {
	username, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	cfg, err := s.users.Get(ctx, username)
	if err != nil || cfg.Disabled {
		return nil, ErrUnauthorized
	}
	return cfg, nil
}

func (s *Service) authenticateAPIKey(ctx context.Context, presented string) (*userstore.UserConfig, error) {
	usernames, err := s.users.List(ctx)
	if err != nil {
		return nil, ErrUnauthorized
	}
	for _, username := range usernames {
		cfg, err := s.users.Get(ctx, username)
		if err != nil {
			continue
		}
		if !cfg.Disabled && s.cipher.Matches(presented, cfg.APIKeys) {
			return cfg, nil
		}
	}
	return nil, ErrUnauthorized
}
