package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ariaworks/aria/pkg/models"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
)

// Config configures the authentication service. Aria authenticates
// operators with a single shared admin API key (spec.md §6); the JWT layer
// is optional and, when enabled, issues a short-lived session token after a
// successful key check so the WebSocket chat stream doesn't have to pass the
// raw admin key on every frame.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	APIKey      string
}

// Service validates the admin API key and, optionally, session JWTs minted
// from it.
type Service struct {
	mu     sync.RWMutex
	jwt    *JWTService
	apiKey string
	admin  *models.User
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{apiKey: strings.TrimSpace(cfg.APIKey)}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		service.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	if service.apiKey != "" {
		service.admin = &models.User{ID: "admin", Name: "admin"}
	}
	return service
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey != ""
}

// GenerateJWT issues a signed session token for the admin identity.
func (s *Service) GenerateJWT() (string, error) {
	if s == nil {
		return "", ErrAuthDisabled
	}
	s.mu.RLock()
	jwt, admin := s.jwt, s.admin
	s.mu.RUnlock()
	if jwt == nil || admin == nil {
		return "", ErrAuthDisabled
	}
	return jwt.Generate(admin)
}

// ValidateJWT validates a session token and returns the admin identity.
func (s *Service) ValidateJWT(token string) (*models.User, error) {
	if s == nil {
		return nil, ErrAuthDisabled
	}
	s.mu.RLock()
	jwt := s.jwt
	s.mu.RUnlock()
	if jwt == nil {
		return nil, ErrAuthDisabled
	}
	return jwt.Validate(token)
}

// ValidateAPIKey checks key against the configured admin key using a
// constant-time comparison to avoid leaking timing information about a
// partial match.
func (s *Service) ValidateAPIKey(key string) (*models.User, error) {
	if s == nil {
		return nil, ErrAuthDisabled
	}
	s.mu.RLock()
	apiKey, admin := s.apiKey, s.admin
	s.mu.RUnlock()

	if apiKey == "" {
		return nil, ErrAuthDisabled
	}
	inputKey := strings.TrimSpace(key)
	if subtle.ConstantTimeCompare([]byte(inputKey), []byte(apiKey)) != 1 {
		return nil, ErrInvalidKey
	}
	return admin, nil
}
