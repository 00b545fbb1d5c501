package config

import "time"

// AuthConfig configures the single shared admin API key and the optional
// JWT session minted after it is verified, per spec.md §6.
type AuthConfig struct {
	// APIKey is the shared secret operators present as X-API-Key.
	APIKey string `yaml:"api_key"`

	// JWTSecret signs sessions issued after API key verification.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenExpiry is how long a minted JWT session stays valid.
	TokenExpiry time.Duration `yaml:"token_expiry"`
}
