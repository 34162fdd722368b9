// Package config loads and validates the Observatory service configuration
// from the environment. Secrets (JWT signing key, credential pair) are never
// compiled in; they must be supplied via environment variables or a .env file.
package config

import "time"

// Config is the root configuration for the API server, populated by
// envconfig from the process environment.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server ServerConfig
	Store  StoreConfig
	Auth   AuthConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// StoreConfig selects and configures the observation store backend.
// The memory driver exists for local development and tests; postgres is the
// production backend.
type StoreConfig struct {
	Driver      string `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres memory"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
}

// AuthConfig holds the access-gate settings: the single configured credential
// pair (a placeholder for a real identity store) and the token parameters.
// PasswordHash is a bcrypt hash of the configured password.
type AuthConfig struct {
	JWTSecret    string        `envconfig:"JWT_SECRET" validate:"required"`
	Username     string        `envconfig:"AUTH_USERNAME" validate:"required"`
	PasswordHash string        `envconfig:"AUTH_PASSWORD_HASH" validate:"required"`
	TokenTTL     time.Duration `envconfig:"TOKEN_TTL" default:"1h"`
}
