// Package auth implements the access gate for the Observatory API: bearer
// token issuance and verification, and the configured credential check.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Issuer is the iss claim stamped on every token this service mints.
const Issuer = "observatory"

// TokenConfig holds the signing parameters for issued tokens.
type TokenConfig struct {
	// Secret is the HMAC-SHA256 signing key. Must never be compiled in.
	Secret []byte

	// TTL is the lifetime of an issued token. Default: 1 hour.
	TTL time.Duration
}

// DefaultTokenTTL is used when TokenConfig.TTL is zero.
const DefaultTokenTTL = time.Hour

// TokenService mints and verifies the signed bearer tokens that gate every
// mutating endpoint.
type TokenService struct {
	config TokenConfig
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewTokenService creates a TokenService. A nil clock selects the real clock.
func NewTokenService(config TokenConfig, clock clockwork.Clock, logger *slog.Logger) *TokenService {
	if config.TTL <= 0 {
		config.TTL = DefaultTokenTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		config: config,
		clock:  clock,
		logger: logger,
	}
}

// Issue mints a signed token for the given subject, expiring after the
// configured TTL.
func (s *TokenService) Issue(subject string) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.config.TTL)

	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	s.logger.Info("token issued", "subject", subject, "expires_at", expiresAt)
	return signed, expiresAt, nil
}

// Verification failure modes. The middleware maps these to distinct error
// codes so clients can tell an expired token from a forged one.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Verify parses and validates a signed token and returns its subject.
// Signature, algorithm, issuer, and expiry are all enforced; expiry is
// checked against the service clock.
func (s *TokenService) Verify(tokenString string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)

	var claims jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return s.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
