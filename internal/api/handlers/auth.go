package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"observatory/internal/auth"
	"observatory/internal/core"
	"observatory/internal/types"
)

// TokenIssuer mints bearer tokens for authenticated subjects. Satisfied by
// auth.TokenService.
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
}

// LoginRequest is the request body for POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthHandler serves the login endpoint.
type AuthHandler struct {
	creds  auth.Credentials
	issuer TokenIssuer
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler with the provided dependencies.
func NewAuthHandler(creds auth.Credentials, issuer TokenIssuer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		creds:  creds,
		issuer: issuer,
		logger: logger,
	}
}

// RegisterRoutes mounts auth routes on the provided chi.Router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
	})
}

// Login handles POST /v1/auth/login: exchanges the configured credential
// pair for a signed bearer token. Failures return a single opaque error
// regardless of which half of the pair was wrong.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if !h.creds.Check(req.Username, req.Password) {
		h.logger.WarnContext(r.Context(), "login failed",
			"username", auth.CanonicalizeUsername(req.Username),
			"remote_addr", r.RemoteAddr,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthInvalidCreds,
			"invalid username or password",
			nil,
		))
		return
	}

	subject := auth.CanonicalizeUsername(req.Username)
	token, expiresAt, err := h.issuer.Issue(subject)
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to issue token",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "login succeeded", "subject", subject)
	core.JSON(w, r, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}
