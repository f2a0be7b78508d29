package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler provides the login endpoint.
type Handler struct {
	store  UserStore
	issuer *TokenIssuer
	logger zerolog.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(store UserStore, issuer *TokenIssuer, logger zerolog.Logger) *Handler {
	return &Handler{store: store, issuer: issuer, logger: logger}
}

// RegisterRoutes registers auth routes on the given group.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/login", h.Login)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login handles POST /login. Invalid usernames and wrong passwords produce
// the same 401 so the endpoint does not leak which accounts exist.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	user, err := h.store.FindByUsername(c.Request().Context(), req.Username)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		h.logger.Error().Err(err).Msg("user lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	if !VerifyPassword(req.Password, user.PasswordHash) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, _, err := h.issuer.Issue(user)
	if err != nil {
		h.logger.Error().Err(err).Msg("token issue failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	h.logger.Info().Str("user_id", user.ID).Msg("user logged in")

	return c.JSON(http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.issuer.TTL().Seconds()),
	})
}
