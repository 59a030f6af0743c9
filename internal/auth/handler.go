package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/marcuspat/devxplatform/internal/platform/httpx"
	"github.com/marcuspat/devxplatform/internal/users"
)

// TokenRequest carries login credentials.
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is the issued access token envelope.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Handler exposes the authentication endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	tokens   *TokenManager
	validate *validator.Validate
}

// NewHandler constructs an auth handler.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenManager) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		tokens:   tokens,
		validate: validator.New(),
	}
}

// RegisterResponse pairs the new account with its first access token.
type RegisterResponse struct {
	User  *users.User   `json:"user"`
	Token TokenResponse `json:"token"`
}

// MountRoutes attaches the auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/token", h.Token)
	r.Post("/register", h.Register)
	r.With(RequireAuth(h.tokens)).Post("/refresh", h.Refresh)
	r.With(RequireAuth(h.tokens)).Get("/me", h.Me)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req users.CreateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, token, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.logger.Warn("registration failed", slog.String("email", req.Email), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, RegisterResponse{
		User: user,
		Token: TokenResponse{
			AccessToken: token,
			TokenType:   "bearer",
			ExpiresIn:   int(h.tokens.TTL().Seconds()),
		},
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing claims")
		return
	}

	token, err := h.service.Refresh(r.Context(), claims)
	if err != nil {
		h.logger.Warn("token refresh failed", slog.String("email", claims.Email))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.tokens.TTL().Seconds()),
	})
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("login failed", slog.String("email", req.Email))
		httpx.RespondError(w, err)
		return
	}

	token, err := h.service.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.tokens.TTL().Seconds()),
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing claims")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"id":       claims.UserID.String(),
		"email":    claims.Email,
		"username": claims.Username,
	})
}
