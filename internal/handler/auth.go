package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/errand/internal/auth"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/store"
)

type AuthHandler struct {
	users  *store.UserStore
	tokens *auth.Tokens
	logger *slog.Logger
}

func NewAuthHandler(users *store.UserStore, tokens *auth.Tokens, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (h *AuthHandler) respond(w http.ResponseWriter, status int, u *model.User) {
	token, err := h.tokens.Issue(u)
	if err != nil {
		internalError(w, h.logger, "issue token", err)
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: u})
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if _, err := mail.ParseAddress(email); err != nil {
		badRequest(w, "a valid email is required")
		return
	}
	if name == "" {
		badRequest(w, "name is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		badRequest(w, "password must be at least 8 characters")
		return
	}
	if err != nil {
		internalError(w, h.logger, "hash password", err)
		return
	}

	existing, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		internalError(w, h.logger, "lookup user", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "EMAIL_TAKEN", "an account with this email already exists")
		return
	}

	u, err := h.users.Create(r.Context(), email, name, hash)
	if err != nil {
		internalError(w, h.logger, "create user", err)
		return
	}
	h.logger.Info("user registered", "user_id", u.ID)
	h.respond(w, http.StatusCreated, u)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		internalError(w, h.logger, "lookup user", err)
		return
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "incorrect email or password")
		return
	}
	h.respond(w, http.StatusOK, u)
}

// Guest handles POST /api/auth/guest
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.CreateGuest(r.Context(), "Guest")
	if err != nil {
		internalError(w, h.logger, "create guest", err)
		return
	}
	h.respond(w, http.StatusCreated, u)
}
