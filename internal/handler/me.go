package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/errand/internal/auth"
	"github.com/dukerupert/errand/internal/cache"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/store"
	"github.com/dukerupert/errand/internal/task"
)

type MeHandler struct {
	users    *store.UserStore
	ledger   *store.LedgerStore
	profiles *cache.Profiles
	logger   *slog.Logger
}

func NewMeHandler(users *store.UserStore, ledger *store.LedgerStore, profiles *cache.Profiles, logger *slog.Logger) *MeHandler {
	return &MeHandler{users: users, ledger: ledger, profiles: profiles, logger: logger}
}

type meResponse struct {
	*model.User
	XP      int `json:"xp"`
	Credits int `json:"credits"`
	Level   int `json:"level"`
}

// Get handles GET /api/me
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		internalError(w, h.logger, "get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "account no longer exists")
		return
	}
	bal, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		internalError(w, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: u, XP: bal.XP, Credits: bal.Credits, Level: bal.Level})
}

// Update handles PATCH /api/me
func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !auth.IsMember(r.Context()) {
		writeError(w, http.StatusUnauthorized, task.KindUnauthenticated.Code(), "guests cannot change their name")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 80 {
		badRequest(w, "name must be 1 to 80 characters")
		return
	}

	userID := auth.UserID(r.Context())
	u, err := h.users.UpdateName(r.Context(), userID, name)
	if err != nil {
		internalError(w, h.logger, "update user", err)
		return
	}
	h.profiles.Invalidate(r.Context(), userID)
	writeJSON(w, http.StatusOK, u)
}

// Ledger handles GET /api/me/ledger
func (h *MeHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	limit := queryLimit(r, 50, 200)

	xp, err := h.ledger.ListXP(r.Context(), userID, limit)
	if err != nil {
		internalError(w, h.logger, "list xp", err)
		return
	}
	credits, err := h.ledger.ListCredits(r.Context(), userID, limit)
	if err != nil {
		internalError(w, h.logger, "list credits", err)
		return
	}
	if xp == nil {
		xp = []model.LedgerEntry{}
	}
	if credits == nil {
		credits = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.LedgerEntry{"xp": xp, "credits": credits})
}
