package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/services"
)

// IPUnblocker lifts an admin-auth IP block.
type IPUnblocker interface {
	Unblock(ctx context.Context, ip string) error
}

// AdminHandler exposes AdminService to the dashboard.
type AdminHandler struct {
	admin *services.AdminService
	// unblocker may be nil when Redis is unavailable.
	unblocker IPUnblocker
	log       *slog.Logger
}

func NewAdminHandler(admin *services.AdminService, unblocker IPUnblocker, log *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, unblocker: unblocker, log: log}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// GetStats returns today's aggregate counts.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		h.log.Error("failed to load stats", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// GetUsers lists profiles, optionally filtered by ?status.
func (h *AdminHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	status := models.UserStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	users, err := h.admin.ListUsers(r.Context(), status, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"users":   users,
		"count":   len(users),
	})
}

// UpdateUserStatus sets a profile's status from {"status": "..."}.
func (h *AdminHandler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.UserStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.admin.SetUserStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.log.Info("user status changed by admin", "user_id", u.ID, "status", u.Status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    u,
	})
}

func (h *AdminHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	pr, err := h.admin.ConfirmPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"payment": pr,
	})
}

func (h *AdminHandler) GetAbuseFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := h.admin.ListAbuseFlags(r.Context(), int64(queryInt(r, "limit", 50)))
	if err != nil {
		h.log.Error("failed to list abuse flags", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"flags":   flags,
		"count":   len(flags),
	})
}

func (h *AdminHandler) GetCaches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"caches":  h.admin.CacheStats(),
	})
}

func (h *AdminHandler) FlushCaches(w http.ResponseWriter, r *http.Request) {
	h.admin.FlushCaches()
	h.log.Info("caches flushed by admin")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Caches flushed",
	})
}

// UnblockIP removes an IP from the admin-auth block list (?ip=).
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := strings.TrimSpace(r.URL.Query().Get("ip"))
	if ip == "" {
		writeError(w, http.StatusBadRequest, "IP address is required")
		return
	}
	if h.unblocker == nil {
		writeError(w, http.StatusServiceUnavailable, "IP blocking is not enabled")
		return
	}
	if err := h.unblocker.Unblock(r.Context(), ip); err != nil {
		h.log.Error("failed to unblock ip", "ip", ip, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to unblock IP")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "IP unblocked",
	})
}
