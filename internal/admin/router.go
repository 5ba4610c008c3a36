// Package admin exposes the moderation REST API consumed by the campus admin
// UI. Handlers return the trust store's post-mutation counters directly, so
// the UI can reconcile its tables without a follow-up read.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/guftagu/campus-chat/internal/identity"
	"github.com/guftagu/campus-chat/internal/trust"
)

// ModerationStore is the slice of the trust store the API needs.
type ModerationStore interface {
	ListUsers(ctx context.Context) ([]trust.UserSummary, error)
	UserDetail(ctx context.Context, userID uuid.UUID) (*trust.UserDetail, error)
	Unsuspend(ctx context.Context, userID uuid.UUID) (trust.ReportOutcome, error)
	ClearBlocks(ctx context.Context, userID uuid.UUID) (int, error)
	RemoveReport(ctx context.Context, userID, reportID uuid.UUID) (trust.ReportOutcome, error)
}

// Handler serves the /admin routes.
type Handler struct {
	store    ModerationStore
	verifier *identity.Verifier
}

// NewHandler creates the moderation API handler.
func NewHandler(store ModerationStore, verifier *identity.Verifier) *Handler {
	return &Handler{store: store, verifier: verifier}
}

// Router builds the chi router with auth middleware applied.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/users", h.listUsers)
		r.Get("/users/{id}/details", h.userDetail)
		r.Put("/users/{id}/unsuspend", h.unsuspend)
		r.Put("/users/{id}/clear-blocks", h.clearBlocks)
		r.Delete("/users/{id}/reports/{reportID}", h.removeReport)
	})
	return r
}

// requireAdmin authenticates the bearer token and rejects non-admin
// identities with 403.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		id, err := h.verifier.Verify(parts[1])
		if err != nil {
			log.Printf("[admin] token validation failed: %v", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if !id.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.storeError(w, "list users", err)
		return
	}
	if users == nil {
		users = []trust.UserSummary{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) userDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.store.UserDetail(r.Context(), userID)
	if err != nil {
		h.storeError(w, "user detail", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) unsuspend(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	out, err := h.store.Unsuspend(r.Context(), userID)
	if err != nil {
		h.storeError(w, "unsuspend", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "user unsuspended",
		"reportsCount": out.ReportsCount,
		"isSuspended":  out.Suspended,
	})
}

func (h *Handler) clearBlocks(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	remaining, err := h.store.ClearBlocks(r.Context(), userID)
	if err != nil {
		h.storeError(w, "clear blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":           "blocks cleared",
		"blockedUsersCount": remaining,
	})
}

func (h *Handler) removeReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	reportID, ok := parseID(w, r, "reportID")
	if !ok {
		return
	}
	out, err := h.store.RemoveReport(r.Context(), userID, reportID)
	if err != nil {
		h.storeError(w, "remove report", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "report removed",
		"reportsCount": out.ReportsCount,
		"isSuspended":  out.Suspended,
	})
}

// storeError maps trust store errors onto HTTP statuses.
func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, trust.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, trust.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "report not found")
	default:
		log.Printf("[admin] %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[admin] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
