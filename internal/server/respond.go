package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"libraryhub/internal/app"
	"libraryhub/internal/util"
)

// listResponse is the envelope for every paginated listing.
type listResponse struct {
	Items       any `json:"items"`
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	Total       int `json:"total"`
}

func newListResponse(items any, page, limit, total int) listResponse {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return listResponse{
		Items:       items,
		CurrentPage: page,
		TotalPages:  totalPages,
		Total:       total,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeAppError maps a service failure to an HTTP response. Business-rule
// violations keep their message; anything untagged is logged and masked.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch app.KindOf(err) {
	case app.KindValidation, app.KindConflict, app.KindUnavailable, app.KindLimitExceeded:
		writeError(w, http.StatusBadRequest, err.Error())
	case app.KindUnauthenticated:
		writeError(w, http.StatusUnauthorized, err.Error())
	case app.KindForbidden:
		writeError(w, http.StatusForbidden, err.Error())
	case app.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// parsePaging reads page/limit query parameters with the service defaults.
func parsePaging(r *http.Request) (int, int) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(r, "limit", defaultPageLimit)
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
