package server

import (
	"net/http"
	"strings"

	"libraryhub/internal/app"
	"libraryhub/pkg/domain"
)

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request, user domain.User) {
	bookID, ok := trailingID(r.URL.Path, "/api/borrow/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	borrow, err := s.app.BorrowBook(r.Context(), user, bookID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, borrow)
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request, user domain.User) {
	bookID, ok := trailingID(r.URL.Path, "/api/return/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	borrow, err := s.app.ReturnBook(r.Context(), user, bookID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, borrow)
}

func (s *Server) handleMyBorrows(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, limit := parsePaging(r)
	borrows, total, err := s.app.MyBorrows(user, app.ListBorrowsQuery{
		Status: r.URL.Query().Get("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(borrows, page, limit, total))
}

func (s *Server) handleAllBorrows(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, limit := parsePaging(r)
	borrows, total, err := s.app.AllBorrows(app.ListBorrowsQuery{
		Status: r.URL.Query().Get("status"),
		UserID: r.URL.Query().Get("userId"),
		BookID: r.URL.Query().Get("bookId"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(borrows, page, limit, total))
}

func (s *Server) handleBorrowStats(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.BorrowStats()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUpdateOverdue(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	count, err := s.app.SweepOverdue(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": count})
}

func trailingID(path, prefix string) (string, bool) {
	id := strings.TrimPrefix(path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
