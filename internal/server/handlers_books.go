package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"libraryhub/internal/app"
	"libraryhub/pkg/domain"
)

type createBookRequest struct {
	Title           string         `json:"title"`
	Author          string         `json:"author"`
	Category        string         `json:"category"`
	ISBN            string         `json:"isbn"`
	TotalCopies     *int           `json:"totalCopies"`
	AvailableCopies *int           `json:"availableCopies"`
	Description     string         `json:"description"`
	PublishedYear   int            `json:"publishedYear"`
	Attributes      map[string]any `json:"attributes"`
}

type updateBookRequest struct {
	Title           *string        `json:"title"`
	Author          *string        `json:"author"`
	Category        *string        `json:"category"`
	ISBN            *string        `json:"isbn"`
	TotalCopies     *int           `json:"totalCopies"`
	AvailableCopies *int           `json:"availableCopies"`
	Description     *string        `json:"description"`
	PublishedYear   *int           `json:"publishedYear"`
	Attributes      map[string]any `json:"attributes"`
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, limit := parsePaging(r)
		books, total, err := s.app.ListBooks(app.ListBooksQuery{
			Search:   r.URL.Query().Get("search"),
			Category: r.URL.Query().Get("category"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newListResponse(books, page, limit, total))
	case http.MethodPost:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		var req createBookRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.CreateBook(app.CreateBookRequest{
			Title:           req.Title,
			Author:          req.Author,
			Category:        req.Category,
			ISBN:            req.ISBN,
			TotalCopies:     req.TotalCopies,
			AvailableCopies: req.AvailableCopies,
			Description:     req.Description,
			PublishedYear:   req.PublishedYear,
			Attributes:      req.Attributes,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookStats(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.BookStats()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/books/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if sub == "cover" {
		s.handleBookCover(w, r, id)
		return
	}
	if sub != "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		var req updateBookRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.UpdateBook(id, app.UpdateBookRequest{
			Title:           req.Title,
			Author:          req.Author,
			Category:        req.Category,
			ISBN:            req.ISBN,
			TotalCopies:     req.TotalCopies,
			AvailableCopies: req.AvailableCopies,
			Description:     req.Description,
			PublishedYear:   req.PublishedYear,
			Attributes:      req.Attributes,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		if err := s.app.DeleteBook(r.Context(), id); err != nil {
			writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookCover(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		url, err := s.app.CoverURL(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	case http.MethodPut:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxCoverBytes)
		file, header, err := r.FormFile("cover")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusBadRequest, "cover image too large")
				return
			}
			writeError(w, http.StatusBadRequest, "multipart field 'cover' is required")
			return
		}
		defer file.Close()
		contentType := header.Header.Get("Content-Type")
		if err := s.app.UploadCover(r.Context(), id, file, header.Size, contentType); err != nil {
			writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}
