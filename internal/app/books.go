package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

const coverURLExpiry = 15 * time.Minute

var allowedCoverTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ListBooksQuery narrows the catalog listing.
type ListBooksQuery struct {
	Search   string
	Category string
	Page     int
	Limit    int
}

// ListBooks returns a page of the catalog, newest first.
func (a *App) ListBooks(q ListBooksQuery) ([]domain.Book, int, error) {
	page, limit := normalizePaging(q.Page, q.Limit)
	books, total, err := a.store.ListBooks(store.BookQuery{
		Search:   strings.TrimSpace(q.Search),
		Category: strings.TrimSpace(q.Category),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

// GetBook returns one catalog entry.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBookByID(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, NotFound("book not found")
	}
	return book, nil
}

// CreateBookRequest carries a new catalog entry. AvailableCopies defaults to
// TotalCopies when omitted.
type CreateBookRequest struct {
	Title           string
	Author          string
	Category        string
	ISBN            string
	TotalCopies     *int
	AvailableCopies *int
	Description     string
	PublishedYear   int
	Attributes      map[string]any
}

// CreateBook adds a book to the catalog.
func (a *App) CreateBook(req CreateBookRequest) (domain.Book, error) {
	title := strings.TrimSpace(req.Title)
	author := strings.TrimSpace(req.Author)
	category := strings.TrimSpace(req.Category)
	isbn := strings.TrimSpace(req.ISBN)
	if title == "" || author == "" || category == "" || isbn == "" {
		return domain.Book{}, ValidationError("title, author, category and isbn are required")
	}
	totalCopies := 1
	if req.TotalCopies != nil {
		totalCopies = *req.TotalCopies
	}
	if totalCopies < 1 {
		return domain.Book{}, ValidationError("totalCopies must be at least 1")
	}
	availableCopies := totalCopies
	if req.AvailableCopies != nil {
		availableCopies = *req.AvailableCopies
	}
	if availableCopies < 0 || availableCopies > totalCopies {
		return domain.Book{}, ValidationError("availableCopies must be between 0 and totalCopies")
	}
	if req.PublishedYear != 0 && (req.PublishedYear < 1000 || req.PublishedYear > a.now().Year()) {
		return domain.Book{}, ValidationError("invalid published year")
	}
	if _, ok, err := a.store.GetBookByISBN(isbn); err != nil {
		return domain.Book{}, fmt.Errorf("check isbn: %w", err)
	} else if ok {
		return domain.Book{}, Conflict("book with this ISBN already exists")
	}
	now := a.now()
	book := domain.Book{
		ID:              util.NewID(),
		Title:           title,
		Author:          author,
		Category:        category,
		ISBN:            isbn,
		TotalCopies:     totalCopies,
		AvailableCopies: availableCopies,
		Description:     strings.TrimSpace(req.Description),
		PublishedYear:   req.PublishedYear,
		Attributes:      req.Attributes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.CreateBook(book); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return domain.Book{}, Conflict("book with this ISBN already exists")
		}
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// UpdateBookRequest carries partial catalog edits. Nil fields are unchanged.
type UpdateBookRequest struct {
	Title           *string
	Author          *string
	Category        *string
	ISBN            *string
	TotalCopies     *int
	AvailableCopies *int
	Description     *string
	PublishedYear   *int
	Attributes      map[string]any
}

// UpdateBook merges the request into an existing book. The copy-count
// invariant is revalidated against copies currently out on loan.
func (a *App) UpdateBook(id string, req UpdateBookRequest) (domain.Book, error) {
	book, ok, err := a.store.GetBookByID(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, NotFound("book not found")
	}
	copiesOut := book.TotalCopies - book.AvailableCopies

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return domain.Book{}, ValidationError("title must not be empty")
		}
		book.Title = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		if strings.TrimSpace(*req.Author) == "" {
			return domain.Book{}, ValidationError("author must not be empty")
		}
		book.Author = strings.TrimSpace(*req.Author)
	}
	if req.Category != nil {
		if strings.TrimSpace(*req.Category) == "" {
			return domain.Book{}, ValidationError("category must not be empty")
		}
		book.Category = strings.TrimSpace(*req.Category)
	}
	if req.ISBN != nil {
		isbn := strings.TrimSpace(*req.ISBN)
		if isbn == "" {
			return domain.Book{}, ValidationError("isbn must not be empty")
		}
		if isbn != book.ISBN {
			if _, exists, err := a.store.GetBookByISBN(isbn); err != nil {
				return domain.Book{}, fmt.Errorf("check isbn: %w", err)
			} else if exists {
				return domain.Book{}, Conflict("book with this ISBN already exists")
			}
			book.ISBN = isbn
		}
	}
	if req.TotalCopies != nil {
		newTotal := *req.TotalCopies
		if newTotal < 1 {
			return domain.Book{}, ValidationError("totalCopies must be at least 1")
		}
		if newTotal < copiesOut {
			return domain.Book{}, ValidationError("totalCopies cannot be less than copies currently on loan")
		}
		book.TotalCopies = newTotal
		if req.AvailableCopies == nil {
			book.AvailableCopies = newTotal - copiesOut
		}
	}
	if req.AvailableCopies != nil {
		newAvailable := *req.AvailableCopies
		if newAvailable < 0 || newAvailable > book.TotalCopies {
			return domain.Book{}, ValidationError("availableCopies must be between 0 and totalCopies")
		}
		if newAvailable+copiesOut > book.TotalCopies {
			return domain.Book{}, ValidationError("availableCopies inconsistent with copies currently on loan")
		}
		book.AvailableCopies = newAvailable
	}
	if req.Description != nil {
		book.Description = strings.TrimSpace(*req.Description)
	}
	if req.PublishedYear != nil {
		year := *req.PublishedYear
		if year != 0 && (year < 1000 || year > a.now().Year()) {
			return domain.Book{}, ValidationError("invalid published year")
		}
		book.PublishedYear = year
	}
	if req.Attributes != nil {
		book.Attributes = req.Attributes
	}
	book.UpdatedAt = a.now()
	if err := a.store.UpdateBook(book); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return domain.Book{}, Conflict("book with this ISBN already exists")
		}
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a catalog entry. Books with copies still out on loan
// cannot be deleted.
func (a *App) DeleteBook(ctx context.Context, id string) error {
	book, ok, err := a.store.GetBookByID(id)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return NotFound("book not found")
	}
	active, err := a.store.HasActiveBorrowsForBook(id)
	if err != nil {
		return fmt.Errorf("check borrows: %w", err)
	}
	if active {
		return Conflict("cannot delete book with active borrows")
	}
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if a.covers != nil && book.CoverKey != "" {
		if err := a.covers.Delete(ctx, book.CoverKey); err != nil {
			util.LoggerFromContext(ctx).Warn("delete cover failed", "book_id", id, "err", err)
		}
	}
	return nil
}

// BookStats aggregates catalog copy counts for the admin dashboard.
func (a *App) BookStats() (domain.BookStats, error) {
	stats, err := a.store.BookStats()
	if err != nil {
		return domain.BookStats{}, fmt.Errorf("book stats: %w", err)
	}
	return stats, nil
}

// UploadCover stores a cover image for the book and records its key.
func (a *App) UploadCover(ctx context.Context, bookID string, r io.Reader, size int64, contentType string) error {
	if a.covers == nil {
		return Unavailable("cover storage is not configured")
	}
	ext, ok := allowedCoverTypes[contentType]
	if !ok {
		return ValidationError("cover must be a jpeg, png or webp image")
	}
	if size <= 0 {
		return ValidationError("cover image is empty")
	}
	if _, err := a.GetBook(bookID); err != nil {
		return err
	}
	key := "covers/" + bookID + ext
	if err := a.covers.Put(ctx, key, r, size, contentType); err != nil {
		return fmt.Errorf("store cover: %w", err)
	}
	if err := a.store.SetBookCover(bookID, key); err != nil {
		return fmt.Errorf("record cover key: %w", err)
	}
	return nil
}

// CoverURL returns a short-lived URL for the book's cover image.
func (a *App) CoverURL(ctx context.Context, bookID string) (string, error) {
	if a.covers == nil {
		return "", Unavailable("cover storage is not configured")
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return "", err
	}
	if book.CoverKey == "" {
		return "", NotFound("book has no cover")
	}
	url, err := a.covers.PresignGet(ctx, book.CoverKey, coverURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign cover: %w", err)
	}
	return url, nil
}
