package store

import (
	"time"

	"libraryhub/pkg/domain"
)

// BookQuery narrows catalog listings. Page and Limit are 1-based and
// normalized by the caller.
type BookQuery struct {
	Search   string
	Category string
	Page     int
	Limit    int
}

// UserQuery narrows user listings.
type UserQuery struct {
	Search string
	Page   int
	Limit  int
}

// BorrowQuery narrows ledger listings.
type BorrowQuery struct {
	UserID string
	BookID string
	Status domain.BorrowStatus
	Page   int
	Limit  int
}

// Store defines persistence operations for users, books, and the borrow ledger.
type Store interface {
	// users
	CreateUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers(q UserQuery) ([]domain.User, int, error)
	UpdateUser(domain.User) error
	DeleteUser(id string) error
	UserStats() (domain.UserStats, error)

	// books
	CreateBook(domain.Book) error
	GetBookByID(id string) (domain.Book, bool, error)
	GetBookByISBN(isbn string) (domain.Book, bool, error)
	ListBooks(q BookQuery) ([]domain.Book, int, error)
	UpdateBook(domain.Book) error
	DeleteBook(id string) error
	SetBookCover(id, coverKey string) error
	BookStats() (domain.BookStats, error)

	// DecrementAvailableCopies atomically takes one copy off the shelf.
	// It returns false when no copies are available.
	DecrementAvailableCopies(bookID string) (bool, error)
	// IncrementAvailableCopies atomically puts one copy back, capped at
	// totalCopies. It returns false when the book is already fully stocked
	// or missing.
	IncrementAvailableCopies(bookID string) (bool, error)

	// borrow ledger
	CreateBorrow(domain.Borrow) error
	GetActiveBorrow(userID, bookID string) (domain.Borrow, bool, error)
	CountActiveBorrows(userID string) (int, error)
	HasActiveBorrowsForBook(bookID string) (bool, error)
	HasActiveBorrowsForUser(userID string) (bool, error)
	UpdateBorrow(domain.Borrow) error
	ListBorrows(q BorrowQuery) ([]domain.Borrow, int, error)
	// MarkOverdue flips every still-borrowed record whose due date has
	// passed to overdue and returns how many rows changed.
	MarkOverdue(now time.Time) (int, error)
	BorrowStats() (domain.BorrowStats, error)
}

// SessionStore issues and validates bearer tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
