package domain

import "time"

type UserRole string

const (
	RoleMember UserRole = "member"
	RoleAdmin  UserRole = "admin"
)

type BorrowStatus string

const (
	StatusBorrowed BorrowStatus = "borrowed"
	StatusOverdue  BorrowStatus = "overdue"
	StatusReturned BorrowStatus = "returned"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSummary is the user shape embedded in borrow listings.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

type Book struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Author          string         `json:"author"`
	Category        string         `json:"category"`
	ISBN            string         `json:"isbn"`
	TotalCopies     int            `json:"totalCopies"`
	AvailableCopies int            `json:"availableCopies"`
	Description     string         `json:"description,omitempty"`
	PublishedYear   int            `json:"publishedYear,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	CoverKey        string         `json:"-"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

type Borrow struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId"`
	BookID     string       `json:"bookId"`
	BorrowDate time.Time    `json:"borrowDate"`
	DueDate    time.Time    `json:"dueDate"`
	ReturnDate *time.Time   `json:"returnDate,omitempty"`
	Status     BorrowStatus `json:"status"`
	Fine       int64        `json:"fine"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`

	// Populated on listing endpoints; not persisted on the borrow row.
	Book *Book        `json:"book,omitempty"`
	User *UserSummary `json:"user,omitempty"`
}

// Active reports whether the borrow still holds a copy.
func (b Borrow) Active() bool {
	return b.Status == StatusBorrowed || b.Status == StatusOverdue
}

type BorrowStats struct {
	TotalBorrows    int   `json:"totalBorrows"`
	ActiveBorrows   int   `json:"activeBorrows"`
	OverdueBorrows  int   `json:"overdueBorrows"`
	ReturnedBorrows int   `json:"returnedBorrows"`
	TotalFines      int64 `json:"totalFines"`
}

type BookStats struct {
	TotalBooks      int `json:"totalBooks"`
	TotalCopies     int `json:"totalCopies"`
	AvailableCopies int `json:"availableCopies"`
	BorrowedCopies  int `json:"borrowedCopies"`
}

type UserStats struct {
	TotalUsers   int `json:"totalUsers"`
	AdminUsers   int `json:"adminUsers"`
	RegularUsers int `json:"regularUsers"`
}
