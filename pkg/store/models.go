package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"libraryhub/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type BookModel struct {
	ID              string `gorm:"primaryKey"`
	Title           string `gorm:"not null;index"`
	Author          string `gorm:"not null;index"`
	Category        string `gorm:"not null;index"`
	ISBN            string `gorm:"uniqueIndex;not null"`
	TotalCopies     int    `gorm:"not null"`
	AvailableCopies int    `gorm:"not null"`
	Description     string
	PublishedYear   int
	Attributes      datatypes.JSON `gorm:"type:jsonb"`
	CoverKey        string
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type BorrowModel struct {
	ID         string    `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;index:idx_borrows_user_status"`
	BookID     string    `gorm:"not null;index:idx_borrows_book_status"`
	BorrowDate time.Time `gorm:"not null"`
	DueDate    time.Time `gorm:"not null;index"`
	ReturnDate *time.Time
	Status     string    `gorm:"not null;index:idx_borrows_user_status;index:idx_borrows_book_status"`
	Fine       int64     `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) (BookModel, error) {
	var attrs datatypes.JSON
	if len(b.Attributes) > 0 {
		raw, err := json.Marshal(b.Attributes)
		if err != nil {
			return BookModel{}, err
		}
		attrs = datatypes.JSON(raw)
	}
	return BookModel{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		Category:        b.Category,
		ISBN:            b.ISBN,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Description:     b.Description,
		PublishedYear:   b.PublishedYear,
		Attributes:      attrs,
		CoverKey:        b.CoverKey,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}, nil
}

func bookFromModel(m BookModel) domain.Book {
	var attrs map[string]any
	if len(m.Attributes) > 0 {
		_ = json.Unmarshal(m.Attributes, &attrs)
	}
	return domain.Book{
		ID:              m.ID,
		Title:           m.Title,
		Author:          m.Author,
		Category:        m.Category,
		ISBN:            m.ISBN,
		TotalCopies:     m.TotalCopies,
		AvailableCopies: m.AvailableCopies,
		Description:     m.Description,
		PublishedYear:   m.PublishedYear,
		Attributes:      attrs,
		CoverKey:        m.CoverKey,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func borrowToModel(b domain.Borrow) BorrowModel {
	return BorrowModel{
		ID:         b.ID,
		UserID:     b.UserID,
		BookID:     b.BookID,
		BorrowDate: b.BorrowDate,
		DueDate:    b.DueDate,
		ReturnDate: b.ReturnDate,
		Status:     string(b.Status),
		Fine:       b.Fine,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func borrowFromModel(m BorrowModel) domain.Borrow {
	return domain.Borrow{
		ID:         m.ID,
		UserID:     m.UserID,
		BookID:     m.BookID,
		BorrowDate: m.BorrowDate,
		DueDate:    m.DueDate,
		ReturnDate: m.ReturnDate,
		Status:     domain.BorrowStatus(m.Status),
		Fine:       m.Fine,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

var activeStatuses = []string{string(domain.StatusBorrowed), string(domain.StatusOverdue)}
