package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"libraryhub/pkg/domain"
)

// ErrDuplicateKey is returned by the memory store for unique-constraint
// violations, mirroring what the database reports.
var ErrDuplicateKey = errors.New("duplicate key")

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	books   map[string]domain.Book
	borrows map[string]domain.Borrow
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		books:   make(map[string]domain.Book),
		borrows: make(map[string]domain.Borrow),
	}
}

// users

func (s *MemoryStore) CreateUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateKey
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) ListUsers(q UserQuery) ([]domain.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.User, 0, len(s.users))
	search := strings.ToLower(q.Search)
	for _, u := range s.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		matched = append(matched, u)
	}
	sortNewestFirst(matched, func(u domain.User) (time.Time, string) { return u.CreatedAt, u.ID })
	total := len(matched)
	return pageSlice(matched, q.Page, q.Limit), total, nil
}

func (s *MemoryStore) UpdateUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return nil
	}
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateKey
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) UserStats() (domain.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats domain.UserStats
	for _, u := range s.users {
		stats.TotalUsers++
		if u.Role == domain.RoleAdmin {
			stats.AdminUsers++
		} else {
			stats.RegularUsers++
		}
	}
	return stats, nil
}

// books

func (s *MemoryStore) CreateBook(b domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.books {
		if existing.ISBN == b.ISBN {
			return ErrDuplicateKey
		}
	}
	s.books[b.ID] = b
	return nil
}

func (s *MemoryStore) GetBookByID(id string) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	return b, ok, nil
}

func (s *MemoryStore) GetBookByISBN(isbn string) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.ISBN == isbn {
			return b, true, nil
		}
	}
	return domain.Book{}, false, nil
}

func (s *MemoryStore) ListBooks(q BookQuery) ([]domain.Book, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.Book, 0, len(s.books))
	search := strings.ToLower(q.Search)
	category := strings.ToLower(q.Category)
	for _, b := range s.books {
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) &&
			!strings.Contains(strings.ToLower(b.ISBN), search) {
			continue
		}
		if category != "" && !strings.Contains(strings.ToLower(b.Category), category) {
			continue
		}
		matched = append(matched, b)
	}
	sortNewestFirst(matched, func(b domain.Book) (time.Time, string) { return b.CreatedAt, b.ID })
	total := len(matched)
	return pageSlice(matched, q.Page, q.Limit), total, nil
}

func (s *MemoryStore) UpdateBook(b domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[b.ID]; !ok {
		return nil
	}
	for id, existing := range s.books {
		if id != b.ID && existing.ISBN == b.ISBN {
			return ErrDuplicateKey
		}
	}
	// Preserve the cover key; UpdateBook does not touch it.
	b.CoverKey = s.books[b.ID].CoverKey
	s.books[b.ID] = b
	return nil
}

func (s *MemoryStore) DeleteBook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	return nil
}

func (s *MemoryStore) SetBookCover(id, coverKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil
	}
	b.CoverKey = coverKey
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return nil
}

func (s *MemoryStore) BookStats() (domain.BookStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats domain.BookStats
	for _, b := range s.books {
		stats.TotalBooks++
		stats.TotalCopies += b.TotalCopies
		stats.AvailableCopies += b.AvailableCopies
	}
	stats.BorrowedCopies = stats.TotalCopies - stats.AvailableCopies
	return stats, nil
}

func (s *MemoryStore) DecrementAvailableCopies(bookID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok || b.AvailableCopies <= 0 {
		return false, nil
	}
	b.AvailableCopies--
	s.books[bookID] = b
	return true, nil
}

func (s *MemoryStore) IncrementAvailableCopies(bookID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok || b.AvailableCopies >= b.TotalCopies {
		return false, nil
	}
	b.AvailableCopies++
	s.books[bookID] = b
	return true, nil
}

// borrow ledger

func (s *MemoryStore) CreateBorrow(b domain.Borrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.borrows[b.ID] = b
	return nil
}

func (s *MemoryStore) GetActiveBorrow(userID, bookID string) (domain.Borrow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.borrows {
		if b.UserID == userID && b.BookID == bookID && b.Active() {
			return b, true, nil
		}
	}
	return domain.Borrow{}, false, nil
}

func (s *MemoryStore) CountActiveBorrows(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, b := range s.borrows {
		if b.UserID == userID && b.Active() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) HasActiveBorrowsForBook(bookID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.borrows {
		if b.BookID == bookID && b.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) HasActiveBorrowsForUser(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.borrows {
		if b.UserID == userID && b.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UpdateBorrow(b domain.Borrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.borrows[b.ID]; !ok {
		return nil
	}
	s.borrows[b.ID] = b
	return nil
}

func (s *MemoryStore) ListBorrows(q BorrowQuery) ([]domain.Borrow, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.Borrow, 0, len(s.borrows))
	for _, b := range s.borrows {
		if q.UserID != "" && b.UserID != q.UserID {
			continue
		}
		if q.BookID != "" && b.BookID != q.BookID {
			continue
		}
		if q.Status != "" && b.Status != q.Status {
			continue
		}
		matched = append(matched, b)
	}
	sortNewestFirst(matched, func(b domain.Borrow) (time.Time, string) { return b.CreatedAt, b.ID })
	total := len(matched)
	return pageSlice(matched, q.Page, q.Limit), total, nil
}

func (s *MemoryStore) MarkOverdue(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, b := range s.borrows {
		if b.Status == domain.StatusBorrowed && b.DueDate.Before(now) {
			b.Status = domain.StatusOverdue
			b.UpdatedAt = now
			s.borrows[id] = b
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) BorrowStats() (domain.BorrowStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats domain.BorrowStats
	for _, b := range s.borrows {
		stats.TotalBorrows++
		switch {
		case b.Active():
			stats.ActiveBorrows++
		case b.Status == domain.StatusReturned:
			stats.ReturnedBorrows++
		}
		if b.Status == domain.StatusOverdue {
			stats.OverdueBorrows++
		}
		if b.Fine > 0 {
			stats.TotalFines += b.Fine
		}
	}
	return stats, nil
}

// helpers

func sortNewestFirst[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})
}

func pageSlice[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
