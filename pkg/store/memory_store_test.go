package store

import (
	"testing"
	"time"

	"libraryhub/pkg/domain"
)

func TestDecrementAvailableCopiesStopsAtZero(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateBook(domain.Book{ID: "b1", ISBN: "i1", TotalCopies: 2, AvailableCopies: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := s.DecrementAvailableCopies("b1")
		if err != nil || !ok {
			t.Fatalf("decrement %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := s.DecrementAvailableCopies("b1")
	if err != nil {
		t.Fatalf("decrement at zero: %v", err)
	}
	if ok {
		t.Fatal("decrement must fail once copies reach zero")
	}

	book, _, _ := s.GetBookByID("b1")
	if book.AvailableCopies != 0 {
		t.Fatalf("expected 0 available, got %d", book.AvailableCopies)
	}
}

func TestIncrementAvailableCopiesCappedAtTotal(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateBook(domain.Book{ID: "b1", ISBN: "i1", TotalCopies: 1, AvailableCopies: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := s.IncrementAvailableCopies("b1")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if ok {
		t.Fatal("increment must not exceed total copies")
	}
	book, _, _ := s.GetBookByID("b1")
	if book.AvailableCopies != 1 {
		t.Fatalf("expected 1 available, got %d", book.AvailableCopies)
	}
}

func TestMarkOverdueOnlyTouchesLapsedBorrowed(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	seed := []domain.Borrow{
		{ID: "lapsed", Status: domain.StatusBorrowed, DueDate: now.Add(-time.Hour)},
		{ID: "current", Status: domain.StatusBorrowed, DueDate: now.Add(time.Hour)},
		{ID: "returned", Status: domain.StatusReturned, DueDate: now.Add(-time.Hour)},
		{ID: "already", Status: domain.StatusOverdue, DueDate: now.Add(-time.Hour)},
	}
	for _, b := range seed {
		if err := s.CreateBorrow(b); err != nil {
			t.Fatalf("create %s: %v", b.ID, err)
		}
	}

	count, err := s.MarkOverdue(now)
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 transition, got %d", count)
	}

	borrows, _, _ := s.ListBorrows(BorrowQuery{})
	statuses := make(map[string]domain.BorrowStatus, len(borrows))
	for _, b := range borrows {
		statuses[b.ID] = b.Status
	}
	if statuses["lapsed"] != domain.StatusOverdue {
		t.Fatalf("lapsed should be overdue, got %s", statuses["lapsed"])
	}
	if statuses["current"] != domain.StatusBorrowed {
		t.Fatalf("current must stay borrowed, got %s", statuses["current"])
	}
	if statuses["returned"] != domain.StatusReturned {
		t.Fatalf("returned must stay returned, got %s", statuses["returned"])
	}
}

func TestListBorrowsNewestFirstWithPaging(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b := domain.Borrow{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			Status:    domain.StatusBorrowed,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateBorrow(b); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, total, err := s.ListBorrows(BorrowQuery{UserID: "u1", Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("expected 2 of 5, got %d of %d", len(page), total)
	}
	if page[0].ID != "e" || page[1].ID != "d" {
		t.Fatalf("expected newest first, got %s %s", page[0].ID, page[1].ID)
	}
}

func TestUpdateBookPreservesCoverKey(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateBook(domain.Book{ID: "b1", ISBN: "i1", TotalCopies: 1, AvailableCopies: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetBookCover("b1", "covers/b1.png"); err != nil {
		t.Fatalf("set cover: %v", err)
	}
	if err := s.UpdateBook(domain.Book{ID: "b1", ISBN: "i1", Title: "Renamed", TotalCopies: 1, AvailableCopies: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}

	book, _, _ := s.GetBookByID("b1")
	if book.CoverKey != "covers/b1.png" {
		t.Fatalf("cover key must survive updates, got %q", book.CoverKey)
	}
}
