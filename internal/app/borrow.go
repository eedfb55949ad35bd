package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"libraryhub/internal/notify"
	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

const day = 24 * time.Hour

// effectiveStatus derives the status a still-open borrow should present at
// the given instant. Persisted state lags behind until the next sweep; reads
// always go through this.
func effectiveStatus(status domain.BorrowStatus, dueDate, now time.Time) domain.BorrowStatus {
	if status == domain.StatusBorrowed && now.After(dueDate) {
		return domain.StatusOverdue
	}
	return status
}

// lateFine charges perDay for every started day past the due date. A return
// one millisecond late counts as one full day.
func lateFine(dueDate, returnedAt time.Time, perDay int64) int64 {
	delta := returnedAt.Sub(dueDate)
	if delta <= 0 {
		return 0
	}
	days := int64(delta / day)
	if delta%day > 0 {
		days++
	}
	return days * perDay
}

// BorrowBook lends one copy of the book to the user.
//
// The availability check is the atomic decrement itself, so two concurrent
// borrows of the last copy cannot both succeed; the ledger insert happens
// after the copy is held and is compensated on failure.
func (a *App) BorrowBook(ctx context.Context, user domain.User, bookID string) (domain.Borrow, error) {
	if _, ok, err := a.store.GetBookByID(bookID); err != nil {
		return domain.Borrow{}, fmt.Errorf("get book: %w", err)
	} else if !ok {
		return domain.Borrow{}, NotFound("book not found")
	}
	if _, ok, err := a.store.GetActiveBorrow(user.ID, bookID); err != nil {
		return domain.Borrow{}, fmt.Errorf("check active borrow: %w", err)
	} else if ok {
		return domain.Borrow{}, Conflict("you have already borrowed this book")
	}
	active, err := a.store.CountActiveBorrows(user.ID)
	if err != nil {
		return domain.Borrow{}, fmt.Errorf("count active borrows: %w", err)
	}
	if active >= a.maxActiveBorrows {
		return domain.Borrow{}, LimitExceeded(fmt.Sprintf("maximum borrow limit reached (%d books)", a.maxActiveBorrows))
	}

	taken, err := a.store.DecrementAvailableCopies(bookID)
	if err != nil {
		return domain.Borrow{}, fmt.Errorf("take copy: %w", err)
	}
	if !taken {
		return domain.Borrow{}, Unavailable("no copies available")
	}

	now := a.now()
	borrow := domain.Borrow{
		ID:         util.NewID(),
		UserID:     user.ID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    now.Add(a.loanPeriod),
		Status:     domain.StatusBorrowed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.CreateBorrow(borrow); err != nil {
		if _, compErr := a.store.IncrementAvailableCopies(bookID); compErr != nil {
			slog.Error("compensating increment failed", "book_id", bookID, "err", compErr)
		}
		return domain.Borrow{}, fmt.Errorf("create borrow: %w", err)
	}

	a.publish(ctx, notify.Event{
		Kind:       notify.EventBorrowCreated,
		BorrowID:   borrow.ID,
		UserID:     user.ID,
		BookID:     bookID,
		DueDate:    borrow.DueDate,
		OccurredAt: now,
	})
	return borrow, nil
}

// ReturnBook closes the user's active borrow for the book and charges any
// late fine. The return is final: returnDate and fine never change afterwards.
func (a *App) ReturnBook(ctx context.Context, user domain.User, bookID string) (domain.Borrow, error) {
	borrow, ok, err := a.store.GetActiveBorrow(user.ID, bookID)
	if err != nil {
		return domain.Borrow{}, fmt.Errorf("find active borrow: %w", err)
	}
	if !ok {
		return domain.Borrow{}, NotFound("no active borrow record found")
	}

	now := a.now()
	borrow.ReturnDate = &now
	borrow.Status = domain.StatusReturned
	borrow.Fine = lateFine(borrow.DueDate, now, a.finePerDay)
	borrow.UpdatedAt = now
	if err := a.store.UpdateBorrow(borrow); err != nil {
		return domain.Borrow{}, fmt.Errorf("update borrow: %w", err)
	}
	// The increment is capped at totalCopies by the store; a false return
	// here means the catalog entry was edited under us, not a failure.
	if _, err := a.store.IncrementAvailableCopies(bookID); err != nil {
		return domain.Borrow{}, fmt.Errorf("return copy: %w", err)
	}

	a.publish(ctx, notify.Event{
		Kind:       notify.EventBorrowReturned,
		BorrowID:   borrow.ID,
		UserID:     user.ID,
		BookID:     bookID,
		DueDate:    borrow.DueDate,
		Fine:       borrow.Fine,
		OccurredAt: now,
	})
	return borrow, nil
}

// ListBorrowsQuery narrows ledger listings.
type ListBorrowsQuery struct {
	Status string
	UserID string
	BookID string
	Page   int
	Limit  int
}

// MyBorrows returns a page of the caller's borrow records, newest first.
func (a *App) MyBorrows(user domain.User, q ListBorrowsQuery) ([]domain.Borrow, int, error) {
	q.UserID = user.ID
	q.BookID = ""
	return a.listBorrows(q, false)
}

// AllBorrows returns a page of the full ledger for administrators.
func (a *App) AllBorrows(q ListBorrowsQuery) ([]domain.Borrow, int, error) {
	return a.listBorrows(q, true)
}

func (a *App) listBorrows(q ListBorrowsQuery, withUsers bool) ([]domain.Borrow, int, error) {
	var status domain.BorrowStatus
	if q.Status != "" {
		parsed, ok := parseBorrowStatus(q.Status)
		if !ok {
			return nil, 0, ValidationError("status must be borrowed, overdue or returned")
		}
		status = parsed
	}
	page, limit := normalizePaging(q.Page, q.Limit)
	borrows, total, err := a.store.ListBorrows(store.BorrowQuery{
		UserID: q.UserID,
		BookID: q.BookID,
		Status: status,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list borrows: %w", err)
	}
	a.deriveStatuses(borrows)
	if err := a.attachBooks(borrows); err != nil {
		return nil, 0, err
	}
	if withUsers {
		if err := a.attachUsers(borrows); err != nil {
			return nil, 0, err
		}
	}
	return borrows, total, nil
}

// SweepOverdue flips every lapsed borrowed record to overdue and reports how
// many changed. Safe to run repeatedly.
func (a *App) SweepOverdue(ctx context.Context) (int, error) {
	now := a.now()
	count, err := a.store.MarkOverdue(now)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	if count > 0 {
		a.publish(ctx, notify.Event{
			Kind:       notify.EventBorrowOverdue,
			SweptCount: count,
			OccurredAt: now,
		})
	}
	return count, nil
}

// RunSweeper runs SweepOverdue on the given interval until ctx is cancelled.
func (a *App) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.SweepOverdue(ctx)
			if err != nil {
				slog.Error("overdue sweep failed", "err", err)
				continue
			}
			if count > 0 {
				slog.Info("overdue sweep", "transitioned", count)
			}
		}
	}
}

// BorrowStats aggregates the ledger for the admin dashboard.
func (a *App) BorrowStats() (domain.BorrowStats, error) {
	stats, err := a.store.BorrowStats()
	if err != nil {
		return domain.BorrowStats{}, fmt.Errorf("borrow stats: %w", err)
	}
	return stats, nil
}

func (a *App) activeBorrowsForUser(userID string) ([]domain.Borrow, error) {
	all, _, err := a.store.ListBorrows(store.BorrowQuery{UserID: userID, Page: 1, Limit: maxPageLimit})
	if err != nil {
		return nil, fmt.Errorf("list borrows: %w", err)
	}
	active := all[:0]
	for _, b := range all {
		if b.Active() {
			active = append(active, b)
		}
	}
	a.deriveStatuses(active)
	if err := a.attachBooks(active); err != nil {
		return nil, err
	}
	return active, nil
}

func (a *App) deriveStatuses(borrows []domain.Borrow) {
	now := a.now()
	for i := range borrows {
		borrows[i].Status = effectiveStatus(borrows[i].Status, borrows[i].DueDate, now)
	}
}

func (a *App) attachBooks(borrows []domain.Borrow) error {
	books := make(map[string]*domain.Book)
	for i := range borrows {
		id := borrows[i].BookID
		book, ok := books[id]
		if !ok {
			fetched, found, err := a.store.GetBookByID(id)
			if err != nil {
				return fmt.Errorf("get book: %w", err)
			}
			if found {
				book = &fetched
			}
			books[id] = book
		}
		borrows[i].Book = book
	}
	return nil
}

func (a *App) attachUsers(borrows []domain.Borrow) error {
	users := make(map[string]*domain.UserSummary)
	for i := range borrows {
		id := borrows[i].UserID
		summary, ok := users[id]
		if !ok {
			fetched, found, err := a.store.GetUserByID(id)
			if err != nil {
				return fmt.Errorf("get user: %w", err)
			}
			if found {
				s := fetched.Summary()
				summary = &s
			}
			users[id] = summary
		}
		borrows[i].User = summary
	}
	return nil
}

func (a *App) publish(ctx context.Context, ev notify.Event) {
	if err := a.events.Publish(ctx, ev); err != nil {
		util.LoggerFromContext(ctx).Warn("publish event failed", "kind", ev.Kind, "err", err)
	}
}

func parseBorrowStatus(status string) (domain.BorrowStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(domain.StatusBorrowed):
		return domain.StatusBorrowed, true
	case string(domain.StatusOverdue):
		return domain.StatusOverdue, true
	case string(domain.StatusReturned):
		return domain.StatusReturned, true
	default:
		return "", false
	}
}
