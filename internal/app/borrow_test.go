package app

import (
	"context"
	"testing"
	"time"

	"libraryhub/internal/notify"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type capturingPublisher struct {
	events []notify.Event
}

func (p *capturingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.events = append(p.events, ev)
	return nil
}
func (p *capturingPublisher) Close() error { return nil }

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *testClock, *capturingPublisher) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	memStore := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret-at-least-32-bytes-long!", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	events := &capturingPublisher{}
	a, err := New(Config{
		Store:    memStore,
		Sessions: sessions,
		Events:   events,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, memStore, clock, events
}

func seedUser(t *testing.T, a *App, name, email string) domain.User {
	t.Helper()
	user, _, err := a.Register(name, email, "Passw0rd!")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func seedBook(t *testing.T, a *App, title, isbn string, copies int) domain.Book {
	t.Helper()
	book, err := a.CreateBook(CreateBookRequest{
		Title:       title,
		Author:      "Author",
		Category:    "Fiction",
		ISBN:        isbn,
		TotalCopies: &copies,
	})
	if err != nil {
		t.Fatalf("create book %s: %v", isbn, err)
	}
	return book
}

func TestBorrowDecrementsAvailableCopies(t *testing.T) {
	a, _, _, events := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")
	book := seedBook(t, a, "Dune", "isbn-1", 3)

	borrow, err := a.BorrowBook(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if borrow.Status != domain.StatusBorrowed {
		t.Fatalf("expected status borrowed, got %s", borrow.Status)
	}
	if want := borrow.BorrowDate.Add(14 * 24 * time.Hour); !borrow.DueDate.Equal(want) {
		t.Fatalf("expected due date %v, got %v", want, borrow.DueDate)
	}

	got, err := a.GetBook(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if got.AvailableCopies != 2 {
		t.Fatalf("expected 2 available copies, got %d", got.AvailableCopies)
	}
	if len(events.events) != 1 || events.events[0].Kind != notify.EventBorrowCreated {
		t.Fatalf("expected one borrow.created event, got %+v", events.events)
	}
}

func TestBorrowUnknownBookNotFound(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")

	_, err := a.BorrowBook(context.Background(), user, "missing")
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestBorrowLastCopyExhaustsAvailability(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	u1 := seedUser(t, a, "One", "one@example.com")
	u2 := seedUser(t, a, "Two", "two@example.com")
	book := seedBook(t, a, "Solaris", "isbn-2", 1)

	if _, err := a.BorrowBook(context.Background(), u1, book.ID); err != nil {
		t.Fatalf("first borrow: %v", err)
	}
	_, err := a.BorrowBook(context.Background(), u2, book.ID)
	if KindOf(err) != KindUnavailable {
		t.Fatalf("expected Unavailable for exhausted copies, got %v", err)
	}
}

func TestDuplicateActiveBorrowConflicts(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")
	book := seedBook(t, a, "Hyperion", "isbn-3", 5)

	if _, err := a.BorrowBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("first borrow: %v", err)
	}
	_, err := a.BorrowBook(context.Background(), user, book.ID)
	if KindOf(err) != KindConflict {
		t.Fatalf("expected Conflict for duplicate active borrow, got %v", err)
	}

	// After returning, the same book can be borrowed again.
	if _, err := a.ReturnBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := a.BorrowBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("re-borrow after return: %v", err)
	}
}

func TestBorrowLimitEnforced(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	user := seedUser(t, a, "Hoarder", "hoarder@example.com")
	for i := 0; i < 5; i++ {
		book := seedBook(t, a, "Vol", "isbn-limit-"+string(rune('a'+i)), 1)
		if _, err := a.BorrowBook(context.Background(), user, book.ID); err != nil {
			t.Fatalf("borrow %d: %v", i, err)
		}
	}
	extra := seedBook(t, a, "One Too Many", "isbn-limit-extra", 1)
	_, err := a.BorrowBook(context.Background(), user, extra.ID)
	if KindOf(err) != KindLimitExceeded {
		t.Fatalf("expected LimitExceeded at 5 active borrows, got %v", err)
	}

	// Returning one frees a slot.
	first, _, listErr := a.MyBorrows(user, ListBorrowsQuery{})
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if _, err := a.ReturnBook(context.Background(), user, first[0].BookID); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := a.BorrowBook(context.Background(), user, extra.ID); err != nil {
		t.Fatalf("borrow after freeing slot: %v", err)
	}
}

func TestReturnOnTimeHasNoFine(t *testing.T) {
	a, _, clock, events := newTestApp(t)
	user := seedUser(t, a, "Punctual", "ontime@example.com")
	book := seedBook(t, a, "Foundation", "isbn-4", 2)

	if _, err := a.BorrowBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	clock.Advance(14 * 24 * time.Hour) // exactly the due instant

	returned, err := a.ReturnBook(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Fine != 0 {
		t.Fatalf("expected no fine for on-time return, got %d", returned.Fine)
	}
	if returned.Status != domain.StatusReturned {
		t.Fatalf("expected returned status, got %s", returned.Status)
	}
	if returned.ReturnDate == nil || !returned.ReturnDate.Equal(clock.Now()) {
		t.Fatalf("expected return date %v, got %v", clock.Now(), returned.ReturnDate)
	}

	got, _ := a.GetBook(book.ID)
	if got.AvailableCopies != 2 {
		t.Fatalf("expected copies restored to 2, got %d", got.AvailableCopies)
	}
	last := events.events[len(events.events)-1]
	if last.Kind != notify.EventBorrowReturned || last.Fine != 0 {
		t.Fatalf("expected borrow.returned with no fine, got %+v", last)
	}
}

func TestLateFineCharging(t *testing.T) {
	cases := []struct {
		name string
		late time.Duration
		fine int64
	}{
		{"one millisecond late", time.Millisecond, 5},
		{"one day exactly", 24 * time.Hour, 5},
		{"one day and a second", 24*time.Hour + time.Second, 10},
		{"three days", 3 * 24 * time.Hour, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _, clock, _ := newTestApp(t)
			user := seedUser(t, a, "Late", "late@example.com")
			book := seedBook(t, a, "Ubik", "isbn-5", 1)

			if _, err := a.BorrowBook(context.Background(), user, book.ID); err != nil {
				t.Fatalf("borrow: %v", err)
			}
			clock.Advance(14*24*time.Hour + tc.late)

			returned, err := a.ReturnBook(context.Background(), user, book.ID)
			if err != nil {
				t.Fatalf("return: %v", err)
			}
			if returned.Fine != tc.fine {
				t.Fatalf("expected fine %d, got %d", tc.fine, returned.Fine)
			}
		})
	}
}

func TestDoubleReturnNotFound(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")
	book := seedBook(t, a, "Dawn", "isbn-6", 1)

	if _, err := a.BorrowBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := a.ReturnBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("first return: %v", err)
	}
	_, err := a.ReturnBook(context.Background(), user, book.ID)
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound on double return, got %v", err)
	}

	got, _ := a.GetBook(book.ID)
	if got.AvailableCopies != 1 {
		t.Fatalf("double return must not inflate copies, got %d", got.AvailableCopies)
	}
}

func TestOverdueDerivedOnReadBeforeSweep(t *testing.T) {
	a, _, clock, _ := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")
	book := seedBook(t, a, "Kindred", "isbn-7", 1)

	if _, err := a.BorrowBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	clock.Advance(15 * 24 * time.Hour)

	borrows, _, err := a.MyBorrows(user, ListBorrowsQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(borrows) != 1 || borrows[0].Status != domain.StatusOverdue {
		t.Fatalf("expected derived overdue status, got %+v", borrows)
	}
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	a, _, clock, events := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")
	b1 := seedBook(t, a, "A", "isbn-8", 1)
	b2 := seedBook(t, a, "B", "isbn-9", 1)

	if _, err := a.BorrowBook(context.Background(), user, b1.ID); err != nil {
		t.Fatalf("borrow b1: %v", err)
	}
	if _, err := a.BorrowBook(context.Background(), user, b2.ID); err != nil {
		t.Fatalf("borrow b2: %v", err)
	}
	clock.Advance(20 * 24 * time.Hour)

	count, err := a.SweepOverdue(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 transitions, got %d", count)
	}
	count, err = a.SweepOverdue(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if count != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", count)
	}

	var overdueEvents int
	for _, ev := range events.events {
		if ev.Kind == notify.EventBorrowOverdue {
			overdueEvents++
			if ev.SweptCount != 2 {
				t.Fatalf("expected swept count 2, got %d", ev.SweptCount)
			}
		}
	}
	if overdueEvents != 1 {
		t.Fatalf("expected exactly one borrow.overdue event, got %d", overdueEvents)
	}
}

// Three users on a two-copy book: U1 returns late and pays, U2 returns on
// time, U3 borrows the freed copy.
func TestTwoCopyContentionScenario(t *testing.T) {
	a, _, clock, _ := newTestApp(t)
	u1 := seedUser(t, a, "U1", "u1@example.com")
	u2 := seedUser(t, a, "U2", "u2@example.com")
	u3 := seedUser(t, a, "U3", "u3@example.com")
	book := seedBook(t, a, "Contested", "isbn-10", 2)

	if _, err := a.BorrowBook(context.Background(), u1, book.ID); err != nil {
		t.Fatalf("u1 borrow: %v", err)
	}
	if _, err := a.BorrowBook(context.Background(), u2, book.ID); err != nil {
		t.Fatalf("u2 borrow: %v", err)
	}
	if _, err := a.BorrowBook(context.Background(), u3, book.ID); KindOf(err) != KindUnavailable {
		t.Fatalf("u3 should see no copies available, got %v", err)
	}

	clock.Advance(10 * 24 * time.Hour)
	returned, err := a.ReturnBook(context.Background(), u2, book.ID)
	if err != nil {
		t.Fatalf("u2 return: %v", err)
	}
	if returned.Fine != 0 {
		t.Fatalf("u2 returned on time, fine should be 0, got %d", returned.Fine)
	}

	if _, err := a.BorrowBook(context.Background(), u3, book.ID); err != nil {
		t.Fatalf("u3 borrow of freed copy: %v", err)
	}

	clock.Advance(10 * 24 * time.Hour) // u1 now 6 days late
	returned, err = a.ReturnBook(context.Background(), u1, book.ID)
	if err != nil {
		t.Fatalf("u1 return: %v", err)
	}
	if returned.Fine != 30 {
		t.Fatalf("u1 six days late, expected fine 30, got %d", returned.Fine)
	}

	got, _ := a.GetBook(book.ID)
	if got.AvailableCopies != 1 {
		t.Fatalf("one copy should remain out with u3, got %d available", got.AvailableCopies)
	}
}

func TestConcurrentBorrowOfLastCopy(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	book := seedBook(t, a, "Single", "isbn-11", 1)
	users := make([]domain.User, 8)
	for i := range users {
		users[i] = seedUser(t, a, "R", "race"+string(rune('a'+i))+"@example.com")
	}

	results := make(chan error, len(users))
	for _, u := range users {
		go func(u domain.User) {
			_, err := a.BorrowBook(context.Background(), u, book.ID)
			results <- err
		}(u)
	}

	var wins int
	for range users {
		if err := <-results; err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one borrower should win the last copy, got %d", wins)
	}
	got, _ := a.GetBook(book.ID)
	if got.AvailableCopies != 0 {
		t.Fatalf("expected 0 available copies, got %d", got.AvailableCopies)
	}
}

func TestAllBorrowsEnrichment(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")
	book := seedBook(t, a, "Annotated", "isbn-12", 1)

	if _, err := a.BorrowBook(context.Background(), user, book.ID); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	borrows, total, err := a.AllBorrows(ListBorrowsQuery{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != 1 || len(borrows) != 1 {
		t.Fatalf("expected one record, got %d/%d", len(borrows), total)
	}
	if borrows[0].Book == nil || borrows[0].Book.Title != "Annotated" {
		t.Fatalf("expected attached book, got %+v", borrows[0].Book)
	}
	if borrows[0].User == nil || borrows[0].User.Email != "reader@example.com" {
		t.Fatalf("expected attached user summary, got %+v", borrows[0].User)
	}
}

func TestBorrowStatsAggregation(t *testing.T) {
	a, _, clock, _ := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")
	b1 := seedBook(t, a, "A", "isbn-13", 1)
	b2 := seedBook(t, a, "B", "isbn-14", 1)

	if _, err := a.BorrowBook(context.Background(), user, b1.ID); err != nil {
		t.Fatalf("borrow b1: %v", err)
	}
	clock.Advance(16 * 24 * time.Hour)
	if _, err := a.ReturnBook(context.Background(), user, b1.ID); err != nil {
		t.Fatalf("return b1: %v", err)
	}
	if _, err := a.BorrowBook(context.Background(), user, b2.ID); err != nil {
		t.Fatalf("borrow b2: %v", err)
	}

	stats, err := a.BorrowStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBorrows != 2 || stats.ActiveBorrows != 1 || stats.ReturnedBorrows != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.TotalFines != 10 {
		t.Fatalf("two days late at 5/day, expected total fines 10, got %d", stats.TotalFines)
	}
}

func TestMyBorrowsStatusFilter(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	user := seedUser(t, a, "Reader", "reader@example.com")
	b1 := seedBook(t, a, "A", "isbn-15", 1)
	b2 := seedBook(t, a, "B", "isbn-16", 1)

	if _, err := a.BorrowBook(context.Background(), user, b1.ID); err != nil {
		t.Fatalf("borrow b1: %v", err)
	}
	if _, err := a.BorrowBook(context.Background(), user, b2.ID); err != nil {
		t.Fatalf("borrow b2: %v", err)
	}
	if _, err := a.ReturnBook(context.Background(), user, b1.ID); err != nil {
		t.Fatalf("return b1: %v", err)
	}

	returned, total, err := a.MyBorrows(user, ListBorrowsQuery{Status: "returned"})
	if err != nil {
		t.Fatalf("list returned: %v", err)
	}
	if total != 1 || len(returned) != 1 || returned[0].BookID != b1.ID {
		t.Fatalf("expected only the returned record, got %+v", returned)
	}

	if _, _, err := a.MyBorrows(user, ListBorrowsQuery{Status: "bogus"}); KindOf(err) != KindValidation {
		t.Fatalf("expected Validation for unknown status, got %v", err)
	}
}
