package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"libraryhub/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	if err := db.AutoMigrate(&UserModel{}, &BookModel{}, &BorrowModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// translateError maps driver-level unique violations onto the shared sentinel
// so callers can treat both adapters the same way.
func translateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

// users

func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return translateError(s.db.Create(&model).Error)
}

func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) ListUsers(q UserQuery) ([]domain.User, int, error) {
	base := s.db.Model(&UserModel{})
	if q.Search != "" {
		like := "%" + q.Search + "%"
		base = base.Where("name ILIKE ? OR email ILIKE ?", like, like)
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []UserModel
	if err := base.Order("created_at DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, int(total), nil
}

func (s *GormStore) UpdateUser(u domain.User) error {
	model := userToModel(u)
	err := s.db.Model(&UserModel{}).Where("id = ?", u.ID).Updates(map[string]any{
		"name":          model.Name,
		"email":         model.Email,
		"password_hash": model.PasswordHash,
		"role":          model.Role,
		"updated_at":    model.UpdatedAt,
	}).Error
	return translateError(err)
}

func (s *GormStore) DeleteUser(id string) error {
	return s.db.Delete(&UserModel{}, "id = ?", id).Error
}

func (s *GormStore) UserStats() (domain.UserStats, error) {
	var stats domain.UserStats
	var total, admins int64
	if err := s.db.Model(&UserModel{}).Count(&total).Error; err != nil {
		return stats, err
	}
	if err := s.db.Model(&UserModel{}).Where("role = ?", string(domain.RoleAdmin)).Count(&admins).Error; err != nil {
		return stats, err
	}
	stats.TotalUsers = int(total)
	stats.AdminUsers = int(admins)
	stats.RegularUsers = int(total - admins)
	return stats, nil
}

// books

func (s *GormStore) CreateBook(b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	return translateError(s.db.Create(&model).Error)
}

func (s *GormStore) GetBookByID(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

func (s *GormStore) GetBookByISBN(isbn string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.Where("isbn = ?", isbn).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

func (s *GormStore) ListBooks(q BookQuery) ([]domain.Book, int, error) {
	base := s.db.Model(&BookModel{})
	if q.Search != "" {
		like := "%" + q.Search + "%"
		base = base.Where("title ILIKE ? OR author ILIKE ? OR isbn ILIKE ?", like, like, like)
	}
	if q.Category != "" {
		base = base.Where("category ILIKE ?", "%"+q.Category+"%")
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BookModel
	if err := base.Order("created_at DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, int(total), nil
}

func (s *GormStore) UpdateBook(b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	updateErr := s.db.Model(&BookModel{}).Where("id = ?", b.ID).Updates(map[string]any{
		"title":            model.Title,
		"author":           model.Author,
		"category":         model.Category,
		"isbn":             model.ISBN,
		"total_copies":     model.TotalCopies,
		"available_copies": model.AvailableCopies,
		"description":      model.Description,
		"published_year":   model.PublishedYear,
		"attributes":       model.Attributes,
		"updated_at":       model.UpdatedAt,
	}).Error
	return translateError(updateErr)
}

func (s *GormStore) DeleteBook(id string) error {
	return s.db.Delete(&BookModel{}, "id = ?", id).Error
}

func (s *GormStore) SetBookCover(id, coverKey string) error {
	return s.db.Model(&BookModel{}).Where("id = ?", id).Updates(map[string]any{
		"cover_key":  coverKey,
		"updated_at": time.Now().UTC(),
	}).Error
}

func (s *GormStore) BookStats() (domain.BookStats, error) {
	var stats domain.BookStats
	var total int64
	if err := s.db.Model(&BookModel{}).Count(&total).Error; err != nil {
		return stats, err
	}
	type sums struct {
		TotalCopies     int
		AvailableCopies int
	}
	var agg sums
	if err := s.db.Model(&BookModel{}).
		Select("COALESCE(SUM(total_copies), 0) AS total_copies, COALESCE(SUM(available_copies), 0) AS available_copies").
		Scan(&agg).Error; err != nil {
		return stats, err
	}
	stats.TotalBooks = int(total)
	stats.TotalCopies = agg.TotalCopies
	stats.AvailableCopies = agg.AvailableCopies
	stats.BorrowedCopies = agg.TotalCopies - agg.AvailableCopies
	return stats, nil
}

// DecrementAvailableCopies is the availability gate for borrowing: the
// conditional update keeps two concurrent borrows of the last copy from both
// succeeding.
func (s *GormStore) DecrementAvailableCopies(bookID string) (bool, error) {
	res := s.db.Model(&BookModel{}).
		Where("id = ? AND available_copies > 0", bookID).
		Updates(map[string]any{
			"available_copies": gorm.Expr("available_copies - 1"),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) IncrementAvailableCopies(bookID string) (bool, error) {
	res := s.db.Model(&BookModel{}).
		Where("id = ? AND available_copies < total_copies", bookID).
		Updates(map[string]any{
			"available_copies": gorm.Expr("available_copies + 1"),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// borrow ledger

func (s *GormStore) CreateBorrow(b domain.Borrow) error {
	model := borrowToModel(b)
	return s.db.Create(&model).Error
}

func (s *GormStore) GetActiveBorrow(userID, bookID string) (domain.Borrow, bool, error) {
	var model BorrowModel
	err := s.db.Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, activeStatuses).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Borrow{}, false, nil
		}
		return domain.Borrow{}, false, err
	}
	return borrowFromModel(model), true, nil
}

func (s *GormStore) CountActiveBorrows(userID string) (int, error) {
	var count int64
	err := s.db.Model(&BorrowModel{}).
		Where("user_id = ? AND status IN ?", userID, activeStatuses).
		Count(&count).Error
	return int(count), err
}

func (s *GormStore) HasActiveBorrowsForBook(bookID string) (bool, error) {
	var count int64
	err := s.db.Model(&BorrowModel{}).
		Where("book_id = ? AND status IN ?", bookID, activeStatuses).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) HasActiveBorrowsForUser(userID string) (bool, error) {
	var count int64
	err := s.db.Model(&BorrowModel{}).
		Where("user_id = ? AND status IN ?", userID, activeStatuses).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) UpdateBorrow(b domain.Borrow) error {
	model := borrowToModel(b)
	return s.db.Model(&BorrowModel{}).Where("id = ?", b.ID).Updates(map[string]any{
		"return_date": model.ReturnDate,
		"status":      model.Status,
		"fine":        model.Fine,
		"updated_at":  model.UpdatedAt,
	}).Error
}

func (s *GormStore) ListBorrows(q BorrowQuery) ([]domain.Borrow, int, error) {
	base := s.db.Model(&BorrowModel{})
	if q.UserID != "" {
		base = base.Where("user_id = ?", q.UserID)
	}
	if q.BookID != "" {
		base = base.Where("book_id = ?", q.BookID)
	}
	if q.Status != "" {
		base = base.Where("status = ?", string(q.Status))
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BorrowModel
	if err := base.Order("created_at DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	borrows := make([]domain.Borrow, 0, len(models))
	for _, m := range models {
		borrows = append(borrows, borrowFromModel(m))
	}
	return borrows, int(total), nil
}

func (s *GormStore) MarkOverdue(now time.Time) (int, error) {
	res := s.db.Model(&BorrowModel{}).
		Where("status = ? AND due_date < ?", string(domain.StatusBorrowed), now).
		Updates(map[string]any{
			"status":     string(domain.StatusOverdue),
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) BorrowStats() (domain.BorrowStats, error) {
	var stats domain.BorrowStats
	count := func(query *gorm.DB) (int, error) {
		var n int64
		if err := query.Count(&n).Error; err != nil {
			return 0, err
		}
		return int(n), nil
	}
	var err error
	if stats.TotalBorrows, err = count(s.db.Model(&BorrowModel{})); err != nil {
		return stats, err
	}
	if stats.ActiveBorrows, err = count(s.db.Model(&BorrowModel{}).Where("status IN ?", activeStatuses)); err != nil {
		return stats, err
	}
	if stats.OverdueBorrows, err = count(s.db.Model(&BorrowModel{}).Where("status = ?", string(domain.StatusOverdue))); err != nil {
		return stats, err
	}
	if stats.ReturnedBorrows, err = count(s.db.Model(&BorrowModel{}).Where("status = ?", string(domain.StatusReturned))); err != nil {
		return stats, err
	}
	var fines struct{ Total int64 }
	if err := s.db.Model(&BorrowModel{}).
		Select("COALESCE(SUM(fine), 0) AS total").
		Where("fine > 0").
		Scan(&fines).Error; err != nil {
		return stats, err
	}
	stats.TotalFines = fines.Total
	return stats, nil
}
