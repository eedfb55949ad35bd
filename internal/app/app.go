package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"libraryhub/internal/notify"
	"libraryhub/internal/util"
	"libraryhub/pkg/auth"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/storage"
	"libraryhub/pkg/store"
)

const (
	defaultSessionTTL       = 7 * 24 * time.Hour
	defaultLoanPeriodDays   = 14
	defaultFinePerDay       = 5
	defaultMaxActiveBorrows = 5
	defaultPageLimit        = 10
	maxPageLimit            = 100
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTLeeway   time.Duration
	SessionTTL  time.Duration

	LoanPeriodDays   int
	FinePerDay       int64
	MaxActiveBorrows int

	// Injection points for tests and optional infrastructure.
	Store    store.Store
	Sessions store.SessionStore
	Revoker  store.TokenRevoker
	Events   notify.Publisher
	Covers   storage.ObjectStore
	Now      func() time.Time
}

// App is the core application service wiring storage, sessions, and the
// borrow business rules together.
type App struct {
	store    store.Store
	sessions store.SessionStore
	events   notify.Publisher
	covers   storage.ObjectStore

	loanPeriod       time.Duration
	finePerDay       int64
	maxActiveBorrows int
	now              func() time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.LoanPeriodDays == 0 {
		cfg.LoanPeriodDays = defaultLoanPeriodDays
	}
	if cfg.FinePerDay == 0 {
		cfg.FinePerDay = defaultFinePerDay
	}
	if cfg.MaxActiveBorrows == 0 {
		cfg.MaxActiveBorrows = defaultMaxActiveBorrows
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		revoker := cfg.Revoker
		if revoker == nil {
			if strings.TrimSpace(cfg.RedisAddr) == "" {
				return nil, errors.New("redisAddr is required for token revocation")
			}
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		}
		var err error
		sessionStore, err = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
	}

	events := cfg.Events
	if events == nil {
		events = notify.NoopPublisher{}
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	return &App{
		store:            dataStore,
		sessions:         sessionStore,
		events:           events,
		covers:           cfg.Covers,
		loanPeriod:       time.Duration(cfg.LoanPeriodDays) * 24 * time.Hour,
		finePerDay:       cfg.FinePerDay,
		maxActiveBorrows: cfg.MaxActiveBorrows,
		now:              nowFn,
	}, nil
}

// Register creates a new account and issues a session token. The first
// registered account becomes the admin; everyone after that is a member.
func (a *App) Register(name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		return domain.User{}, "", ValidationError("name, email and password are required")
	}
	if !strings.Contains(email, "@") {
		return domain.User{}, "", ValidationError("invalid email address")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", ValidationError(err.Error())
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", Conflict("user already exists")
	}
	stats, err := a.store.UserStats()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("count users: %w", err)
	}
	role := domain.RoleMember
	if stats.TotalUsers == 0 {
		role = domain.RoleAdmin
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := a.now()
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return domain.User{}, "", Conflict("user already exists")
		}
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ValidationError("email and password are required")
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", Unauthenticated("invalid email or password")
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UserFromToken resolves a bearer token to the current user record. The user
// is re-read on every call so role changes and deletions take effect without
// re-login.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil || !ok {
		return domain.User{}, false
	}
	return user, true
}

// Profile is the authenticated user's account plus their active borrows.
type Profile struct {
	domain.User
	BorrowedBooks []domain.Borrow `json:"borrowedBooks"`
}

// GetProfile returns the caller's profile with active borrows attached.
func (a *App) GetProfile(user domain.User) (Profile, error) {
	active, err := a.activeBorrowsForUser(user.ID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: user, BorrowedBooks: active}, nil
}

// ListUsersQuery narrows the admin user listing.
type ListUsersQuery struct {
	Search string
	Page   int
	Limit  int
}

// ListUsers returns a page of users for administrators.
func (a *App) ListUsers(q ListUsersQuery) ([]domain.User, int, error) {
	page, limit := normalizePaging(q.Page, q.Limit)
	users, total, err := a.store.ListUsers(store.UserQuery{Search: q.Search, Page: page, Limit: limit})
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// UserDetail is a user together with their full borrow history.
type UserDetail struct {
	User          domain.User     `json:"user"`
	BorrowHistory []domain.Borrow `json:"borrowHistory"`
}

// GetUser returns one user and their borrow history.
func (a *App) GetUser(id string) (UserDetail, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return UserDetail{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return UserDetail{}, NotFound("user not found")
	}
	history, _, err := a.store.ListBorrows(store.BorrowQuery{UserID: id, Page: 1, Limit: maxPageLimit})
	if err != nil {
		return UserDetail{}, fmt.Errorf("list borrows: %w", err)
	}
	a.deriveStatuses(history)
	if err := a.attachBooks(history); err != nil {
		return UserDetail{}, err
	}
	return UserDetail{User: user, BorrowHistory: history}, nil
}

// UpdateUserRequest carries the partial-update fields for a user. Nil fields
// are left unchanged.
type UpdateUserRequest struct {
	Name  *string
	Email *string
	Role  *string
}

// UpdateUser applies a partial update to a user record.
func (a *App) UpdateUser(id string, req UpdateUserRequest) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return domain.User{}, NotFound("user not found")
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.User{}, ValidationError("name must not be empty")
		}
		user.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email == "" || !strings.Contains(email, "@") {
			return domain.User{}, ValidationError("invalid email address")
		}
		if email != user.Email {
			exists, err := a.store.HasUserEmail(email)
			if err != nil {
				return domain.User{}, fmt.Errorf("check email: %w", err)
			}
			if exists {
				return domain.User{}, Conflict("email already exists")
			}
			user.Email = email
		}
	}
	if req.Role != nil {
		role, ok := parseUserRole(*req.Role)
		if !ok {
			return domain.User{}, ValidationError("role must be admin or member")
		}
		user.Role = role
	}
	user.UpdatedAt = a.now()
	if err := a.store.UpdateUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return domain.User{}, Conflict("email already exists")
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// DeleteUser removes a user unless they still hold borrowed books.
func (a *App) DeleteUser(id string) error {
	_, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return NotFound("user not found")
	}
	active, err := a.store.HasActiveBorrowsForUser(id)
	if err != nil {
		return fmt.Errorf("check borrows: %w", err)
	}
	if active {
		return Conflict("cannot delete user with active borrowed books")
	}
	if err := a.store.DeleteUser(id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// UserStats aggregates account counts for the admin dashboard.
func (a *App) UserStats() (domain.UserStats, error) {
	stats, err := a.store.UserStats()
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}

func parseUserRole(role string) (domain.UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(domain.RoleMember):
		return domain.RoleMember, true
	case string(domain.RoleAdmin):
		return domain.RoleAdmin, true
	default:
		return "", false
	}
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
