package server

import (
	"net/http"

	"libraryhub/internal/app"
	"libraryhub/internal/ratelimit"
	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Optional limiters for the unauthenticated auth endpoints.
	RegisterLimiter *ratelimit.FixedWindowLimiter
	LoginLimiter    *ratelimit.FixedWindowLimiter

	// Trusted proxy ranges for client IP resolution. Nil trusts none.
	TrustedProxies *util.TrustedProxies

	// Upper bound for cover image uploads in bytes.
	MaxCoverBytes int64
}

// Server exposes the HTTP endpoints of the library service.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	trustedProxies  *util.TrustedProxies
	maxCoverBytes   int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		registerLimiter: cfg.RegisterLimiter,
		loginLimiter:    cfg.LoginLimiter,
		trustedProxies:  cfg.TrustedProxies,
		maxCoverBytes:   cfg.MaxCoverBytes,
	}
	if s.maxCoverBytes <= 0 {
		s.maxCoverBytes = 5 << 20
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped in the standard middleware
// chain.
func (s *Server) Router() http.Handler {
	var handler http.Handler = s.mux
	handler = util.WithRequestLog(handler)
	handler = util.WithRequestID(handler)
	handler = util.WithCORS(handler)
	handler = util.WithSecurityHeaders(handler)
	return handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/register", s.rateLimited(s.registerLimiter, s.handleRegister))
	s.mux.HandleFunc("/api/auth/login", s.rateLimited(s.loginLimiter, s.handleLogin))
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/auth/profile", s.authenticated(s.handleProfile))

	// catalog
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.Handle("/api/books/stats", s.adminOnly(s.handleBookStats))
	s.mux.HandleFunc("/api/books/", s.handleBookByID)

	// borrow ledger
	s.mux.Handle("/api/borrow/my", s.authenticated(s.handleMyBorrows))
	s.mux.Handle("/api/borrow/all", s.adminOnly(s.handleAllBorrows))
	s.mux.Handle("/api/borrow/stats", s.adminOnly(s.handleBorrowStats))
	s.mux.Handle("/api/borrow/update-overdue", s.adminOnly(s.handleUpdateOverdue))
	s.mux.Handle("/api/borrow/", s.authenticated(s.handleBorrow))
	s.mux.Handle("/api/return/", s.authenticated(s.handleReturn))

	// user administration
	s.mux.Handle("/api/users", s.adminOnly(s.handleUsers))
	s.mux.Handle("/api/users/stats", s.adminOnly(s.handleUserStats))
	s.mux.Handle("/api/users/", s.adminOnly(s.handleUserByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

// requireAdmin is the in-handler variant for routes that mix public and
// admin-only methods on one path.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	if user.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return domain.User{}, false
	}
	return user, true
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

func (s *Server) rateLimited(limiter *ratelimit.FixedWindowLimiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(util.ClientIP(r, s.trustedProxies)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}
