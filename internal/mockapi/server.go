// Package mockapi serves an in-memory rendition of the remote operations API.
//
// It backs the CLI's mock-api command, the scenario harness and the api
// client tests. Tokens are deterministic ("access-<user>-<n>") so recorded
// traces are stable across runs.
package mockapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/opsdesk/internal/model"
)

// Server is the mock API.
//
// Thread-safety: Server is safe for concurrent use.
type Server struct {
	mu           sync.Mutex
	fixture      Fixture
	access       map[string]int64
	refresh      map[string]int64
	resetTokens  map[string]bool
	issued       int
	refreshCalls int
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server over f.
func New(f Fixture, opts ...Option) *Server {
	s := &Server{
		fixture:     f,
		access:      make(map[string]int64),
		refresh:     make(map[string]int64),
		resetTokens: make(map[string]bool),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, tok := range f.ResetTokens {
		s.resetTokens[tok] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router. Routes live under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/login/", s.login)
		r.Post("/user/token/refresh/", s.refreshTokens)
		r.Post("/user/forgot-password", s.forgotPassword)
		r.Post("/user/verify-token", s.verifyToken)
		r.Post("/user/reset-password", s.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Get("/user/Institutions/", s.attachedInstitutions)
			r.Get("/user/{id}/", s.user)
			r.Get("/institution/{id}/", s.institution)
		})
	})
	return r
}

// ExpireAccessTokens invalidates every issued access token. Refresh tokens
// stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// RefreshCalls returns how many refresh requests were served.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// SetInstitution replaces (or adds) an institution record.
func (s *Server) SetInstitution(inst model.Institution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.fixture.Institutions {
		if s.fixture.Institutions[i].ID == inst.ID {
			s.fixture.Institutions[i] = inst
			return
		}
	}
	s.fixture.Institutions = append(s.fixture.Institutions, inst)
}

type userKey struct{}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("mockapi", "method", r.Method, "path", r.URL.Path, "status", ww.Status())
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tok == "" {
			writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.", "")
			return
		}
		s.mu.Lock()
		id, found := s.access[tok]
		s.mu.Unlock()
		if !found {
			writeError(w, http.StatusUnauthorized, "Given token not valid for any token type", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), id)))
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.findAccountLocked(req.Email)
	if acct == nil || acct.Password != req.Password {
		writeError(w, http.StatusBadRequest, "Invalid email or password", string(model.CodeInvalidCredentials))
		return
	}
	switch acct.Status {
	case StatusBlocked:
		writeError(w, http.StatusForbidden, "Your account has been blocked by an administrator", string(model.CodeBlockedByAdmin))
		return
	case StatusUnverified:
		writeError(w, http.StatusForbidden, "Please verify your email address", string(model.CodeSelfCreatedUnverified))
		return
	case StatusAdminUnverified:
		writeError(w, http.StatusForbidden, "Please set your password to activate your account", string(model.CodeAdminCreatedUnverified))
		return
	}

	user := acct.User
	writeJSON(w, http.StatusOK, model.LoginResponse{
		Tokens:               s.issueLocked(user.ID),
		User:                 &user,
		InstitutionsAttached: s.institutionsOfLocked(acct),
	})
}

func (s *Server) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	id, ok := s.refresh[req.Refresh]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired", "")
		return
	}
	delete(s.refresh, req.Refresh)
	writeJSON(w, http.StatusOK, map[string]model.Tokens{"tokens": s.issueLocked(id)})
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found.", "")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.fixture.Users {
		if a.User.ID == id {
			writeJSON(w, http.StatusOK, a.User)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Not found.", "")
}

func (s *Server) institution(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found.", "")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst := model.FindInstitution(s.fixture.Institutions, id); inst != nil {
		writeJSON(w, http.StatusOK, inst)
		return
	}
	writeError(w, http.StatusNotFound, "Not found.", "")
}

func (s *Server) attachedInstitutions(w http.ResponseWriter, r *http.Request) {
	id := userFrom(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.fixture.Users {
		if s.fixture.Users[i].User.ID == id {
			writeJSON(w, http.StatusOK, s.institutionsOfLocked(&s.fixture.Users[i]))
			return
		}
	}
	writeJSON(w, http.StatusOK, []model.Institution{})
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		FrontendURL string `json:"frontend_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required", "")
		return
	}
	// Unknown addresses get the same answer so accounts cannot be probed.
	writeJSON(w, http.StatusOK, map[string]string{"detail": "If the account exists, a reset link has been sent."})
}

func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	valid := s.resetTokens[req.Token]
	s.mu.Unlock()
	if !valid {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "detail": "Invalid or expired token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body", "")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resetTokens[req.Token] {
		writeError(w, http.StatusBadRequest, "Invalid or expired token", "")
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "New password is required", "")
		return
	}
	delete(s.resetTokens, req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password has been reset successfully."})
}

func (s *Server) findAccountLocked(email string) *Account {
	want := model.NormalizeEmail(email)
	for i := range s.fixture.Users {
		if model.NormalizeEmail(s.fixture.Users[i].User.Email) == want {
			return &s.fixture.Users[i]
		}
	}
	return nil
}

func (s *Server) institutionsOfLocked(a *Account) []model.Institution {
	out := []model.Institution{}
	for _, inst := range s.fixture.Institutions {
		if slices.Contains(a.Institutions, inst.ID) {
			out = append(out, inst)
		}
	}
	return out
}

func (s *Server) issueLocked(userID int64) model.Tokens {
	s.issued++
	t := model.Tokens{
		Access:  fmt.Sprintf("access-%d-%d", userID, s.issued),
		Refresh: fmt.Sprintf("refresh-%d-%d", userID, s.issued),
	}
	s.access[t.Access] = userID
	s.refresh[t.Refresh] = userID
	return t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail, code string) {
	body := map[string]string{"detail": detail}
	if code != "" {
		body["custom_code"] = code
	}
	writeJSON(w, status, body)
}
