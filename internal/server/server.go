package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/internal/app"
	"docchat/internal/chat"
	"docchat/internal/ratelimit"
	"docchat/internal/store"
	"docchat/internal/util"
	"docchat/pkg/auth"
	"docchat/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Sessions *chat.Orchestrator
	// StaticDir enables /static/ file serving when non-empty. Only the
	// local-disk store keeps uploads reachable this way.
	StaticDir      string
	MaxUploadBytes int64

	// Redis enables signup/login rate limiting when set.
	Redis                    *redis.Client
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
}

// Server exposes HTTP and websocket endpoints for the backend.
type Server struct {
	app            *app.App
	sessions       *chat.Orchestrator
	mux            *http.ServeMux
	staticDir      string
	maxUploadBytes int64
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session orchestrator required")
	}
	s := &Server{
		app:            cfg.App,
		sessions:       cfg.Sessions,
		mux:            http.NewServeMux(),
		staticDir:      cfg.StaticDir,
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
	}
	if cfg.Redis != nil {
		signupLimit := cfg.SignupRateLimitPerMinute
		if signupLimit <= 0 {
			signupLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "docchat:ratelimit:"+name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.signupLimiter, err = newLimiter("signup", signupLimit); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// identity
	s.mux.HandleFunc("/signup", s.handleSignup)
	s.mux.HandleFunc("/login", s.handleLogin)

	// chat PDFs (auth required)
	s.mux.Handle("/upload-pdf", s.authenticated(s.handleUploadPDF))
	s.mux.Handle("/chat-pdf", s.authenticated(s.handleListPDFs))
	s.mux.Handle("/chat-pdf/", s.authenticated(s.handlePDFByID))
	s.mux.Handle("/admin/chat-pdf", s.authenticated(s.handleAdminListPDFs))

	// streaming sessions
	s.mux.HandleFunc("/ws/", s.handleWebsocket)

	if s.staticDir != "" {
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.Authenticate(r.Context(), token)
		if err != nil {
			s.audit(r, "authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.audit(r, "authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "signup", "rate_limited")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.audit(r, "signup", "fail", "reason", "missing_fields")
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	user, err := s.app.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.audit(r, "signup", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"status": "success",
		"detail": "User created successfully",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "login", "rate_limited")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.audit(r, "login", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "login", "success", "username", req.Username)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "success",
		"detail":       "User logged in successfully",
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	record, err := s.app.UploadPDF(r.Context(), user, header.Filename, contentType, file)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListPDFs(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListPDFs(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": docs,
		"count": len(docs),
	})
}

func (s *Server) handleAdminListPDFs(w http.ResponseWriter, r *http.Request, user domain.User) {
	_ = user
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page := queryInt(r, "page", 1)
	pageLimit := queryInt(r, "page_limit", 20)
	search := r.URL.Query().Get("search")
	docs, total, err := s.app.ListAllPDFs(r.Context(), page, pageLimit, search)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       docs,
		"total_items": total,
		"page":        page,
		"page_limit":  pageLimit,
	})
}

// /chat-pdf/{id}
func (s *Server) handlePDFByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	_ = user
	id := strings.TrimPrefix(r.URL.Path, "/chat-pdf/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	doc, err := s.app.DeletePDF(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		slog.Warn("missing bearer prefix", "path", r.URL.Path)
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrDuplicateUser):
		writeError(w, http.StatusBadRequest, "Username or email already exists")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
	case errors.Is(err, app.ErrNotPDF):
		writeError(w, http.StatusBadRequest, "Only PDF file is allowed")
	case errors.Is(err, app.ErrIngestionFailed):
		writeError(w, http.StatusBadRequest, "Unable to read files possibly due to issues like corruption or unsupported formats.")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "No matching record found")
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 * 1024 * 1024
	}
	return value
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		parts := strings.Split(xfwd, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}
