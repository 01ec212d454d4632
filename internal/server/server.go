package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"studylm/internal/app"
	"studylm/internal/config"
	"studylm/internal/inspect"
	"studylm/internal/ratelimit"
	"studylm/internal/storage"
	"studylm/internal/util"
)

const chatCookieName = "chat_id"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	RedisAddr                string
	RedisPassword            string
	UploadRateLimitPerMinute int
	QuizRateLimitPerMinute   int
	MaxUploadBytes           int64
	AllowedExtensions        []string
	TrustedProxies           []string
	SSEIdleTimeout           time.Duration
}

// Server exposes HTTP endpoints for the study guide backend.
type Server struct {
	app               *app.App
	mux               *http.ServeMux
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	trustedProxies    *util.TrustedProxies
	sseIdleTimeout    time.Duration
	uploadLimiter     *ratelimit.FixedWindowLimiter
	quizLimiter       *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiting is
// enabled only when a Redis address is given; without one the limiters
// stay nil and every request passes.
func New(cfg Config) (*Server, error) {
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}

	var uploadLimiter, quizLimiter *ratelimit.FixedWindowLimiter
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		uploadLimit := cfg.UploadRateLimitPerMinute
		if uploadLimit <= 0 {
			uploadLimit = 5
		}
		quizLimit := cfg.QuizRateLimitPerMinute
		if quizLimit <= 0 {
			quizLimit = 10
		}
		uploadLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "studylm:ratelimit:upload", uploadLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init upload limiter: %w", err)
		}
		quizLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "studylm:ratelimit:quiz", quizLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init quiz limiter: %w", err)
		}
	}

	idleTimeout := cfg.SSEIdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = time.Minute
	}

	s := &Server{
		app:               cfg.App,
		mux:               http.NewServeMux(),
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedExtensions),
		trustedProxies:    trusted,
		sseIdleTimeout:    idleTimeout,
		uploadLimiter:     uploadLimiter,
		quizLimiter:       quizLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("studylm", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/upload", s.handleUpload)
	s.mux.HandleFunc("/generation-status/", s.handleGenerationStatus)
	s.mux.HandleFunc("/study-guide", s.handleStudyGuide)

	s.mux.HandleFunc("/chat", s.handleChat)
	s.mux.HandleFunc("/new-chat", s.handleNewChat)
	s.mux.HandleFunc("/send-chat", s.handleSendChat)

	s.mux.HandleFunc("/generate-quiz", s.handleGenerateQuiz)
	s.mux.HandleFunc("/quiz-status/", s.handleQuizStatus)
	s.mux.HandleFunc("/cancel-quiz/", s.handleCancelQuiz)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.uploadLimiter, "too many upload attempts") {
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	headers := r.MultipartForm.File["files[]"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	uploads := make([]app.Upload, 0, len(headers))
	var open []io.Closer
	defer func() {
		for _, c := range open {
			c.Close()
		}
	}()
	for _, header := range headers {
		if header.Filename == "" {
			writeError(w, http.StatusBadRequest, "No files selected")
			return
		}
		if !s.isExtensionAllowed(header.Filename) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", header.Filename))
			return
		}
		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		open = append(open, file)
		uploads = append(uploads, app.Upload{Filename: header.Filename, Data: file})
	}

	opID, err := s.app.StartGeneration(uploads)
	if err != nil {
		if errors.Is(err, inspect.ErrUnreadable) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"operation_id": opID,
	})
}

func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/generation-status/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	state, err := s.app.GenerationStatus(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStudyGuide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	guide, err := s.app.Guide()
	if err != nil {
		if errors.Is(err, storage.ErrGuideNotFound) {
			writeError(w, http.StatusNotFound, "Study guide not found. Please upload files first.")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, guide)
}

// handleChat ensures the caller has a chat session cookie and returns
// the selectable model catalog.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.chatID(w, r)
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  config.ChatModels,
		"default": config.DefaultChatModel,
	})
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if old, err := r.Cookie(chatCookieName); err == nil {
		s.app.ResetChat(old.Value)
	}
	s.setChatCookie(w, uuid.NewString())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSendChat(w http.ResponseWriter, r *http.Request) {
	chatID := s.chatID(w, r)
	switch r.Method {
	case http.MethodGet:
		s.handleChatStream(w, r, chatID)
	case http.MethodPost:
		s.handleChatMessage(w, r, chatID)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request, chatID string) {
	var req chatMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Model != "" {
		if _, ok := config.ChatModels[req.Model]; !ok {
			writeError(w, http.StatusBadRequest, "unknown chat model")
			return
		}
	}
	if err := s.app.SendChat(r.Context(), chatID, req.Message, req.Model); err != nil {
		if errors.Is(err, app.ErrNoMaterials) {
			writeError(w, http.StatusBadRequest, "No study materials found. Please upload files first.")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Processing started",
	})
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.quizLimiter, "too many quiz requests") {
		return
	}
	var req generateQuizRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	jobID, err := s.app.StartQuiz(r.Context(), req.QuestionCount, req.Model)
	if err != nil {
		if errors.Is(err, app.ErrNoMaterials) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status": "error",
				"error":  "No study materials found. Please upload documents first.",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "generating",
		"generation_id": jobID,
	})
}

func (s *Server) handleQuizStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/quiz-status/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	state, err := s.app.QuizStatus(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "quiz job not found")
		return
	}
	switch state.Status {
	case app.JobComplete:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": state.Status,
			"quiz":   map[string]any{"questions": state.Questions},
		})
	case app.JobError, app.JobCanceled:
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  state.Status,
			"message": state.Message,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": state.Status})
	}
}

func (s *Server) handleCancelQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/cancel-quiz/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if s.app.CancelQuiz(id) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Quiz generation canceled",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": false,
		"message": "Quiz generation not found or already completed",
	})
}

// chatID returns the chat cookie's value, issuing a new id when absent.
func (s *Server) chatID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(chatCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	s.setChatCookie(w, id)
	return id
}

func (s *Server) setChatCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     chatCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.allowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExtensions[ext]
	return ok
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type chatMessageRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

type generateQuizRequest struct {
	Model         string `json:"model"`
	QuestionCount int    `json:"question_count"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".pdf", ".txt", ".md"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}
