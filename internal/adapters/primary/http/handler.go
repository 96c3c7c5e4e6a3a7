package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vibin/lead-assistant/config"
	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/services"
	"github.com/vibin/lead-assistant/internal/logger"
)

// AdminAPI is the admin functionality exposed over HTTP
type AdminAPI interface {
	Stats(ctx context.Context) (*services.Stats, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	Segments(ctx context.Context) (*domain.Segments, error)
	Broadcast(ctx context.Context, segment domain.Segment, text string) (int, error)
	DeleteUser(ctx context.Context, raw string) error
}

// ConnectionChecker reports the chat transport state
type ConnectionChecker interface {
	IsConnected() bool
}

// Handler is the HTTP handler for the admin API
type Handler struct {
	admin     AdminAPI
	transport ConnectionChecker
	logger    logger.Logger
	router    *chi.Mux
	config    *config.Config
}

// NewHandler creates a new HTTP handler
func NewHandler(admin AdminAPI, transport ConnectionChecker, cfg *config.Config, log logger.Logger) *Handler {
	h := &Handler{
		admin:     admin,
		transport: transport,
		logger:    log.WithField("component", "http"),
		config:    cfg,
	}

	h.setupRouter()
	return h
}

// setupRouter sets up the Chi router with middleware and routes
func (h *Handler) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.RequireAdmin)
		r.Get("/stats", h.GetStats)
		r.Get("/users", h.ListUsers)
		r.Delete("/users/{userID}", h.DeleteUser)
		r.Get("/segments", h.GetSegments)
		r.Post("/broadcast", h.Broadcast)
	})

	h.router = r
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Health reports whether the chat transport is connected
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	connected := h.transport != nil && h.transport.IsConnected()
	code := http.StatusOK
	if !connected {
		code = http.StatusServiceUnavailable
	}
	h.respondWithJSON(w, code, map[string]bool{"connected": connected})
}

// GetStats handles the statistics request
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to collect stats", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to collect stats")
		return
	}
	h.respondWithJSON(w, http.StatusOK, stats)
}

// ListUsers handles the list users request
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("Failed to list users", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	if users == nil {
		users = []*domain.User{}
	}
	h.respondWithJSON(w, http.StatusOK, users)
}

// GetSegments handles the available segments request
func (h *Handler) GetSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := h.admin.Segments(r.Context())
	if err != nil {
		h.logger.Error("Failed to list segments", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list segments")
		return
	}
	h.respondWithJSON(w, http.StatusOK, segments)
}

type broadcastRequest struct {
	domain.Segment
	Text string `json:"text"`
}

// Broadcast handles the broadcast request. Delivery continues after the
// response is written.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Broadcast text is required")
		return
	}

	n, err := h.admin.Broadcast(r.Context(), req.Segment, req.Text)
	if err != nil {
		h.logger.Error("Failed to start broadcast", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to start broadcast")
		return
	}
	h.logger.Info("Broadcast started", "admin", adminSubject(r.Context()), "recipients", n)
	h.respondWithJSON(w, http.StatusAccepted, map[string]int{"recipients": n})
}

// DeleteUser handles the delete user request
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	err := h.admin.DeleteUser(r.Context(), chi.URLParam(r, "userID"))
	switch {
	case err == nil:
		h.logger.Info("User deleted via admin API", "admin", adminSubject(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrInvalidUserID):
		h.respondWithError(w, http.StatusBadRequest, "User id must be a phone number or a WhatsApp JID")
	case errors.Is(err, domain.ErrUserNotFound):
		h.respondWithError(w, http.StatusNotFound, "User not found")
	default:
		h.logger.Error("Failed to delete user", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to delete user")
	}
}

// respondWithError sends an error response
func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response
func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// LoggerMiddleware is a middleware that logs HTTP requests
func LoggerMiddleware(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
