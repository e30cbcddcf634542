package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/run-matchmaker/internal/catalog"
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/metrics"
	"github.com/run-matchmaker/internal/service"
	"github.com/run-matchmaker/internal/websocket"
)

// Catalog is the content the API lists for run creation.
type Catalog interface {
	FactionIDs() []string
	Faction(factionID string) (catalog.Faction, error)
}

// Handler provides HTTP handlers for the run API
type Handler struct {
	service *service.RunService
	content Catalog
	hub     *websocket.Hub
	auth    *Authenticator
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.RunService, content Catalog, hub *websocket.Hub, auth *Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		content: content,
		hub:     hub,
		auth:    auth,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(metricsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	// WebSocket endpoint
	r.With(h.auth.Middleware).Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/factions", h.ListFactions)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Route("/runs", func(r chi.Router) {
				r.Post("/", h.CreateRun)
				r.Get("/", h.ListRuns)
				r.Get("/active", h.GetActiveRun)

				r.Route("/{runID}", func(r chi.Router) {
					r.Get("/", h.GetRun)
					r.Get("/history", h.GetHistory)
					r.Post("/abandon", h.AbandonRun)

					r.Get("/draft", h.GetDraft)
					r.Post("/draft", h.SubmitDraft)

					r.Route("/units/{instanceID}", func(r chi.Router) {
						r.Post("/place", h.PlaceUnit)
						r.Post("/move", h.RepositionUnit)
						r.Delete("/", h.RemoveUnit)
						r.Get("/upgrade", h.CanUpgrade)
						r.Post("/upgrade", h.UpgradeUnit)
					})

					r.Get("/opponent", h.FindOpponent)
					r.Post("/battles", h.SubmitBattle)
					r.Get("/battles/{battleID}/replay", h.GetReplay)
				})
			})
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-Player-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records request counts and latency by route pattern
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(route, r.Method, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError maps an error to its status and writes it. Errors outside the
// domain taxonomy are logged and hidden behind a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		if errors.Is(err, domain.ErrInvalidInput) {
			h.writeJSON(w, http.StatusBadRequest, APIResponse{Error: err.Error(), Code: "invalid_request"})
			return
		}
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeJSON(w, http.StatusInternalServerError, APIResponse{Error: domain.ErrInternalError.Error(), Code: "internal_error"})
		return
	}
	h.writeJSON(w, statusFor(de.Kind), APIResponse{
		Error:   de.Error(),
		Code:    de.Code,
		Details: de.Details,
	})
}

// statusFor maps an error kind to an HTTP status
func statusFor(kind error) int {
	switch {
	case errors.Is(kind, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, domain.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(kind, domain.ErrAlreadyCompleted), errors.Is(kind, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(kind, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(kind, domain.ErrInsufficientResource):
		return http.StatusUnprocessableEntity
	case errors.Is(kind, domain.ErrRuleViolation):
		return http.StatusConflict
	case errors.Is(kind, domain.ErrNoOpponent):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewError(domain.ErrInvalidInput, "invalid_request", "request body is not valid JSON")
	}
	return nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, PlayerID(r.Context()), w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// ListFactions returns the playable factions
func (h *Handler) ListFactions(w http.ResponseWriter, r *http.Request) {
	factions := make([]catalog.Faction, 0)
	for _, id := range h.content.FactionIDs() {
		f, err := h.content.Faction(id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		factions = append(factions, f)
	}
	h.writeSuccess(w, factions)
}
