package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"gigflow/internal/chat"
	"gigflow/internal/config"
	"gigflow/internal/database"
	"gigflow/internal/marketplace"
	"gigflow/internal/metrics"
	"gigflow/internal/models"
	"gigflow/internal/money"
	"gigflow/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	headerUserID    = "X-User-ID"
	headerUserName  = "X-User-Name"
	headerRequestID = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// Marketplace is what the transports need from the marketplace service.
type Marketplace interface {
	Location() *time.Location

	CreateGig(ctx context.Context, actor service.Actor, g *models.Gig) error
	UpdateGig(ctx context.Context, actor service.Actor, gigID int64, u service.GigUpdate) (*models.Gig, error)
	GetGig(ctx context.Context, viewerID, gigID int64) (*models.Gig, error)
	ListGigs(ctx context.Context, f service.ListFilter) ([]models.Gig, error)

	Apply(ctx context.Context, actor service.Actor, gigID int64, in service.ApplyInput) (*models.Application, error)
	Hire(ctx context.Context, actor service.Actor, gigID int64, applicationIDs []int64) (*service.TransitionResult, error)
	RejectApplication(ctx context.Context, actor service.Actor, applicationID int64) (*service.TransitionResult, error)
	CloseGig(ctx context.Context, actor service.Actor, gigID int64) (*service.TransitionResult, error)
	CancelGig(ctx context.Context, actor service.Actor, gigID int64) (*service.TransitionResult, error)

	SetSelection(ctx context.Context, actor service.Actor, gigID int64, applicationIDs []int64) (*service.SelectionView, error)
	GetSelection(ctx context.Context, actor service.Actor, gigID int64) (*service.SelectionView, error)
	ClearSelection(ctx context.Context, actor service.Actor, gigID int64) error
	Eligibility(ctx context.Context, actor service.Actor, gigID int64, applicationIDs []int64) (*service.Eligibility, error)
	CheckFunding(budget money.Amount, fees []money.Amount) marketplace.Funding

	PostMessage(ctx context.Context, actor service.Actor, applicationID int64, text string) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, actor service.Actor, applicationID int64) ([]models.ChatMessage, error)
	ListApplications(ctx context.Context, actor service.Actor, gigID int64) ([]models.Application, error)
	ListMyApplications(ctx context.Context, musicianID int64) ([]service.GigApplications, error)
	ThreadSummaries(ctx context.Context, actor service.Actor, gigID int64) ([]chat.ThreadSummary, error)
	MusicianCalendar(ctx context.Context, musicianID int64, from, to string) ([]models.CalendarBlock, error)
}

// ReadyFunc reports whether the dependencies behind the API are reachable.
type ReadyFunc func(ctx context.Context) error

// HTTPServer exposes the marketplace as a JSON API.
type HTTPServer struct {
	cfg       config.APIConfig
	svc       Marketplace
	ready     ReadyFunc
	validator *requestValidator
	auth      *HTTPAuth
	handler   http.Handler
	server    *http.Server
	log       zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Marketplace, ready ReadyFunc, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:       cfg,
		svc:       svc,
		ready:     ready,
		validator: newRequestValidator(),
		auth:      NewHTTPAuth(cfg),
		log:       zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	srv.routes(mux)
	srv.handler = srv.accessLog(srv.cors(srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/v1/gigs", s.handleListGigs)
	mux.HandleFunc("POST /api/v1/gigs", s.handleCreateGig)
	mux.HandleFunc("GET /api/v1/gigs/export.xlsx", s.handleExportGigs)
	mux.HandleFunc("GET /api/v1/gigs/{id}", s.handleGetGig)
	mux.HandleFunc("PATCH /api/v1/gigs/{id}", s.handleUpdateGig)
	mux.HandleFunc("POST /api/v1/gigs/{id}/apply", s.handleApply)
	mux.HandleFunc("POST /api/v1/gigs/{id}/hire", s.handleHire)
	mux.HandleFunc("POST /api/v1/gigs/{id}/close", s.handleClose)
	mux.HandleFunc("POST /api/v1/gigs/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/v1/gigs/{id}/applications", s.handleListApplications)
	mux.HandleFunc("GET /api/v1/gigs/{id}/threads", s.handleThreads)
	mux.HandleFunc("GET /api/v1/gigs/{id}/selection", s.handleGetSelection)
	mux.HandleFunc("PUT /api/v1/gigs/{id}/selection", s.handleSetSelection)
	mux.HandleFunc("DELETE /api/v1/gigs/{id}/selection", s.handleClearSelection)
	mux.HandleFunc("POST /api/v1/gigs/{id}/eligibility", s.handleEligibility)

	mux.HandleFunc("POST /api/v1/applications/{id}/reject", s.handleReject)
	mux.HandleFunc("GET /api/v1/applications/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/v1/applications/{id}/messages", s.handlePostMessage)

	mux.HandleFunc("POST /api/v1/funding", s.handleFunding)
	mux.HandleFunc("GET /api/v1/me/applications", s.handleMyApplications)
	mux.HandleFunc("GET /api/v1/musicians/{id}/calendar", s.handleCalendar)
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		// the mux fills in Pattern on the request it was handed
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)
		metrics.ObserveHTTP(endpoint, strconv.Itoa(recorder.status), dur.Seconds())

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

func (s *HTTPServer) cors(next http.Handler) http.Handler {
	allowed := s.cfg.CORS.AllowedOrigins
	allowHeaders := strings.Join([]string{
		"Content-Type", headerUserID, headerUserName, headerRequestID,
		s.auth.keys.keyHeader(), s.auth.keys.extraHeader(),
	}, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Expose-Headers", headerRequestID)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

var errMissingUser = errors.New("missing " + headerUserID + " header")

// actorFrom reads the acting user. Auth proper happens upstream; the API
// trusts the identity headers set by the gateway.
func actorFrom(r *http.Request) (service.Actor, error) {
	raw := strings.TrimSpace(r.Header.Get(headerUserID))
	if raw == "" {
		return service.Actor{}, errMissingUser
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return service.Actor{}, fmt.Errorf("invalid %s header", headerUserID)
	}
	return service.Actor{ID: id, Name: strings.TrimSpace(r.Header.Get(headerUserName))}, nil
}

// requireActor writes 401 and returns false when the request has no user.
func requireActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return service.Actor{}, false
	}
	return actor, true
}

// viewerID is the optional user of read endpoints; 0 means anonymous.
func viewerID(r *http.Request) int64 {
	actor, err := actorFrom(r)
	if err != nil {
		return 0
	}
	return actor.ID
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into dst and validates it.
func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.writeServiceError(w, err)
		return false
	}
	return true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var gerr *marketplace.GuardError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &gerr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    gerr.Error(),
			"action":   gerr.Action,
			"reasons":  gerr.Decision.Reasons,
			"messages": gerr.Decision.Messages(),
		})
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, database.ErrDuplicateApplication):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
