package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"staybook/internal/config"
	"staybook/internal/domain"
	"staybook/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the reservation service as a JSON API.
type HTTPServer struct {
	cfg      *config.APIConfig
	svc      domain.ReservationService
	server   *http.Server
	auth     *HTTPAuth
	validate *validator.Validate
	log      zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc domain.ReservationService, limiter *RateLimiter, logger *zerolog.Logger) *HTTPServer {
	if limiter == nil {
		limiter = NewRateLimiter(cfg.RateLimit)
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		auth:     NewHTTPAuth(cfg, limiter),
		validate: validator.New(),
		log:      l,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Wrap)

		r.With(s.auth.Require(permWriteBookings)).Post("/bookings", s.handleCreateBooking)
		r.With(s.auth.Require(permReadBookings)).Get("/bookings/{id}", s.handleGetBooking)
		r.With(s.auth.Require(permWriteBookings)).Post("/bookings/{id}/cancel", s.handleCancelBooking)
		r.With(s.auth.Require(permManageBookings)).Post("/bookings/{id}/complete", s.handleCompleteBooking)
		r.With(s.auth.Require(permManageBookings)).Put("/bookings/{id}/status", s.handleUpdateStatus)
		r.With(s.auth.Require(permReadBookings)).Get("/users/me/bookings", s.handleMyBookings)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require(permReadAvailability))
			r.Get("/properties", s.handleListProperties)
			r.Get("/properties/{id}/availability", s.handleAvailability)
			r.Get("/properties/{id}/quote", s.handleQuote)
		})

		r.With(s.auth.Require(permManageBookings)).Get("/properties/{id}/bookings", s.handlePropertyBookings)
		r.With(s.auth.Require(permManageBookings)).Get("/properties/{id}/bookings/export", s.handleExport)
	})

	return r
}

// Handler is the fully wired router, used by tests and by embedding servers.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
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

type ctxKey int

const (
	clientCtxKey ctxKey = iota
	requestIDCtxKey
)

// HTTPAuth applies the API-key checks and the shared rate limit to HTTP routes.
type HTTPAuth struct {
	cfg     *config.APIConfig
	keys    *keyring
	limiter *RateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig, limiter *RateLimiter) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, keys: newKeyring(cfg.Auth), limiter: limiter}
}

func (a *HTTPAuth) enforced() bool {
	return a.cfg.Enabled && a.cfg.HTTP.Enabled
}

// Wrap authenticates the caller and applies the per-key rate limit.
func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enforced() {
			next.ServeHTTP(w, r)
			return
		}

		creds := clientCredentials{
			apiKey: strings.TrimSpace(r.Header.Get(a.keys.keyHeader)),
			extra:  strings.TrimSpace(r.Header.Get(a.keys.extraHeader)),
		}
		if a.cfg.Auth.Enabled {
			client, err := a.keys.authenticate(creds)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), clientCtxKey, client))
		}

		if !a.limiter.Allow(limitKey(creds.apiKey, remoteHost(r))) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Require rejects authenticated clients that lack permission.
func (a *HTTPAuth) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.enforced() && a.cfg.Auth.Enabled {
				client, _ := r.Context().Value(clientCtxKey).(config.APIClientKey)
				if err := a.keys.authorize(client, permission); err != nil {
					writeError(w, http.StatusForbidden, "permission_denied", err.Error())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return host
}

// userID reads the gateway-supplied caller id and answers 401 when it is absent.
func (s *HTTPServer) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id := parseUserID(r.Header.Get(s.auth.keys.userHeader))
	if id == 0 {
		writeError(w, http.StatusUnauthorized, "missing_user", "missing or invalid user id header")
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDCtxKey, requestID))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.IncHTTP(route, strconv.Itoa(recorder.status))

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: message, Code: code})
}

// writeServiceError maps a service error onto the response and logs unexpected ones.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, body := httpError(err)
	if statusCode >= http.StatusInternalServerError {
		reqID, _ := r.Context().Value(requestIDCtxKey).(string)
		s.log.Error().Err(err).Str("request_id", reqID).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, statusCode, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
