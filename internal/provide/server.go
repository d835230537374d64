// Package provide is the read API backing the offers dashboard.
package provide

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/store"
)

// Store is the datastore surface the read API uses.
type Store interface {
	FetchAll(ctx context.Context, sql string, args ...interface{}) ([]store.Row, error)
	Healthcheck(ctx context.Context) bool
}

// Server serves the finalized offers view.
type Server struct {
	router  *mux.Router
	db      Store
	address string
	server  *http.Server
	log     zerolog.Logger
}

// NewServer wires the read routes.
func NewServer(address string, db Store, log zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		db:      db,
		address: address,
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/offers", s.handleOffers).Methods("GET")
	s.router.HandleFunc("/api/offers", s.handleOffers).Methods("GET")
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleOffers returns every offer row joined with its bank, newest first.
func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.db.FetchAll(r.Context(), `
		SELECT
			bfo.id,
			b.name AS bank_name,
			bfo.user_id,
			bfo.month,
			bfo.year,
			bfo.asset_value,
			bfo.monthly_interest_rate,
			bfo.total_value_with_interest,
			bfo.installments_count,
			bfo.type,
			bfo.offered,
			bfo.offered_interest_rate,
			bfo.offer_id,
			bfo.financed_amount,
			bfo.savings_amount,
			bfo.created_at
		FROM bank_financing_offers bfo
		LEFT JOIN banks b ON bfo.bank_id = b.id
		ORDER BY bfo.created_at DESC`)
	if err != nil {
		s.log.Error().Err(err).Msg("offers query failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":  "error",
			"message": "failed to load offers",
		})
		return
	}

	if offers == nil {
		offers = []store.Row{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"count":  len(offers),
		"offers": offers,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.db.Healthcheck(r.Context())
	database := "disconnected"
	if healthy {
		database = "connected"
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       healthy,
		"database": database,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("write response failed")
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error().Interface("panic", err).Str("path", r.URL.Path).Msg("handler panic")
				if w.Header().Get("Content-Type") == "" {
					s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
						"status":  "error",
						"message": "internal server error",
					})
				}
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Start blocks serving HTTP until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("address", s.address).Msg("read api listening")
	return s.server.ListenAndServe()
}

// Stop gracefully drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
