package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/chat"
	"github.com/boletoflow/boletoflow/internal/models"
)

// Server fronts the chat platform: it terminates the webhook and exposes the
// internal endpoints other stages call back into.
type Server struct {
	router  *mux.Router
	flow    *Flow
	chat    ChatGateway
	address string
	server  *http.Server
	log     zerolog.Logger
}

// NewServer wires the webhook and internal API routes.
func NewServer(address string, flow *Flow, gateway ChatGateway, log zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		flow:    flow,
		chat:    gateway,
		address: address,
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/telegram-webhook", s.handleWebhook).Methods("POST")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/processar", s.handleProcess).Methods("POST")
	api.HandleFunc("/send_message", s.handleSendMessage).Methods("POST")
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "ingress",
		"timestamp": time.Now().UTC(),
	})
}

// handleWebhook always acknowledges: a non-200 makes the chat platform
// redeliver the same update, and malformed payloads will not improve on
// retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update chat.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.log.Warn().Err(err).Msg("undecodable webhook payload")
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}
	s.flow.HandleUpdate(r.Context(), &update)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleProcess is the verifier's callback. A positive trigger starts the
// financing-type conversation; a negative one closes the loop with the user.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req models.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TriggerRecommendation {
		if req.SourceID <= 0 || req.AgentAnalysis == nil {
			s.writeError(w, http.StatusBadRequest, "source_id and agent_analysis are required when trigger_recommendation is true")
			return
		}
		s.flow.Trigger(r.Context(), req.SourceID, req.AgentAnalysis)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "recommendation started", "source_id": req.SourceID})
		return
	}

	if req.SourceID > 0 {
		s.chat.SendText(r.Context(), req.SourceID, msgNoRecommendation)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "no recommendation"})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Chat() <= 0 || req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "chat_id and text are required")
		return
	}

	s.chat.SendText(r.Context(), req.Chat(), req.Text)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "sent", "chat_id": req.Chat()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error().Interface("panic", err).Str("path", r.URL.Path).Msg("handler panic")
				if w.Header().Get("Content-Type") == "" {
					s.writeError(w, http.StatusInternalServerError, "internal server error")
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

// statusWriter captures the response status for the request log.
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
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("address", s.address).Msg("ingress server listening")
	return s.server.ListenAndServe()
}

// Stop gracefully drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
