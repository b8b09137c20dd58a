// File: internal/infra/web/server.go
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vendor-payments/internal/domain"
	"vendor-payments/internal/domain/model"
	"vendor-payments/internal/domain/ports/repository"
	"vendor-payments/internal/infra/logging"
	"vendor-payments/internal/usecase"
)

// Server exposes the reconciliation engine to the dashboard: begin/cancel/read
// per purpose slot, an outcome long-poll, the audit trail, health and metrics.
type Server struct {
	uc       usecase.ReconcileUseCase
	outcomes repository.OutcomeRepository
	auth     *AuthManager
	apiKey   string
	log      *zerolog.Logger
	server   *http.Server
}

func NewServer(uc usecase.ReconcileUseCase, outcomes repository.OutcomeRepository, auth *AuthManager, apiKey string, logger *zerolog.Logger) *Server {
	return &Server{uc: uc, outcomes: outcomes, auth: auth, apiKey: apiKey, log: logger}
}

// Router builds the chi router with all routes attached.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.traceID, s.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", s.handleSession)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Route("/payments/{purpose}", func(r chi.Router) {
				r.Post("/", s.handleBegin)
				r.Get("/", s.handlePending)
				r.Delete("/", s.handleCancel)
			})
			r.Get("/outcomes/next", s.handleNextOutcome)
			r.Get("/outcomes", s.handleRecentOutcomes)
		})
	})
	return r
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ===== middleware =====

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), s.log)
		start := time.Now()
		ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ===== handlers =====

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.APIKey == "" {
		writeError(w, http.StatusBadRequest, "apiKey required")
		return
	}
	if s.apiKey == "" || body.APIKey != s.apiKey {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not mint session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func purposeFromPath(r *http.Request) (model.Purpose, error) {
	p := model.Purpose(chi.URLParam(r, "purpose"))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown purpose %q", domain.ErrInvalidArgument, p)
	}
	return p, nil
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	purpose, err := purposeFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		AmountMinorUnits int64                  `json:"amountMinorUnits"`
		Description      string                 `json:"description"`
		Metadata         map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rec, err := s.uc.Begin(r.Context(), purpose, usecase.BeginRequest{
		AmountMinorUnits: body.AmountMinorUnits,
		Description:      body.Description,
		Metadata:         body.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrGatewayUnavailable):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	purpose, err := purposeFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.uc.Pending(r.Context(), purpose)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no pending intent")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	purpose, err := purposeFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.uc.Cancel(r.Context(), purpose); err != nil {
		if errors.Is(err, domain.ErrNoPendingIntent) {
			writeError(w, http.StatusNotFound, "no pending intent")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNextOutcome long-polls the next outcome event, bounded by the request
// context and a server-side cap.
func (s *Server) handleNextOutcome(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := s.uc.Subscribe(1)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(r.Context(), 25*time.Second)
	defer cancel()

	select {
	case ev, ok := <-events:
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	case <-ctx.Done():
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRecentOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.outcomes == nil {
		writeError(w, http.StatusNotFound, "audit trail not configured")
		return
	}
	evs, err := s.outcomes.ListRecent(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if evs == nil {
		evs = []*model.OutcomeEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
