package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

// Server exposes the queue over HTTP.
type Server struct {
	queue          *Queue
	logger         *slog.Logger
	allowedOrigins []string
}

// NewServer returns a Server for queue. An empty origin list allows all.
func NewServer(queue *Queue, logger *slog.Logger, allowedOrigins []string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{queue: queue, logger: logger, allowedOrigins: allowedOrigins}
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /job-status", s.handleJobStatus)

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Server is up and running"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	job, err := s.queue.Enqueue(r.Context(), query)
	if err != nil {
		s.logger.Error("enqueue failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not enqueue query"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(job.Status), "job_id": job.ID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("job_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id is required"})
		return
	}
	job, err := s.queue.Status(r.Context(), id)
	if errors.Is(err, ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	if err != nil {
		s.logger.Error("job status failed", "job_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not read job"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the HTTP server and n queue workers until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string, workers int, handler Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.queue.RunWorkers(gCtx, workers, handler)
	})

	g.Go(func() error {
		s.logger.Info("starting rag queue server", "addr", addr, "workers", workers)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rag queue server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info("shutting down rag queue server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
