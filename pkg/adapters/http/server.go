package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/internal/presentation/graph"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is what the transport needs from the experiment manager.
type Service interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*domain.Experiment, error)
	Delete(ctx context.Context, id string) error
	Cancel(id string) bool
	Subscribe(experimentID string) (<-chan domain.ExperimentEvent, func())
}

// Server serves the experiment API.
type Server struct {
	Service  Service
	logger   *slog.Logger
	version  string
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithMetrics exposes the gatherer on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc Service, opts ...Option) http.Handler {
	s := &Server{
		Service: svc,
		logger:  logging.NewNop(),
		version: "dev",
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/experiments", func(r chi.Router) {
		r.Get("/", s.ListExperiments)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetExperiment)
			r.Delete("/", s.DeleteExperiment)
			r.Post("/cancel", s.CancelExperiment)
			r.Get("/nodes", s.ListNodes)
			r.Get("/nodes/{nodeID}", s.GetNode)
			r.Get("/best", s.GetBest)
			r.Get("/summary", s.GetSummary)
			r.Get("/tree", s.GetTree)
			r.Get("/events", s.SubscribeEvents)
			r.Get("/ws", s.StreamWebSocket)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExperimentSummary is one row of GET /experiments.
type ExperimentSummary struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Status      domain.ExperimentStatus `json:"status"`
	CurrentStep int                     `json:"current_step"`
	TotalSteps  int                     `json:"total_steps"`
	Progress    float64                 `json:"progress"`
	BestMetric  *float64                `json:"best_metric,omitempty"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "totml-http",
		"version": s.version,
	})
}

// ListExperiments handles GET /experiments.
func (s *Server) ListExperiments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Service.List(r.Context())
	if err != nil {
		s.fail(w, "ListExperiments", err)
		return
	}

	out := make([]ExperimentSummary, 0, len(ids))
	for _, id := range ids {
		exp, err := s.Service.Get(r.Context(), id)
		if errors.Is(err, domain.ErrExperimentNotFound) {
			continue // deleted or expired since List
		}
		if err != nil {
			s.fail(w, "ListExperiments", err)
			return
		}
		out = append(out, ExperimentSummary{
			ID:          exp.ID,
			Name:        exp.Name,
			Status:      exp.Status,
			CurrentStep: exp.CurrentStep,
			TotalSteps:  exp.TotalSteps,
			Progress:    exp.Progress,
			BestMetric:  exp.BestMetric,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	s.writeJSON(w, http.StatusOK, out)
}

// GetExperiment handles GET /experiments/{id}.
func (s *Server) GetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.load(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, exp)
}

// DeleteExperiment handles DELETE /experiments/{id}.
func (s *Server) DeleteExperiment(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "DeleteExperiment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelExperiment handles POST /experiments/{id}/cancel.
func (s *Server) CancelExperiment(w http.ResponseWriter, r *http.Request) {
	if !s.Service.Cancel(chi.URLParam(r, "id")) {
		http.Error(w, "experiment is not running", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListNodes handles GET /experiments/{id}/nodes.
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.load(w, r)
	if !ok {
		return
	}
	nodes := exp.Journal.Nodes
	if nodes == nil {
		nodes = []domain.Node{}
	}
	s.writeJSON(w, http.StatusOK, nodes)
}

// GetNode handles GET /experiments/{id}/nodes/{nodeID}.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.load(w, r)
	if !ok {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")
	for _, n := range exp.Journal.Nodes {
		if n.ID == nodeID {
			s.writeJSON(w, http.StatusOK, n)
			return
		}
	}
	http.Error(w, "node not found", http.StatusNotFound)
}

// GetBest handles GET /experiments/{id}/best.
func (s *Server) GetBest(w http.ResponseWriter, r *http.Request) {
	j, ok := s.journal(w, r)
	if !ok {
		return
	}
	best := j.BestNode(true)
	if best == nil {
		http.Error(w, "no working solution yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, best)
}

// GetSummary handles GET /experiments/{id}/summary.
func (s *Server) GetSummary(w http.ResponseWriter, r *http.Request) {
	j, ok := s.journal(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, j.GenerateSummary())
}

// GetTree handles GET /experiments/{id}/tree.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(exp.Journal.Nodes, &graph.TreeOverlay{BestNodeID: exp.BestNodeID}))
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*domain.Experiment, bool) {
	exp, err := s.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "Get", err)
		return nil, false
	}
	return exp, true
}

func (s *Server) journal(w http.ResponseWriter, r *http.Request) (*domain.Journal, bool) {
	exp, ok := s.load(w, r)
	if !ok {
		return nil, false
	}
	j, err := domain.RestoreJournal(exp.Journal)
	if err != nil {
		s.fail(w, "RestoreJournal", err)
		return nil, false
	}
	return j, true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrExperimentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrExperimentRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error(op+" failed", "error", err)
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
