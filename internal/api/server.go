package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"order_engine/internal/domain"
	"order_engine/internal/infra"
	"order_engine/internal/infra/queue"
	"order_engine/internal/service"
	"order_engine/internal/stream"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Orders is the ingress view of the order service.
type Orders interface {
	Submit(ctx context.Context, req service.SubmitRequest) (service.SubmitResponse, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr             string
	ServiceName      string
	AllowedOrigins   []string
	SubscriberBuffer int
	// QueueStats is reported on /metrics when set.
	QueueStats func() queue.Stats
}

// Server handles REST API and WebSocket connections
type Server struct {
	opts     Options
	orders   Orders
	registry *stream.Registry
	metrics  *infra.Metrics
	router   *mux.Router
	http     *http.Server
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// NewServer creates a new API server
func NewServer(opts Options, orders Orders, registry *stream.Registry, metrics *infra.Metrics) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "Order Execution Engine"
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	s := &Server{
		opts:     opts,
		orders:   orders,
		registry: registry,
		metrics:  metrics,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/orders/execute", s.handleExecuteOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("🌐 API server listening", slog.String("addr", s.opts.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": s.opts.ServiceName})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"metrics": s.metrics.Snapshot()}
	if s.opts.QueueStats != nil {
		body["queue"] = s.opts.QueueStats()
	}
	if s.registry != nil {
		body["openTopics"] = len(s.registry.OpenTopics())
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid input", err.Error())
		return
	}

	resp, err := s.orders.Submit(r.Context(), req)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, "Invalid input", verr)
		case domain.IsRetriable(err), errors.Is(err, domain.ErrQueueClosed):
			slog.Error("Order submission unavailable", slog.Any("error", err))
			respondError(w, http.StatusServiceUnavailable, "Service unavailable", nil)
		default:
			slog.Error("Order submission failed", slog.Any("error", err))
			respondError(w, http.StatusInternalServerError, "Internal error", nil)
		}
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := s.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "Order not found", id)
			return
		}
		slog.Error("Order lookup failed", slog.String("order_id", id), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Internal error", nil)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string, details any) {
	respondJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
