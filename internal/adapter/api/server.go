package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"agentic-rag/internal/domain"
	"agentic-rag/internal/infra/config"
	"agentic-rag/internal/infra/middleware"
	"agentic-rag/internal/usecase/orchestration"
)

// DecisionReader reads the persisted selection decision log.
type DecisionReader interface {
	RecentDecisions(ctx context.Context, n int) ([]domain.SelectionDecision, error)
	DecisionStats(ctx context.Context) (total, fallbacks int, err error)
}

// Server exposes the orchestrator over an HTTP API.
type Server struct {
	orch     *orchestration.Orchestrator
	registry *orchestration.Registry
	monitor  *orchestration.Monitor
	audit    DecisionReader // may be nil
	metrics  http.Handler   // may be nil
	cfg      config.ServerConfig
	logger   *slog.Logger

	server *http.Server
	cancel context.CancelFunc

	// Actual bound address (set after Start)
	boundAddr string
}

// NewServer creates the API server. audit and metrics may be nil; the
// corresponding endpoints then return 404.
func NewServer(
	orch *orchestration.Orchestrator,
	registry *orchestration.Registry,
	monitor *orchestration.Monitor,
	audit DecisionReader,
	metrics http.Handler,
	cfg config.ServerConfig,
	logger *slog.Logger,
) *Server {
	return &Server{
		orch:     orch,
		registry: registry,
		monitor:  monitor,
		audit:    audit,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

type queryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Start begins the HTTP server. Non-blocking (serves in a goroutine).
func (s *Server) Start(ctx context.Context) error {
	srvCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/decisions", s.handleDecisions)
	mux.HandleFunc("/api/v1/performance", s.handlePerformance)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	// HTTP-level per-IP limiting sits in front of the orchestrator's own
	// global limiter.
	secureHandler := middleware.SecurityHeaders(
		middleware.RateLimit(srvCtx, 300, 50)(mux),
	)

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           secureHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("api server started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string { return s.boundAddr }

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "invalid JSON: " + err.Error()
		if err.Error() == "http: request body too large" {
			msg = "request body too large (max 1MB)"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = fmt.Sprintf("http-%d", time.Now().UnixNano())
	}

	qc := domain.QueryContext{SessionID: req.SessionID}
	result, err := s.orch.Orchestrate(r.Context(), req.Query, qc)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	result["session_id"] = req.SessionID
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	agents := s.registry.List()
	reports := make([]domain.AgentStatusReport, 0, len(agents))
	for _, a := range agents {
		reports = append(reports, a.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": reports,
		"stats":  s.registry.Stats(),
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if s.audit == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "audit trail disabled"})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	decisions, err := s.audit.RecentDecisions(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	total, fallbacks, err := s.audit.DecisionStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": decisions,
		"total":     total,
		"fallbacks": fallbacks,
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	out := map[string]any{
		"global": s.monitor.GlobalSummary(),
	}
	if agent := r.URL.Query().Get("agent"); agent != "" {
		out["agent"] = s.monitor.AgentSummary(agent)
	}
	if op := r.URL.Query().Get("operation"); op != "" {
		out["operation"] = s.monitor.OperationSummary(op)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Health())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
