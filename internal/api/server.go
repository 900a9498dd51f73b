// Package api serves the simulation state over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/engine"
	"github.com/talgya/polis/internal/faults"
	"github.com/talgya/polis/internal/persistence"
)

// Server serves the simulation over HTTP.
type Server struct {
	Core     *engine.Core
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	adminLimiter := NewRateLimiter(5, 10)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/classes", s.handleClasses)
	mux.HandleFunc("/api/v1/culture", s.handleCulture)
	mux.HandleFunc("/api/v1/trust/", s.handleTrustEdge)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	// Admin endpoints (POST, bearer token).
	mux.HandleFunc("/api/v1/register", s.adminOnly(RateLimitMiddleware(adminLimiter, s.handleRegister)))
	mux.HandleFunc("/api/v1/reputation", s.adminOnly(RateLimitMiddleware(adminLimiter, s.handleReputation)))
	mux.HandleFunc("/api/v1/trust", s.adminOnly(RateLimitMiddleware(adminLimiter, s.handleTrustUpdate)))
	mux.HandleFunc("/api/v1/incident", s.adminOnly(RateLimitMiddleware(adminLimiter, s.handleIncident)))
	mux.HandleFunc("/api/v1/wealth", s.adminOnly(RateLimitMiddleware(adminLimiter, s.handleWealth)))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(RateLimitMiddleware(adminLimiter, s.handleSnapshot)))
	mux.HandleFunc("/api/v1/culture/shift", s.adminOnly(RateLimitMiddleware(adminLimiter, s.handleCultureShift)))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(RateLimitMiddleware(adminLimiter, s.handleSpeed)))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires bearer token auth on POST and rejects other methods.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no POLIS_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Core.Stats())
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	ids := s.Core.AgentIDs()
	writeJSON(w, map[string]any{
		"count":  len(ids),
		"agents": ids,
	})
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/agent/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: agent id %q", faults.ErrInvalidArgument, idStr))
		return
	}
	profile, err := s.Core.AgentProfile(agents.AgentID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, profile)
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"distribution":        s.Core.ClassDistribution(),
		"revolution_progress": s.Core.RevolutionProgress(),
	})
}

func (s *Server) handleCulture(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"global":    s.Core.GlobalCulture(),
		"diversity": s.Core.CulturalDiversity(),
		"era":       s.Core.CurrentEra(),
	})
}

// handleTrustEdge serves GET /api/v1/trust/{from}/{to}.
func (s *Server) handleTrustEdge(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/trust/"), "/")
	if len(parts) != 2 {
		writeError(w, fmt.Errorf("%w: want /api/v1/trust/{from}/{to}", faults.ErrInvalidArgument))
		return
	}
	from, err1 := strconv.ParseUint(parts[0], 10, 64)
	to, err2 := strconv.ParseUint(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		writeError(w, fmt.Errorf("%w: agent ids", faults.ErrInvalidArgument))
		return
	}

	edge, aggregate, err := s.Core.TrustBetween(agents.AgentID(from), agents.AgentID(to))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"edge":      edge,
		"aggregate": aggregate,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, s.Core.RecentEvents(limit))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var init agents.Init
	if err := json.NewDecoder(r.Body).Decode(&init); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", faults.ErrInvalidArgument, err))
		return
	}
	id, err := s.Core.RegisterAgent(init)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"id": id})
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agent    uint64  `json:"agent"`
		Delta    float64 `json:"delta"`
		Category string  `json:"category"`
		Context  string  `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", faults.ErrInvalidArgument, err))
		return
	}
	if err := s.Core.UpdateReputation(agents.AgentID(req.Agent), req.Delta, req.Category, req.Context); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleTrustUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From    uint64             `json:"from"`
		To      uint64             `json:"to"`
		Deltas  map[string]float64 `json:"deltas"`
		Context string             `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", faults.ErrInvalidArgument, err))
		return
	}
	change, err := s.Core.UpdateTrust(agents.AgentID(req.From), agents.AgentID(req.To), req.Deltas, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"change": change})
}

func (s *Server) handleIncident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agent       uint64  `json:"agent"`
		Category    string  `json:"category"`
		Severity    float64 `json:"severity"`
		Description string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", faults.ErrInvalidArgument, err))
		return
	}
	if err := s.Core.ReportIncident(agents.AgentID(req.Agent), req.Category, req.Severity, req.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleWealth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agent  uint64  `json:"agent"`
		Wealth float64 `json:"wealth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", faults.ErrInvalidArgument, err))
		return
	}
	if err := s.Core.SetWealth(agents.AgentID(req.Agent), req.Wealth); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	if err := s.DB.Save(s.Core); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "tick": s.Core.Tick()})
}

// handleCultureShift is the operator override for the revolutionary
// cultural shift, normally fired only by a successful revolution.
func (s *Server) handleCultureShift(w http.ResponseWriter, r *http.Request) {
	if err := s.Core.TriggerRevolutionaryCulturalShift(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "global": s.Core.GlobalCulture()})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Multiplier float64 `json:"multiplier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", faults.ErrInvalidArgument, err))
		return
	}
	if err := s.Core.SetSpeed(req.Multiplier); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "tick_interval": s.Core.TickInterval().String()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

// writeError maps the fault taxonomy to HTTP statuses and emits the stable
// wire code alongside the message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, faults.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, faults.ErrInvalidArgument), errors.Is(err, faults.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, faults.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, faults.ErrCapacity):
		status = http.StatusTooManyRequests
	case errors.Is(err, faults.ErrShutdown):
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": err.Error(),
		"code":  faults.Code(err),
	})
}
