// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/rally/internal/adapters/http/swagger"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/dedupe"
)

const requestTimeout = 30 * time.Second

// Dependencies required by HTTP handlers. Each handler only sees the narrow
// capability it needs.
type Dependencies interface {
	dedupe.Deduper
	service.InteractionRecorder
	service.ProfileReader
	service.EngagementEvaluator
	service.StandingReader
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	interactionsHandler *InteractionsHandler
	profilesHandler     *ProfilesHandler
	evaluationsHandler  *EvaluationsHandler
	leaderboardHandler  *LeaderboardHandler
	rankHandler         *RankHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		interactionsHandler: NewInteractionsHandler(deps),
		profilesHandler:     NewProfilesHandler(deps),
		evaluationsHandler:  NewEvaluationsHandler(deps),
		leaderboardHandler:  NewLeaderboardHandler(deps, maxLeaderboardLimit),
		rankHandler:         NewRankHandler(deps),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Post("/interactions", s.interactionsHandler.HandlePostInteraction)
	r.Get("/profiles/{userID}", s.profilesHandler.HandleGetProfile)
	r.Post("/evaluations", s.evaluationsHandler.HandlePostEvaluation)
	r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	r.Get("/rank/{userID}", s.rankHandler.HandleGetRank)

	swagger.Register(r)

	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
