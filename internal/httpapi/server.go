// Package httpapi is the admin surface: target CRUD, pause/resume, mute,
// stats, subscriptions and the metrics endpoint.
package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"apiwatch/internal/domain"
	apimw "apiwatch/internal/httpapi/middleware"
	"apiwatch/internal/repo"
)

// Hooks lets the API drive the scheduler without importing it. Both are
// optional; a nil hook is skipped.
type Hooks struct {
	Schedule   func(t *domain.Target)
	Unschedule func(id domain.TargetID)
}

type Server struct {
	Log     *zap.Logger
	Store   repo.Store
	Metrics http.Handler // prometheus handler, nil hides /metrics
	Hooks   Hooks
	Now     func() time.Time
}

func NewServer(log *zap.Logger, store repo.Store, metrics http.Handler, hooks Hooks) *Server {
	return &Server{Log: log, Store: store, Metrics: metrics, Hooks: hooks, Now: time.Now}
}

func (s *Server) Router(keys apimw.Keys, rateLimitRPM int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(rateLimitRPM, rateLimitRPM))

		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(keys))
			r.Get("/targets", s.handleListTargets)
			r.Get("/targets/{id}", s.handleGetTarget)
			r.Get("/targets/{id}/stats", s.handleTargetStats)
			r.Get("/targets/{id}/incidents", s.handleTargetIncidents)
			r.Get("/status", s.handleFleetStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/targets", s.handleCreateTarget)
			r.Patch("/targets/{id}", s.handlePatchTarget)
			r.Delete("/targets/{id}", s.handleDeleteTarget)
			r.Post("/targets/{id}/pause", s.handlePauseTarget)
			r.Post("/targets/{id}/resume", s.handleResumeTarget)
			r.Post("/targets/{id}/mute", s.handleMuteTarget)
			r.Post("/targets/{id}/unmute", s.handleUnmuteTarget)
			r.Post("/subscriptions", s.handleSubscribe)
			r.Delete("/subscriptions", s.handleUnsubscribe)
		})
	})

	return r
}

// isValidHTTPURL accepts absolute http(s) URLs with a host.
func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// normalizeHTTPURL lowercases the host, strips default ports and a bare
// trailing slash so equivalent URLs compare equal.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}
	return u.String()
}
