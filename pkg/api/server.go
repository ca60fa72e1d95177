// Package api exposes the session core over HTTP. The admin panel's CRUD
// surface lives elsewhere; this facade only translates the registry, probe
// and proxy-check contracts to JSON and status codes.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/accfleet/accfleet/pkg/browser"
	"github.com/accfleet/accfleet/pkg/logging"
	"github.com/accfleet/accfleet/pkg/proxycheck"
)

// SessionService is the slice of the registry the facade consumes.
type SessionService interface {
	Create(ctx context.Context, key browser.SessionKey, material browser.AuthMaterial, proxy *browser.ProxyDescriptor, headless bool) (*browser.Session, error)
	CreateNoWait(ctx context.Context, key browser.SessionKey, material browser.AuthMaterial, proxy *browser.ProxyDescriptor, headless bool) (*browser.Session, error)
	Get(key browser.SessionKey) (*browser.Session, error)
	Close(key browser.SessionKey) error
	CloseAll() error
	ToggleVisibility(ctx context.Context, key browser.SessionKey) (*browser.Session, error)
	List() []browser.SessionSummary
	Count() int
}

// StatusProber classifies account health for one session.
type StatusProber interface {
	Classify(ctx context.Context, session *browser.Session) (browser.StatusReport, error)
}

// ProxyChecker verifies proxy endpoints out of band.
type ProxyChecker interface {
	Check(ctx context.Context, desc browser.ProxyDescriptor) proxycheck.Result
}

// Server routes facade requests.
type Server struct {
	sessions SessionService
	prober   StatusProber
	proxies  ProxyChecker
	log      *logging.Logger
	router   chi.Router
}

// NewServer wires the facade.
func NewServer(sessions SessionService, prober StatusProber, proxies ProxyChecker, log *logging.Logger) *Server {
	s := &Server{
		sessions: sessions,
		prober:   prober,
		proxies:  proxies,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreate)
			r.Get("/", s.handleList)
			r.Get("/count", s.handleCount)
			r.Delete("/", s.handleCloseAll)
			r.Route("/{key}", func(r chi.Router) {
				r.Delete("/", s.handleClose)
				r.Post("/toggle", s.handleToggle)
				r.Post("/check", s.handleCheck)
			})
		})
		r.Post("/proxies/test", s.handleProxyTest)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestID tags every request so facade logs line up with core logs.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		if s.log != nil {
			s.log.Debugf("request %s: %s %s", id, r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
