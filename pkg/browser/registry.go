package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/accfleet/accfleet/pkg/logging"
)

// RegistryConfig wires a Registry's collaborators.
type RegistryConfig struct {
	// Factory builds drivers; required.
	Factory DriverFactory

	// Login runs the authentication flow on freshly built drivers; required.
	Login *LoginFlow

	// Driver is the launch template. Headless and Proxy are filled per
	// create call.
	Driver DriverConfig

	// TeardownGrace bounds how long a graceful driver quit may take before
	// the handle is abandoned.
	TeardownGrace time.Duration

	// MaxSessions caps concurrent sessions; 0 means unlimited.
	MaxSessions int

	Logger *logging.Logger
}

// Registry is the keyed collection of live sessions. It is the only mutable
// shared state in the core: one mutex guards the map's structural mutation,
// and a per-key singleflight group serializes racing creates for the same
// key without serializing unrelated keys.
type Registry struct {
	cfg RegistryConfig
	log *logging.Logger

	mu       sync.Mutex
	sessions map[SessionKey]*Session
	inflight map[SessionKey]struct{}

	creating singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.TeardownGrace == 0 {
		cfg.TeardownGrace = DefaultTeardownGrace
	}
	return &Registry{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[SessionKey]*Session),
		inflight: make(map[SessionKey]struct{}),
	}
}

// Create builds, authenticates and registers a session for key. A session
// already present under key is closed first. Concurrent creates for the same
// key collapse onto one driver construction and share its result; creates
// for different keys proceed fully in parallel.
func (r *Registry) Create(ctx context.Context, key SessionKey, material AuthMaterial, proxy *ProxyDescriptor, headless bool) (*Session, error) {
	v, err, _ := r.creating.Do(string(key), func() (interface{}, error) {
		return r.createSession(ctx, key, material, proxy, headless)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// CreateNoWait behaves like Create but rejects with ErrConcurrentCreation
// when a creation for key is already in progress, instead of waiting for it.
func (r *Registry) CreateNoWait(ctx context.Context, key SessionKey, material AuthMaterial, proxy *ProxyDescriptor, headless bool) (*Session, error) {
	r.mu.Lock()
	_, busy := r.inflight[key]
	r.mu.Unlock()
	if busy {
		return nil, fmt.Errorf("%s: %w", key, ErrConcurrentCreation)
	}
	return r.Create(ctx, key, material, proxy, headless)
}

func (r *Registry) createSession(ctx context.Context, key SessionKey, material AuthMaterial, proxy *ProxyDescriptor, headless bool) (*Session, error) {
	r.mu.Lock()
	r.inflight[key] = struct{}{}
	limit := r.cfg.MaxSessions
	count := len(r.sessions)
	_, replacing := r.sessions[key]
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
	}()

	if limit > 0 && count >= limit && !replacing {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", limit)
	}
	if !material.HasCookies() && !material.HasCredentials() {
		return nil, fmt.Errorf("create %s: %w", key, ErrNoAuthMaterial)
	}

	// Recreating a key first fully closes the old session. Failures here are
	// logged, not fatal: a wedged old driver must not block recreation.
	if replacing {
		if err := r.Close(key); err != nil {
			r.warnf("closing previous session for %s: %v", key, err)
		}
	}

	cfg := r.cfg.Driver
	cfg.Headless = headless
	cfg.Proxy = proxy

	drv, err := r.cfg.Factory(ctx, cfg)
	if err != nil {
		if proxy != nil {
			var perr *ProxyError
			if errors.As(err, &perr) {
				return nil, err
			}
		}
		return nil, fmt.Errorf("driver launch for %s failed: %w", key, err)
	}

	outcome, err := r.cfg.Login.Login(ctx, drv, material)
	if err != nil || outcome.State != LoginAuthenticated {
		r.teardown(key, drv)
		if err != nil {
			return nil, &AuthError{Key: key, Outcome: outcome, Err: err}
		}
		return nil, &AuthError{Key: key, Outcome: outcome}
	}

	session := newSession(key, drv, proxy, headless)

	r.mu.Lock()
	r.sessions[key] = session
	r.mu.Unlock()

	metricSessionsCreated.Inc()
	metricSessionsActive.Inc()
	r.logf("session created for %s (headless=%t, proxy=%t)", key, headless, proxy != nil)
	return session, nil
}

// Get returns the session for key or ErrSessionNotFound.
func (r *Registry) Get(key SessionKey) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrSessionNotFound)
	}
	return session, nil
}

// Close releases the session for key. Idempotent: closing an absent key is a
// no-op. The driver teardown is graceful up to the configured grace period;
// a dirty teardown is reported but the entry is removed regardless, so the
// key never leaks.
func (r *Registry) Close(key SessionKey) error {
	r.mu.Lock()
	session, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	metricSessionsClosed.Inc()
	metricSessionsActive.Dec()

	if err := session.close(r.cfg.TeardownGrace); err != nil {
		r.warnf("%v", err)
		return err
	}
	r.logf("session closed for %s", key)
	return nil
}

// CloseAll closes every session. Individual failures are collected and
// joined, never fatal to the remaining entries.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	keys := make([]SessionKey, 0, len(r.sessions))
	for key := range r.sessions {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := r.Close(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List snapshots every session, ordered by key for stable output.
func (r *Registry) List() []SessionSummary {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, s.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Key < summaries[j].Key })
	return summaries
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// teardown disposes a driver that never made it into the map.
func (r *Registry) teardown(key SessionKey, drv DriverHandle) {
	quitCtx, cancel := context.WithTimeout(context.Background(), r.cfg.TeardownGrace)
	defer cancel()
	if err := drv.Quit(quitCtx); err != nil {
		r.warnf("teardown after failed create for %s: %v", key, err)
	}
}

func (r *Registry) logf(format string, v ...interface{}) {
	if r.log != nil {
		r.log.Infof(format, v...)
	}
}

func (r *Registry) warnf(format string, v ...interface{}) {
	if r.log != nil {
		r.log.Warnf(format, v...)
	}
}
