package browser

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session aggregates one exclusively-owned driver, its proxy assignment and
// the status state machine. A session executes at most one operation at a
// time; concurrent callers are rejected with ErrSessionBusy rather than
// queued against shared driver state.
type Session struct {
	Key       SessionKey
	Proxy     *ProxyDescriptor
	CreatedAt time.Time

	mu           sync.Mutex
	driver       DriverHandle
	headless     bool
	status       SessionStatus
	lastActivity time.Time

	// ctx is cancelled exactly once, by the registry's close path, so
	// in-flight operations observe closure at their next step boundary.
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(key SessionKey, drv DriverHandle, proxy *ProxyDescriptor, headless bool) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Session{
		Key:          key,
		Proxy:        proxy,
		CreatedAt:    now,
		driver:       drv,
		headless:     headless,
		status:       StatusReady,
		lastActivity: now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Status returns the current state-machine position.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Headless reports the current rendering mode.
func (s *Session) Headless() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headless
}

// LastActivityAt returns the time of the last completed driver operation.
func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Do runs fn holding the session's operation slot. It transitions
// Ready->Busy, hands fn the driver and a context that observes both the
// caller's cancellation and the session's closure, and restores Ready
// afterwards unless fn moved the session to a terminal state.
func (s *Session) Do(ctx context.Context, op string, fn func(ctx context.Context, drv DriverHandle) error) error {
	drv, err := s.beginOp()
	if err != nil {
		return fmt.Errorf("%s on %s: %w", op, s.Key, err)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-opCtx.Done():
		}
	}()

	fnErr := fn(opCtx, drv)
	s.endOp()
	return fnErr
}

// beginOp claims the single operation slot.
func (s *Session) beginOp() (DriverHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusReady:
		s.status = StatusBusy
		return s.driver, nil
	case StatusBusy:
		return nil, ErrSessionBusy
	case StatusClosed:
		return nil, ErrSessionClosed
	default:
		return nil, fmt.Errorf("session in state %s: %w", s.status, ErrSessionBusy)
	}
}

// endOp releases the operation slot. Terminal states set during the
// operation (Error, Closed) are preserved.
func (s *Session) endOp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	if s.status == StatusBusy {
		s.status = StatusReady
	}
}

// markError parks the session in the Error state. The key stays registered
// so the caller can inspect and explicitly close it.
func (s *Session) markError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusClosed {
		s.status = StatusError
	}
}

// replaceDriver swaps in a new driver after a visibility toggle. The key,
// proxy and creation time are preserved. Returns false when the session was
// closed mid-toggle, in which case the caller still owns the new driver and
// must release it.
func (s *Session) replaceDriver(drv DriverHandle, headless bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return false
	}
	s.driver = drv
	s.headless = headless
	s.lastActivity = time.Now()
	return true
}

// close transitions to Closed, cancels in-flight work and releases the
// driver with a bounded grace period. Idempotent.
func (s *Session) close(grace time.Duration) error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusClosed
	drv := s.driver
	s.driver = nil
	s.mu.Unlock()

	s.cancel()

	if drv == nil {
		return nil
	}
	quitCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := drv.Quit(quitCtx); err != nil {
		return &TeardownError{Key: s.Key, Err: err}
	}
	return nil
}

// Summary snapshots the session for the API boundary.
func (s *Session) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	url := ""
	if s.driver != nil {
		url = s.driver.CurrentURL()
	}
	sum := SessionSummary{
		Key:            s.Key,
		CurrentURL:     url,
		Headless:       s.headless,
		Status:         s.status,
		HasProxy:       s.Proxy != nil,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.lastActivity,
	}
	if s.Proxy != nil {
		sum.ProxyHost = s.Proxy.Host
	}
	return sum
}
