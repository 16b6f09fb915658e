package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-session/internal/jobs"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"go.uber.org/multierr"
)

const (
	defaultIdleTTL     = 30 * time.Minute
	defaultLoadTimeout = 10 * time.Second
	SweepJobName       = "session_sweep"
)

var errManagerClosed = pkgerrors.New(pkgerrors.CodeDependency, "service is shutting down")

type ManagerParams struct {
	Deps    Deps
	IdleTTL time.Duration
	// LoadTimeout bounds the first load of a session. The load is shared by
	// every request waiting on it, so it does not follow any one caller's
	// cancellation.
	LoadTimeout time.Duration
}

// slot holds a session while it loads; ready closes once sess or err is set.
type slot struct {
	ready chan struct{}
	sess  *Session
	err   error
}

// Manager keeps one session per signed-in shopper.
type Manager struct {
	deps        Deps
	idleTTL     time.Duration
	loadTimeout time.Duration
	logg        *logger.Logger
	now     func() time.Time

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

func NewManager(params ManagerParams) (*Manager, error) {
	deps := params.Deps
	if deps.Remote == nil || deps.Validator == nil || deps.Orders == nil {
		return nil, fmt.Errorf("storefront collaborators required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ttl := params.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	loadTimeout := params.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	return &Manager{
		deps:        deps,
		idleTTL:     ttl,
		loadTimeout: loadTimeout,
		logg:        deps.Logger,
		now:         deps.Now,
		slots:       make(map[string]*slot),
	}, nil
}

// Get returns the shopper's session, building and loading it on first use.
// Concurrent first requests for the same shopper share one load. A failed
// load is not kept, so the next request tries again.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errManagerClosed
	}
	if s, ok := m.slots[userID]; ok {
		m.mu.Unlock()
		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "request canceled")
		}
		if s.err != nil {
			return nil, s.err
		}
		s.sess.touch()
		return s.sess, nil
	}
	s := &slot{ready: make(chan struct{})}
	m.slots[userID] = s
	m.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loadTimeout)
	sess, err := m.open(loadCtx, userID)
	cancel()

	m.mu.Lock()
	if err != nil {
		delete(m.slots, userID)
	} else if m.closed {
		sess.Close()
		delete(m.slots, userID)
		sess, err = nil, errManagerClosed
	}
	s.sess, s.err = sess, err
	close(s.ready)
	active := len(m.slots)
	m.mu.Unlock()

	m.deps.Metrics.SetActiveSessions(active)
	return sess, err
}

func (m *Manager) open(ctx context.Context, userID string) (*Session, error) {
	sess, err := New(userID, m.deps)
	if err != nil {
		return nil, err
	}
	if err := sess.Load(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	m.logg.Debug(m.logg.WithUserID(ctx, userID), "session opened")
	return sess, nil
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Sweep closes sessions idle for longer than the idle TTL and reports how
// many were dropped.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.idleTTL)
	var idle []*Session

	m.mu.Lock()
	for userID, s := range m.slots {
		select {
		case <-s.ready:
		default:
			continue
		}
		if s.sess != nil && s.sess.LastSeen().Before(cutoff) {
			idle = append(idle, s.sess)
			delete(m.slots, userID)
		}
	}
	active := len(m.slots)
	m.mu.Unlock()

	for _, sess := range idle {
		sess.Close()
	}
	m.deps.Metrics.SetActiveSessions(active)
	if len(idle) > 0 {
		m.logg.Info(m.logg.WithField(ctx, "swept", len(idle)), "idle sessions closed")
	}
	return len(idle)
}

// SweepJob exposes Sweep to the job runner.
func (m *Manager) SweepJob() jobs.Job {
	return jobs.Func{
		JobName: SweepJobName,
		Fn: func(ctx context.Context) error {
			m.Sweep(ctx)
			return nil
		},
	}
}

// Shutdown flushes pending checkout auto-saves and closes every session.
// Later calls to Get fail.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	var open []*Session
	for userID, s := range m.slots {
		select {
		case <-s.ready:
			if s.sess != nil {
				open = append(open, s.sess)
			}
			delete(m.slots, userID)
		default:
			// still loading; Get closes it once the load returns
		}
	}
	m.mu.Unlock()

	var errs error
	for _, sess := range open {
		if sess.Checkout().AutosavePending() {
			if err := sess.Checkout().Flush(ctx); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("flush checkout for %s: %w", sess.UserID(), err))
			}
		}
		sess.Close()
	}
	m.deps.Metrics.SetActiveSessions(0)
	return errs
}
