package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/socketrobot/internal/drive"
)

var (
	ErrCapacityExceeded = errors.New("session capacity exceeded")
	ErrUnknownSession   = errors.New("unknown session")
)

const DefaultIdleTimeout = 30 * time.Second

// Session is one operator connection. Events recorded for it reach the sink
// in arrival order until it closes.
type Session struct {
	mu          sync.Mutex
	id          string
	createdAt   time.Time
	lastEventAt time.Time
	events      int
	closed      bool
	reason      EndReason
	done        chan struct{}
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session has ended and its held inputs were released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Reason reports why the session ended; empty while live.
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{ID: s.id, CreatedAt: s.createdAt.UTC(), LastEventAt: s.lastEventAt.UTC(), Events: s.events}
}

type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	idleTimeout time.Duration
	sink        Sink
	now         func() time.Time
	onEnd       func(Info, EndReason)
}

// NewManager creates a manager that admits at most maxSessions concurrent
// sessions (unbounded when <= 0) and evicts sessions idle for idleTimeout.
func NewManager(maxSessions int, idleTimeout time.Duration, sink Sink) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	// time.Now keeps the monotonic reading on every stamp, so liveness and
	// idle checks survive wall-clock steps.
	return &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
		sink:        sink,
		now:         time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetEndHook registers a callback invoked after a session closes or is evicted.
func (m *Manager) SetEndHook(hook func(Info, EndReason)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = hook
}

// Open admits a new session or fails with ErrCapacityExceeded, in which case
// no state is created.
func (m *Manager) Open() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, ErrCapacityExceeded
	}
	now := m.now()
	s := &Session{
		id:          uuid.NewString(),
		createdAt:   now,
		lastEventAt: now,
		done:        make(chan struct{}),
	}
	m.sessions[s.id] = s
	return s, nil
}

// Close ends the session. Its held inputs are released before Close returns.
func (m *Manager) Close(sessionID string) error {
	return m.end(sessionID, EndClosed)
}

// RecordEvent stamps the event (when it carries no timestamp), refreshes the
// session's liveness and hands the event to the sink.
func (m *Manager) RecordEvent(sessionID string, ev drive.InputEvent) error {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	now := m.now()
	m.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnknownSession
	}
	ev.SessionID = sessionID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	s.lastEventAt = now
	s.events++
	if m.sink != nil {
		m.sink.Apply(ev)
	}
	return nil
}

func (m *Manager) Get(sessionID string) (Info, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Info{}, ErrUnknownSession
	}
	return s.info(), nil
}

func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(all))
	for _, s := range all {
		out = append(out, s.info())
	}
	return out
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor evicts idle sessions every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.EvictIdle()
			}
		}
	}()
}

// EvictIdle ends every session with no event for the idle window and returns
// how many were evicted.
func (m *Manager) EvictIdle() int {
	m.mu.RLock()
	now := m.now()
	var idle []string
	for id, s := range m.sessions {
		s.mu.Lock()
		if now.Sub(s.lastEventAt) >= m.idleTimeout {
			idle = append(idle, id)
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	evicted := 0
	for _, id := range idle {
		// The session may have seen an event since the scan.
		stillIdle := func(s *Session) bool {
			return m.now().Sub(s.lastEventAt) >= m.idleTimeout
		}
		if err := m.end(id, EndEvicted, stillIdle); err == nil {
			evicted++
		}
	}
	return evicted
}

var errNotIdle = errors.New("session no longer idle")

func (m *Manager) end(sessionID string, reason EndReason, guard ...func(*Session) bool) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownSession
	}
	for _, g := range guard {
		s.mu.Lock()
		keep := !g(s)
		s.mu.Unlock()
		if keep {
			m.mu.Unlock()
			return errNotIdle
		}
	}
	delete(m.sessions, sessionID)
	hook := m.onEnd
	m.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.reason = reason
	if m.sink != nil {
		m.sink.Release(sessionID)
	}
	close(s.done)
	s.mu.Unlock()

	if hook != nil {
		hook(s.info(), reason)
	}
	return nil
}
