// Package services – SessionManager
//
// This file implements SessionManager, which owns the translation sessions
// of the process. A session wraps one Orchestrator and follows an explicit
// lifecycle: Create (detached) → Attach (active) → Detach (inert; disposal
// scheduled after a grace window) → Dispose. Re-attaching within the grace
// window keeps the session and its state.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultGrace is the detach-to-dispose window.
const DefaultGrace = 5 * time.Second

// Session is a live translation session.
type Session struct {
	ID           string
	CreatedAt    time.Time
	Orchestrator *Orchestrator
}

type sessionEntry struct {
	sess     *Session
	attached bool
	timer    *time.Timer
	// detachGen invalidates disposal timers that lost a race with Attach.
	detachGen uint64
}

// SessionManager creates and tracks sessions. It is safe for concurrent use.
type SessionManager struct {
	deps  OrchestratorDeps
	opts  OrchestratorOptions
	grace time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionManager returns a manager whose sessions share deps and opts.
// A negative grace selects DefaultGrace; zero disposes on detach.
func NewSessionManager(deps OrchestratorDeps, opts OrchestratorOptions, grace time.Duration) *SessionManager {
	if grace < 0 {
		grace = DefaultGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		deps:     deps,
		opts:     opts,
		grace:    grace,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*sessionEntry),
	}
}

// Create starts a new detached session.
func (m *SessionManager) Create(ctx context.Context) (*Session, error) {
	_, span := otel.Tracer("services/SessionManager").Start(ctx, "Create")
	defer span.End()

	if m.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}

	id := uuid.NewString()
	lg := log.With().Str("session_id", id).Logger()
	deps := m.deps
	deps.Logger = &lg

	o := NewOrchestrator(deps, m.opts)
	o.Start(m.ctx)
	s := &Session{ID: id, CreatedAt: time.Now().UTC(), Orchestrator: o}

	m.mu.Lock()
	m.sessions[id] = &sessionEntry{sess: s}
	m.mu.Unlock()

	sessionsLive.Inc()
	span.SetAttributes(attribute.String("session.id", id))
	lg.Info().Msg("session created")
	return s, nil
}

// Get returns the session with id.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.sess, nil
}

// Attach cancels any pending disposal and activates the session.
func (m *SessionManager) Attach(ctx context.Context, id string) (*Session, error) {
	_, span := otel.Tracer("services/SessionManager").Start(ctx, "Attach",
		trace.WithAttributes(attribute.String("session.id", id)),
	)
	defer span.End()

	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.detachGen++
	e.attached = true
	m.mu.Unlock()

	if err := e.sess.Orchestrator.Attach(); err != nil {
		return nil, err
	}
	return e.sess, nil
}

// Detach makes the session inert at once and schedules its disposal after
// the grace window.
func (m *SessionManager) Detach(ctx context.Context, id string) error {
	_, span := otel.Tracer("services/SessionManager").Start(ctx, "Detach",
		trace.WithAttributes(attribute.String("session.id", id)),
	)
	defer span.End()

	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	e.attached = false
	e.detachGen++
	gen := e.detachGen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(m.grace, func() { m.expire(id, gen) })
	m.mu.Unlock()

	return e.sess.Orchestrator.Detach()
}

func (m *SessionManager) expire(id string, gen uint64) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || e.attached || e.detachGen != gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	log.Debug().Str("session_id", id).Msg("grace window elapsed")
	_ = m.Dispose(id)
}

// Dispose tears the session down now.
func (m *SessionManager) Dispose(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	m.mu.Unlock()

	e.sess.Orchestrator.Close()
	sessionsLive.Dec()
	log.Info().Str("session_id", id).Msg("session disposed")
	return nil
}

// Len reports the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close disposes every session and refuses new ones.
func (m *SessionManager) Close() {
	m.cancel()

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Dispose(id)
	}
}
