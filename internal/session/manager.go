// Package session owns the lifecycle of diagnosis sessions: creation,
// per-session wiring of executor, supervisor or graph runner, router
// and critic, the TTL sweeper, and event fanout to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moolen/causeway/internal/audit"
	"github.com/moolen/causeway/internal/critic"
	"github.com/moolen/causeway/internal/diaggraph"
	"github.com/moolen/causeway/internal/evidence"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/metrics"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
	"github.com/moolen/causeway/internal/router"
	"github.com/moolen/causeway/internal/supervisor"
	"github.com/moolen/causeway/internal/tools"
	"github.com/moolen/causeway/internal/topology"
)

var ErrSessionNotFound = errors.New("session not found")

// Invalidator drops per-session cached state on expiry; the topology
// resolver implements it.
type Invalidator interface {
	Invalidate(sessionID string)
}

// Deps are the shared components every session is wired from.
type Deps struct {
	LLM        provider.Provider
	Collectors tools.Options
	Runner     *diaggraph.Runner
	Critic     *critic.Critic
	Audit      *audit.Store
	Topology   Invalidator

	TTL             time.Duration
	CleanupInterval time.Duration
}

// Manager owns all live sessions and sweeps expired ones.
type Manager struct {
	deps   Deps
	logger *logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*Handle

	stop chan struct{}
	done chan struct{}
}

// NewManager creates a session manager. Zero lifecycle durations fall
// back to the configured defaults.
func NewManager(deps Deps) *Manager {
	if deps.TTL <= 0 {
		deps.TTL = 24 * time.Hour
	}
	if deps.CleanupInterval <= 0 {
		deps.CleanupInterval = 5 * time.Minute
	}
	return &Manager{
		deps:    deps,
		logger:  logging.GetLogger("session.manager"),
		now:     time.Now,
		entries: make(map[string]*Handle),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Name implements lifecycle.Component.
func (m *Manager) Name() string { return "session-manager" }

// SetCollectors swaps the collector set used for sessions created from
// now on. Live sessions keep the executor they were built with.
func (m *Manager) SetCollectors(opts tools.Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Collectors = opts
}

// Start launches the background sweeper.
func (m *Manager) Start(ctx context.Context) error {
	go m.sweepLoop()
	return nil
}

// Stop halts the sweeper and expires all remaining sessions.
func (m *Manager) Stop(ctx context.Context) error {
	close(m.stop)
	<-m.done

	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.entries))
	for id, h := range m.entries {
		handles = append(handles, h)
		delete(m.entries, id)
	}
	m.mu.Unlock()

	for _, h := range handles {
		m.expire(h)
	}
	return nil
}

func (m *Manager) sweepLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.deps.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info("swept %d expired sessions", n)
			}
		}
	}
}

// Create builds a fully wired session for the incident. Incidents with
// a service run the application-diagnosis supervisor; the rest run the
// cluster diagnostic graph.
func (m *Manager) Create(ctx context.Context, incident models.IncidentPointer) (*Handle, error) {
	if incident.ScanMode == "" {
		incident.ScanMode = models.ScanModeDiagnostic
	}
	if incident.ScanMode == models.ScanModeDiagnostic && incident.Service == "" && m.deps.Runner == nil {
		return nil, fmt.Errorf("incident needs a service or a cluster graph runner")
	}

	m.mu.Lock()
	opts := m.deps.Collectors
	m.mu.Unlock()

	sctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		session: Session{
			ID:        uuid.NewString(),
			Incident:  incident,
			CreatedAt: m.now().UTC(),
		},
		executor: tools.NewExecutor(opts),
		events:   NewEventEmitter(),
		critic:   m.deps.Critic,
		auditLog: m.deps.Audit,
		logger:   logging.GetLogger("session"),
		ctx:      sctx,
		cancel:   cancel,
	}

	if incident.ScanMode == models.ScanModeDiagnostic && incident.Service != "" {
		h.supervisor = supervisor.New(h.session.ID, incident, h.executor, h.events)
	} else {
		h.runner = m.deps.Runner
		h.deduper = evidence.NewDeduper()
		h.ledger = evidence.NewLedger()
		h.graph = evidence.NewGraph()
	}

	h.router = router.New(h.executor, m.deps.LLM, h, evidence.RouterContext{
		Namespace: incident.Namespace,
		Service:   incident.Service,
	})

	m.mu.Lock()
	m.entries[h.session.ID] = h
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	if m.deps.Audit != nil {
		err := m.deps.Audit.Record(ctx, audit.EntitySession, h.session.ID,
			audit.ActionCreated, "api", incident)
		if err != nil {
			m.logger.Warn("audit record failed: %v", err)
		}
	}
	h.events.Emit("session", "session_created",
		fmt.Sprintf("session created in %s mode", incident.ScanMode))
	return h, nil
}

// Get returns the live session with the given id.
func (m *Manager) Get(id string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return h, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes and expires all sessions past their TTL, returning how
// many were swept.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.deps.TTL)

	m.mu.Lock()
	var expired []*Handle
	for id, h := range m.entries {
		if h.session.CreatedAt.Before(cutoff) {
			expired = append(expired, h)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, h := range expired {
		m.expire(h)
	}
	return len(expired)
}

// expire cancels the session's in-flight work, waits for it to drain,
// and releases everything keyed by the session id.
func (m *Manager) expire(h *Handle) {
	h.cancel()
	h.tasks.Wait()

	if m.deps.Topology != nil {
		m.deps.Topology.Invalidate(h.session.ID)
	}
	metrics.SessionsActive.Dec()
	if m.deps.Audit != nil {
		err := m.deps.Audit.Record(context.Background(), audit.EntitySession, h.session.ID,
			audit.ActionExpired, "sweeper", nil)
		if err != nil {
			m.logger.Warn("audit record failed: %v", err)
		}
	}
	h.events.Emit("session", "session_expired", "session reached its TTL")
	h.events.Close()
	m.logger.Debug("session %s expired", h.session.ID)
}

// interface check: topology resolver satisfies the expiry hook
var _ Invalidator = (*topology.Resolver)(nil)
