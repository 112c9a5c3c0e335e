package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/causeway/internal/logging"
)

// Manager starts registered components in dependency order and stops
// them in reverse, with a per-component shutdown grace period.
type Manager struct {
	mu              sync.Mutex
	components      []Component
	dependencies    map[Component][]Component
	started         []Component
	running         map[Component]bool
	shutdownTimeout time.Duration
	logger          *logging.Logger
}

// NewManager creates a lifecycle manager with a 30 second shutdown
// grace period per component.
func NewManager() *Manager {
	return &Manager{
		dependencies:    make(map[Component][]Component),
		running:         make(map[Component]bool),
		shutdownTimeout: 30 * time.Second,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register adds a component. Dependencies must already be registered;
// the component starts after all of them and stops before any of them.
func (m *Manager) Register(component Component, dependsOn ...Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if component.Name() == "" {
		return fmt.Errorf("component must have a non-empty name")
	}
	for _, c := range m.components {
		if c == component {
			return fmt.Errorf("component %s is already registered", component.Name())
		}
	}
	for _, dep := range dependsOn {
		registered := false
		for _, c := range m.components {
			if c == dep {
				registered = true
				break
			}
		}
		if !registered {
			return fmt.Errorf("dependency %s is not registered", dep.Name())
		}
	}
	if m.wouldCreateCycle(component, dependsOn) {
		return fmt.Errorf("registering %s would create a circular dependency", component.Name())
	}

	m.components = append(m.components, component)
	m.dependencies[component] = dependsOn
	m.logger.Debug("registered component %s with %d dependencies", component.Name(), len(dependsOn))
	return nil
}

func (m *Manager) wouldCreateCycle(component Component, dependsOn []Component) bool {
	visited := make(map[Component]bool)
	var reaches func(from Component) bool
	reaches = func(from Component) bool {
		if from == component {
			return true
		}
		if visited[from] {
			return false
		}
		visited[from] = true
		for _, dep := range m.dependencies[from] {
			if reaches(dep) {
				return true
			}
		}
		return false
	}
	for _, dep := range dependsOn {
		if reaches(dep) {
			return true
		}
	}
	return false
}

// Start brings all components up in dependency order. A failure stops
// the already started components in reverse order and returns the
// error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = nil
	for _, component := range m.topologicalSort() {
		m.logger.Info("starting %s", component.Name())
		begin := time.Now()

		if err := component.Start(ctx); err != nil {
			m.logger.Error("failed to start %s: %v", component.Name(), err)
			m.rollbackLocked()
			return fmt.Errorf("start %s: %w", component.Name(), err)
		}

		m.running[component] = true
		m.started = append(m.started, component)
		m.logger.Info("%s started (took %dms)", component.Name(), time.Since(begin).Milliseconds())
	}
	return nil
}

func (m *Manager) topologicalSort() []Component {
	visited := make(map[Component]bool)
	var sorted []Component
	var visit func(Component)
	visit = func(c Component) {
		if visited[c] {
			return
		}
		visited[c] = true
		for _, dep := range m.dependencies[c] {
			visit(dep)
		}
		sorted = append(sorted, c)
	}
	for _, c := range m.components {
		visit(c)
	}
	return sorted
}

// rollbackLocked stops everything started so far, newest first.
func (m *Manager) rollbackLocked() {
	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := component.Stop(ctx); err != nil {
			m.logger.Warn("error stopping %s during rollback: %v", component.Name(), err)
		}
		cancel()
		m.running[component] = false
	}
	m.started = nil
}

// Stop shuts down all started components in reverse start order. Each
// component gets its own grace period; errors are logged and do not
// stop the remaining shutdowns.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		if !m.running[component] {
			continue
		}

		m.logger.Info("stopping %s", component.Name())
		begin := time.Now()

		componentCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
		err := component.Stop(componentCtx)
		cancel()

		switch {
		case err == context.DeadlineExceeded:
			m.logger.Warn("%s exceeded the %dms grace period", component.Name(), m.shutdownTimeout.Milliseconds())
		case err != nil:
			m.logger.Error("error stopping %s: %v", component.Name(), err)
		default:
			m.logger.Info("%s stopped (took %dms)", component.Name(), time.Since(begin).Milliseconds())
		}
		m.running[component] = false
	}
	return nil
}

// IsRunning reports whether the component started and has not stopped.
func (m *Manager) IsRunning(component Component) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[component]
}

// SetShutdownTimeout overrides the per-component grace period.
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}
