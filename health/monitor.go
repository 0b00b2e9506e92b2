package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Check evaluates one component's health on demand.
type Check func() Status

// Monitor tracks the health of the agent's components.
type Monitor struct {
	name string

	mu       sync.RWMutex
	statuses map[string]Status
	checks   map[string]Check
}

// NewMonitor creates a monitor whose aggregate is reported under name.
func NewMonitor(name string) *Monitor {
	return &Monitor{
		name:     name,
		statuses: make(map[string]Status),
		checks:   make(map[string]Check),
	}
}

// Update stores a pushed status for component.
func (m *Monitor) Update(component string, status Status) {
	status.Component = component
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.statuses[component] = status
	m.mu.Unlock()
}

// Register installs a check evaluated on every Aggregate call. It replaces any pushed status.
func (m *Monitor) Register(component string, check Check) {
	m.mu.Lock()
	delete(m.statuses, component)
	m.checks[component] = check
	m.mu.Unlock()
}

// Get returns the current status of one component.
func (m *Monitor) Get(component string) (Status, bool) {
	m.mu.RLock()
	check, ok := m.checks[component]
	status, pushed := m.statuses[component]
	m.mu.RUnlock()

	if ok {
		s := check()
		s.Component = component
		return s, true
	}
	return status, pushed
}

// Aggregate evaluates all checks and combines them with the pushed statuses.
// Components are ordered by name.
func (m *Monitor) Aggregate() Status {
	m.mu.RLock()
	statuses := make([]Status, 0, len(m.statuses)+len(m.checks))
	for _, s := range m.statuses {
		statuses = append(statuses, s)
	}
	checks := make(map[string]Check, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	m.mu.RUnlock()

	for name, check := range checks {
		s := check()
		s.Component = name
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Component < statuses[j].Component })
	return Aggregate(m.name, statuses)
}

// Handler serves the aggregate as JSON; 503 when unhealthy.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.Aggregate()
		w.Header().Set("Content-Type", "application/json")
		if status.State == StateUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
