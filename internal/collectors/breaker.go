// Package collectors implements the HTTP and Kubernetes clients the
// tool executor reads from: time-series DB, log index, cluster API,
// tracing backend, and source host. Every client call runs behind a
// circuit breaker; an open breaker surfaces as an unreachable endpoint
// status and never leaks connection detail to callers above the tool
// boundary.
package collectors

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/moolen/causeway/internal/config"
	"github.com/moolen/causeway/internal/logging"
)

// ErrEndpointOpen is returned when a collector's circuit breaker is
// open and the call was not attempted.
var ErrEndpointOpen = errors.New("collector endpoint unavailable")

// breakerSettings returns the shared breaker configuration: trip after
// 5 consecutive failures, probe again after 30s.
func breakerSettings(name string, logger *logging.Logger, onStatus func(config.EndpointStatus)) gobreaker.Settings {
	return gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("collector %s breaker %s -> %s", name, from, to)
			if onStatus == nil {
				return
			}
			switch to {
			case gobreaker.StateOpen:
				onStatus(config.EndpointUnreachable)
			case gobreaker.StateClosed:
				onStatus(config.EndpointOK)
			}
		},
	}
}

// endpointHealth tracks the last known reachability of one collector
// endpoint. Writes come from breaker state changes and call outcomes.
type endpointHealth struct {
	mu     sync.RWMutex
	status config.EndpointStatus
}

func newEndpointHealth() *endpointHealth {
	return &endpointHealth{status: config.EndpointOK}
}

func (h *endpointHealth) set(s config.EndpointStatus) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

func (h *endpointHealth) get() config.EndpointStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}
