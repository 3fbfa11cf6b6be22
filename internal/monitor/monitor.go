// Package monitor tracks reachability of the external Compliance Service as
// an explicit state machine.
//
// States: CHECKING (initial) → CONNECTED | DISCONNECTED. A successful
// liveness probe moves to CONNECTED; any probe failure moves to DISCONNECTED
// with the cause recorded. Re-probing is caller-driven — there is no
// background polling.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/clearlane/complianced/internal/complianceapi"
	"go.uber.org/zap"
)

// State is the monitor's connectivity state.
type State string

const (
	StateChecking     State = "checking"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Prober is the slice of the Compliance Service the monitor uses.
type Prober interface {
	Probe(ctx context.Context) (*complianceapi.ServiceInfo, error)
}

// Monitor holds the last observed connectivity state and probe outcome.
type Monitor struct {
	mu        sync.RWMutex
	state     State
	cause     error
	info      *complianceapi.ServiceInfo
	lastProbe time.Time

	prober Prober
	logger *zap.Logger
}

// New creates a monitor in the CHECKING state.
func New(prober Prober, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		state:  StateChecking,
		prober: prober,
		logger: logger.Named("monitor"),
	}
}

// Probe performs a liveness round trip and transitions the state machine.
// It returns the resulting state; on failure the error is also recorded as
// the disconnect cause.
func (m *Monitor) Probe(ctx context.Context) (State, error) {
	info, err := m.prober.Probe(ctx)

	m.mu.Lock()
	m.lastProbe = time.Now().UTC()
	if err != nil {
		m.state = StateDisconnected
		m.cause = err
		m.info = nil
	} else {
		m.state = StateConnected
		m.cause = nil
		m.info = info
	}
	state := m.state
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("connectivity probe failed", zap.Error(err))
		return state, err
	}
	m.logger.Info("connectivity probe succeeded",
		zap.String("service", info.Service),
		zap.String("version", info.Version))
	return state, nil
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Cause returns the recorded failure cause, nil unless DISCONNECTED.
func (m *Monitor) Cause() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cause
}

// Info returns the service description from the last successful probe.
func (m *Monitor) Info() *complianceapi.ServiceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

// LastProbe returns when the last probe completed, zero if never probed.
func (m *Monitor) LastProbe() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastProbe
}

// Require fast-fails with ConnectivityError while DISCONNECTED so callers
// skip a doomed round trip. This is an optimization, not a lock: a caller
// may force a fresh Probe and retry regardless of the current state.
// CHECKING does not block — the first call is allowed to find out.
func (m *Monitor) Require() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == StateDisconnected {
		return &compliance.ConnectivityError{Cause: m.cause}
	}
	return nil
}
