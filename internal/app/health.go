package app

import (
	"sync/atomic"

	"github.com/florianilch/switchboard/internal/proxy"
)

// Health tracks whether switchboard accepts API traffic, as reported on
// /health/readiness. All methods are safe for concurrent use.
type Health struct {
	ready atomic.Bool
}

var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth returns a Health that reports not ready until the proxy listens.
func NewHealth() *Health {
	return &Health{}
}

// SetReady flips readiness. App sets it once the listener is bound and
// clears it before the proxy shuts down.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the last value passed to SetReady.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
