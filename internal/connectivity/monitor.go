package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTTL          = 10 * time.Second
	defaultProbeTimeout = 1500 * time.Millisecond
)

// ProbeFunc reports whether a network path to the outside world exists.
type ProbeFunc func(ctx context.Context) bool

// DialProbe returns a probe that opens and closes a TCP connection to a
// well-known address. It answers "is there a network path at all", which
// is a different question from "is the cloud endpoint healthy" — the
// circuit breakers own the latter.
func DialProbe(addr string, timeout time.Duration) ProbeFunc {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}

	return func(ctx context.Context) bool {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// Monitor caches the probe result for a short TTL so every sync decision
// point can ask cheaply.
type Monitor struct {
	probe  ProbeFunc
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	lastResult  bool
	lastChecked time.Time
}

func NewMonitor(probe ProbeFunc, ttl time.Duration, logger *zap.Logger) *Monitor {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		probe:  probe,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Online returns the cached reachability result, re-probing when the TTL
// has elapsed.
func (m *Monitor) Online(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.lastChecked.IsZero() && now.Sub(m.lastChecked) < m.ttl {
		return m.lastResult
	}

	result := m.probe(ctx)
	if result != m.lastResult || m.lastChecked.IsZero() {
		m.logger.Info("connectivity changed", zap.Bool("online", result))
	}
	m.lastResult = result
	m.lastChecked = now
	return result
}

// Invalidate drops the cached result so the next Online call re-probes.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastChecked = time.Time{}
}
