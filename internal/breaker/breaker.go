package breaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOpen is returned instead of making a network call while a breaker is
// rejecting traffic. It is retryable but must not feed back into the
// breaker's own failure counter.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker position for one endpoint.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func (s State) String() string { return string(s) }

const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 60 * time.Second
)

// Settings are shared by all breakers created from one registry.
type Settings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = defaultFailureThreshold
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = defaultResetTimeout
	}
	return s
}

// Snapshot is a point-in-time view of one breaker for the status surface.
type Snapshot struct {
	Endpoint            string     `json:"endpoint"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	OpenedAt            *time.Time `json:"openedAt,omitempty"`
}

// Breaker isolates one logical endpoint. Callers never manage state
// directly: Do owns admission and result accounting.
type Breaker struct {
	endpoint string
	settings Settings
	logger   *zap.Logger
	now      func() time.Time

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
}

func New(endpoint string, settings Settings, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Breaker{
		endpoint: endpoint,
		settings: settings.withDefaults(),
		logger:   logger,
		now:      time.Now,
		state:    StateClosed,
	}
}

// Do runs call under the breaker. When the breaker is rejecting it returns
// ErrOpen without invoking call; otherwise the call result updates the
// breaker synchronously.
func (b *Breaker) Do(ctx context.Context, call func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := call(ctx)
	b.record(err == nil)
	return err
}

// State returns the current position, applying the OPEN -> HALF_OPEN
// timeout lazily.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Endpoint:            b.endpoint,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
	}
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.ResetTimeout {
		snap.State = StateHalfOpen
	}
	if !b.openedAt.IsZero() && b.state != StateClosed {
		openedAt := b.openedAt
		snap.OpenedAt = &openedAt
	}
	return snap
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.settings.ResetTimeout {
			return ErrOpen
		}
		// Reset timeout elapsed: admit exactly one probe.
		b.state = StateHalfOpen
		b.probeInFlight = true
		b.logger.Info("circuit breaker half-open, admitting probe", zap.String("endpoint", b.endpoint))
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return ErrOpen
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state != StateClosed {
			b.logger.Info("circuit breaker closed", zap.String("endpoint", b.endpoint))
		}
		b.state = StateClosed
		b.consecutiveFailures = 0
		b.probeInFlight = false
		b.openedAt = time.Time{}
		return
	}

	switch b.state {
	case StateHalfOpen:
		// Probe failed: back to OPEN with a fresh timeout.
		b.state = StateOpen
		b.openedAt = b.now()
		b.probeInFlight = false
		b.logger.Warn("circuit breaker probe failed, reopening", zap.String("endpoint", b.endpoint))
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.settings.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.logger.Warn("circuit breaker opened",
				zap.String("endpoint", b.endpoint),
				zap.Int("consecutiveFailures", b.consecutiveFailures),
			)
		}
	case StateOpen:
		b.consecutiveFailures++
	}
}

// Registry hands out one independent breaker per logical endpoint so a
// failing dependency cannot block unrelated ones.
type Registry struct {
	settings Settings
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(settings Settings, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		settings: settings.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

func (r *Registry) Get(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[endpoint]; ok {
		return b
	}
	b := New(endpoint, r.settings, r.logger)
	r.breakers[endpoint] = b
	return b
}

// Snapshots returns the state of every known breaker, sorted by endpoint.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		snapshots = append(snapshots, b.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Endpoint < snapshots[j].Endpoint
	})
	return snapshots
}
