// Package failover routes audit events to a fallback sink while the primary
// sink keeps failing.
package failover

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "rlregistry/pkg/platform/audit"
	"rlregistry/pkg/platform/circuit"
)

// Sink writes to primary while its circuit is closed. Once the circuit opens,
// events go to fallback and the primary is probed at most once per cooldown.
// Every event lands in exactly one sink.
type Sink struct {
	primary  audit.Store
	fallback audit.Store
	breaker  *circuit.Breaker
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
}

type Option func(*Sink)

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) { s.breaker = b }
}

func WithCooldown(d time.Duration) Option {
	return func(s *Sink) { s.cooldown = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) { s.logger = logger }
}

func New(primary, fallback audit.Store, opts ...Option) *Sink {
	s := &Sink{
		primary:  primary,
		fallback: fallback,
		cooldown: 10 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuit.New("audit-primary", circuit.WithFailureThreshold(3))
	}
	return s
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	if s.breaker.IsOpen() && !s.probeDue() {
		return s.fallback.Append(ctx, event)
	}

	if err := s.primary.Append(ctx, event); err != nil {
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.mu.Lock()
			s.lastProbe = s.now()
			s.mu.Unlock()
			s.logger.WarnContext(ctx, "audit primary sink unavailable, using fallback",
				"breaker", s.breaker.Name(), "error", err)
		}
		return s.fallback.Append(ctx, event)
	}

	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "audit primary sink recovered", "breaker", s.breaker.Name())
	}
	return nil
}

func (s *Sink) probeDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastProbe) < s.cooldown {
		return false
	}
	s.lastProbe = now
	return true
}
