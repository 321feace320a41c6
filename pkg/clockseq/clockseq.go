package clockseq

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ViBiOh/flags"
	"github.com/ViBiOh/uuidgen/pkg/clock"
	"github.com/ViBiOh/uuidgen/pkg/entropy"
	"github.com/ViBiOh/uuidgen/pkg/state"
	"github.com/ViBiOh/uuidgen/pkg/telemetry"
	"github.com/ViBiOh/uuidgen/pkg/uuid"
	"go.opentelemetry.io/otel/trace"
)

type Observation struct {
	Timestamp uint64
	Sequence  uint16
}

// Manager hands out (timestamp, sequence) pairs. Each call loads, computes and persists the
// clock state under a process mutex and the exclusive update of the store.
type Manager struct {
	clock       clock.Source
	entropy     entropy.Source
	store       state.Store
	onDegraded  state.DegradedHandler
	tracer      trace.Tracer
	mutex       sync.Mutex
	last        state.ClockState
	hasLast     bool
	degraded    bool
	lockTimeout time.Duration
}

type Option func(*Manager)

func WithDegradedHandler(handler state.DegradedHandler) Option {
	return func(instance *Manager) {
		instance.onDegraded = handler
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(instance *Manager) {
		instance.tracer = tracer
	}
}

type Config struct {
	LockTimeout time.Duration
}

func Flags(fs *flag.FlagSet, prefix string, overrides ...flags.Override) *Config {
	var config Config

	flags.New("LockTimeout", "Timeout for reading and writing the clock state").Prefix(prefix).DocPrefix("clockseq").DurationVar(fs, &config.LockTimeout, time.Second*2, overrides)

	return &config
}

func New(config *Config, clockSource clock.Source, entropySource entropy.Source, store state.Store, options ...Option) *Manager {
	instance := &Manager{
		clock:       clockSource,
		entropy:     entropySource,
		store:       store,
		onDegraded:  state.LogDegraded,
		lockTimeout: config.LockTimeout,
	}

	for _, option := range options {
		option(instance)
	}

	return instance
}

func (m *Manager) Observe(ctx context.Context, node uuid.Node) (output Observation, err error) {
	ctx, end := telemetry.StartSpan(ctx, m.tracer, "observe")
	defer end(&err)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	var (
		next     state.ClockState
		computed bool
	)

	err = m.update(ctx, func(previous state.ClockState, found bool) (state.ClockState, error) {
		previous, found = m.floor(previous, found, node)

		var nextErr error

		if next, nextErr = m.next(previous, found, node); nextErr != nil {
			return previous, nextErr
		}

		computed = true

		return next, nil
	})

	switch {
	case err == nil:
		m.resume(ctx)

	case errors.Is(err, state.ErrCorrupt):
		m.resume(ctx)
		m.report(ctx, fmt.Errorf("clock sequence: %w", err))

		err = nil

	case errors.Is(err, clock.ErrUnavailable), errors.Is(err, entropy.ErrUnavailable):
		return Observation{}, err

	case ctx.Err() != nil:
		return Observation{}, ctx.Err()

	default:
		if !computed {
			previous, found := m.floor(state.ClockState{}, false, node)

			var nextErr error

			if next, nextErr = m.next(previous, found, node); nextErr != nil {
				return Observation{}, nextErr
			}
		}

		report := fmt.Errorf("clock sequence: %w", err)
		if m.degraded {
			report = state.Ongoing(report)
		}

		m.degraded = true
		m.report(ctx, report)

		err = nil
	}

	m.last = next
	m.hasLast = true

	return Observation{Timestamp: next.Timestamp, Sequence: next.Sequence}, nil
}

func (m *Manager) report(ctx context.Context, err error) {
	if m.onDegraded != nil {
		m.onDegraded(ctx, state.Degraded(err))
	}
}

func (m *Manager) resume(ctx context.Context) {
	if !m.degraded {
		return
	}

	m.degraded = false

	slog.LogAttrs(ctx, slog.LevelInfo, "uuid clock state persisted again")
}

func (m *Manager) update(ctx context.Context, update state.UpdateFunc) error {
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}

	return m.store.Update(ctx, update)
}

// floor prefers the in-memory state when the persisted one is missing or older for the same node,
// which happens after writes were lost in degraded mode.
func (m *Manager) floor(previous state.ClockState, found bool, node uuid.Node) (state.ClockState, bool) {
	if !m.hasLast || m.last.Node != node {
		return previous, found
	}

	if !found || previous.Node != node || previous.Timestamp < m.last.Timestamp {
		return m.last, true
	}

	return previous, found
}

func (m *Manager) next(previous state.ClockState, found bool, node uuid.Node) (state.ClockState, error) {
	now, err := m.clock.Ticks()
	if err != nil {
		if !errors.Is(err, clock.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", clock.ErrUnavailable, err)
		}

		return previous, err
	}

	if !found || previous.Node != node || !previous.HasClock() {
		sequence, err := entropy.Uint14(m.entropy)
		if err != nil {
			return previous, fmt.Errorf("clock sequence: %w", err)
		}

		return state.ClockState{Timestamp: now, Sequence: sequence, Node: node}, nil
	}

	sequence := previous.Sequence
	if now <= previous.Timestamp {
		sequence = (sequence + 1) % state.MaxSequence
	}

	return state.ClockState{Timestamp: now, Sequence: sequence, Node: node}, nil
}
