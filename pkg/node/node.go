package node

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/ViBiOh/flags"
	"github.com/ViBiOh/uuidgen/pkg/entropy"
	"github.com/ViBiOh/uuidgen/pkg/state"
	"github.com/ViBiOh/uuidgen/pkg/uuid"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// HardwareFunc lists the hardware addresses of the host.
type HardwareFunc func(context.Context) ([]uuid.Node, error)

// Identity resolves the node id once and caches it for its lifetime.
type Identity struct {
	store       state.Store
	entropy     entropy.Source
	hardware    HardwareFunc
	onDegraded  state.DegradedHandler
	mutex       sync.Mutex
	lockTimeout time.Duration
	node        uuid.Node
	resolved    bool
}

const defaultLockTimeout = time.Second * 2

type Option func(*Identity)

func WithHardware(hardware HardwareFunc) Option {
	return func(instance *Identity) {
		instance.hardware = hardware
	}
}

// WithoutHardware always uses a random node id, persisted in the store.
func WithoutHardware() Option {
	return func(instance *Identity) {
		instance.hardware = nil
	}
}

func WithDegradedHandler(handler state.DegradedHandler) Option {
	return func(instance *Identity) {
		instance.onDegraded = handler
	}
}

type Config struct {
	LockTimeout time.Duration
	Random      bool
}

func Flags(fs *flag.FlagSet, prefix string, overrides ...flags.Override) *Config {
	var config Config

	flags.New("Random", "Use a random node id instead of a hardware address").Prefix(prefix).DocPrefix("node").BoolVar(fs, &config.Random, false, overrides)
	flags.New("LockTimeout", "Timeout for reading and writing the persisted node id").Prefix(prefix).DocPrefix("node").DurationVar(fs, &config.LockTimeout, defaultLockTimeout, overrides)

	return &config
}

func New(config *Config, store state.Store, source entropy.Source, options ...Option) *Identity {
	instance := &Identity{
		store:       store,
		entropy:     source,
		hardware:    Hardware,
		onDegraded:  state.LogDegraded,
		lockTimeout: defaultLockTimeout,
	}

	if config != nil {
		instance.lockTimeout = config.LockTimeout

		if config.Random {
			instance.hardware = nil
		}
	}

	for _, option := range options {
		option(instance)
	}

	return instance
}

func (i *Identity) Resolve(ctx context.Context) (uuid.Node, error) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	if i.resolved {
		return i.node, nil
	}

	node, err := i.resolve(ctx)
	if err != nil {
		return uuid.Node{}, err
	}

	i.node = node
	i.resolved = true

	return node, nil
}

func (i *Identity) resolve(ctx context.Context) (uuid.Node, error) {
	if i.hardware != nil {
		nodes, err := i.hardware(ctx)
		if err != nil {
			slog.LogAttrs(ctx, slog.LevelDebug, "hardware address lookup", slog.Any("error", err))
		} else if node, ok := Lowest(nodes); ok {
			return node, nil
		}
	}

	var output uuid.Node

	err := i.update(ctx, func(previous state.ClockState, found bool) (state.ClockState, error) {
		if found && IsRandom(previous.Node) {
			output = previous.Node

			return previous, nil
		}

		node, err := i.random()
		if err != nil {
			return previous, err
		}

		output = node

		return state.ClockState{Node: node}, nil
	})

	if err == nil {
		return output, nil
	}

	if errors.Is(err, state.ErrCorrupt) {
		if i.onDegraded != nil {
			i.onDegraded(ctx, state.Degraded(fmt.Errorf("node %s: %w", output, err)))
		}

		return output, nil
	}

	if errors.Is(err, entropy.ErrUnavailable) {
		return uuid.Node{}, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return uuid.Node{}, ctxErr
	}

	if output.IsZero() {
		var randomErr error

		if output, randomErr = i.random(); randomErr != nil {
			return uuid.Node{}, randomErr
		}
	}

	if i.onDegraded != nil {
		i.onDegraded(ctx, state.Degraded(fmt.Errorf("node %s: %w", output, err)))
	}

	return output, nil
}

func (i *Identity) update(ctx context.Context, update state.UpdateFunc) error {
	if i.lockTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, i.lockTimeout)
		defer cancel()
	}

	return i.store.Update(ctx, update)
}

func (i *Identity) random() (uuid.Node, error) {
	var node uuid.Node

	if err := i.entropy.Fill(node[:]); err != nil {
		return node, err
	}

	node[0] |= 0x01

	return node, nil
}

// IsRandom reports whether node is a well-formed random node id.
func IsRandom(node uuid.Node) bool {
	return !node.IsZero() && node.IsMulticast()
}

// Lowest returns the byte-wise lowest genuine hardware address, ignoring zero and multicast ones.
func Lowest(nodes []uuid.Node) (uuid.Node, bool) {
	candidates := slices.DeleteFunc(slices.Clone(nodes), func(node uuid.Node) bool {
		return node.IsZero() || node.IsMulticast()
	})

	if len(candidates) == 0 {
		return uuid.Node{}, false
	}

	return slices.MinFunc(candidates, func(a, b uuid.Node) int {
		return bytes.Compare(a[:], b[:])
	}), true
}

// Hardware lists the 48-bit hardware addresses of the host interfaces.
func Hardware(ctx context.Context) ([]uuid.Node, error) {
	interfaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var output []uuid.Node

	for _, item := range interfaces {
		address, err := net.ParseMAC(item.HardwareAddr)
		if err != nil || len(address) != len(uuid.Node{}) {
			continue
		}

		output = append(output, uuid.Node(address))
	}

	return output, nil
}
