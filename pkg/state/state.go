package state

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ViBiOh/uuidgen/pkg/uuid"
)

//go:generate mockgen -source state.go -destination ../mocks/state.go -package mocks -mock_names Store=Store

// MaxSequence bounds the 14-bit clock sequence.
const MaxSequence = 1 << 14

var (
	// ErrDegraded marks a persistence failure absorbed by falling back to in-memory state.
	ErrDegraded = errors.New("persistence degraded")

	// ErrOngoing marks a degradation following another one without a successful write in between.
	ErrOngoing = errors.New("still degraded")

	// ErrCorrupt marks a persisted document that could not be decoded. Stores overwrite it with the
	// result of the update and only then return an error wrapping ErrCorrupt.
	ErrCorrupt = errors.New("corrupt state")
)

// ClockState is persisted as a unit. A zero Timestamp means the node is known but no clock observation happened yet.
type ClockState struct {
	Timestamp uint64
	Sequence  uint16
	Node      uuid.Node
}

type jsonClockState struct {
	Timestamp uint64 `json:"timestamp"`
	Sequence  uint16 `json:"sequence"`
	Node      string `json:"node"`
}

func (cs ClockState) HasClock() bool {
	return cs.Timestamp != 0
}

func (cs ClockState) Valid() bool {
	return cs.Sequence < MaxSequence
}

func (cs ClockState) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonClockState{
		Timestamp: cs.Timestamp,
		Sequence:  cs.Sequence,
		Node:      hex.EncodeToString(cs.Node[:]),
	})
}

func (cs *ClockState) UnmarshalJSON(content []byte) error {
	var raw jsonClockState

	if err := json.Unmarshal(content, &raw); err != nil {
		return err
	}

	node, err := hex.DecodeString(raw.Node)
	if err != nil {
		return fmt.Errorf("decode node: %w", err)
	}

	if len(node) != len(cs.Node) {
		return fmt.Errorf("invalid node length %d", len(node))
	}

	cs.Timestamp = raw.Timestamp
	cs.Sequence = raw.Sequence
	copy(cs.Node[:], node)

	return nil
}

// UpdateFunc computes the next state from the persisted one. found is false when nothing is persisted yet.
type UpdateFunc func(previous ClockState, found bool) (ClockState, error)

// Store persists the ClockState. Update loads, calls update and stores its result as one exclusive
// read-modify-write. An error returned by update aborts the write and is returned wrapped.
// A corrupt document is handed to update as not found and replaced, Update then returns an error
// wrapping ErrCorrupt although the write succeeded.
type Store interface {
	Update(ctx context.Context, update UpdateFunc) error
}

// DegradedHandler receives errors wrapping ErrDegraded.
type DegradedHandler func(context.Context, error)

// LogDegraded warns once per degradation, repetitions are only logged at debug level.
func LogDegraded(ctx context.Context, err error) {
	switch {
	case errors.Is(err, ErrCorrupt):
		slog.LogAttrs(ctx, slog.LevelWarn, "corrupt uuid state replaced", slog.Any("error", err))
	case errors.Is(err, ErrOngoing):
		slog.LogAttrs(ctx, slog.LevelDebug, "uuid state still kept in memory only", slog.Any("error", err))
	default:
		slog.LogAttrs(ctx, slog.LevelWarn, "uuid state is kept in memory only, uniqueness across restarts is weakened", slog.Any("error", err))
	}
}

func Degraded(err error) error {
	return fmt.Errorf("%w: %w", ErrDegraded, err)
}

func Ongoing(err error) error {
	return fmt.Errorf("%w: %w", ErrOngoing, err)
}

func Corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}

// Decode reads a persisted document. Empty content is reported as not found, undecodable content
// as not found with an error wrapping ErrCorrupt.
func Decode(content []byte) (ClockState, bool, error) {
	if len(content) == 0 {
		return ClockState{}, false, nil
	}

	var output ClockState

	if err := json.Unmarshal(content, &output); err != nil {
		return ClockState{}, false, Corrupt(fmt.Errorf("unmarshal: %w", err))
	}

	if !output.Valid() {
		return ClockState{}, false, Corrupt(fmt.Errorf("sequence %d out of range", output.Sequence))
	}

	return output, true, nil
}
