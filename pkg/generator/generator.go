package generator

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ViBiOh/uuidgen/pkg/clockseq"
	"github.com/ViBiOh/uuidgen/pkg/entropy"
	"github.com/ViBiOh/uuidgen/pkg/state"
	"github.com/ViBiOh/uuidgen/pkg/telemetry"
	"github.com/ViBiOh/uuidgen/pkg/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type NodeResolver interface {
	Resolve(context.Context) (uuid.Node, error)
}

type Observer interface {
	Observe(context.Context, uuid.Node) (clockseq.Observation, error)
}

// Generator is safe for concurrent use. Uniqueness of version 1 values relies on the Observer.
type Generator struct {
	entropy   entropy.Source
	node      NodeResolver
	observer  Observer
	tracer    trace.Tracer
	generated metric.Int64Counter
}

func New(source entropy.Source, node NodeResolver, observer Observer, meterProvider metric.MeterProvider, tracerProvider trace.TracerProvider) (*Generator, error) {
	instance := &Generator{
		entropy:  source,
		node:     node,
		observer: observer,
		tracer:   telemetry.Tracer(tracerProvider, "generator"),
	}

	if meterProvider != nil {
		var err error

		instance.generated, err = meterProvider.Meter("github.com/ViBiOh/uuidgen/pkg/generator").Int64Counter("uuid.generated")
		if err != nil {
			return nil, fmt.Errorf("create counter: %w", err)
		}
	}

	return instance, nil
}

func (g *Generator) NewV4() (uuid.UUID, error) {
	var output uuid.UUID

	if err := g.entropy.Fill(output[:]); err != nil {
		return uuid.Nil, err
	}

	output.SetVersion(uuid.VersionRandom)
	output.SetVariant()

	g.count(context.Background(), uuid.VersionRandom)

	return output, nil
}

func (g *Generator) NewV1(ctx context.Context) (output uuid.UUID, err error) {
	ctx, end := telemetry.StartSpan(ctx, g.tracer, "v1")
	defer end(&err)

	node, err := g.node.Resolve(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve node: %w", err)
	}

	observation, err := g.observer.Observe(ctx, node)
	if err != nil {
		return uuid.Nil, fmt.Errorf("observe clock: %w", err)
	}

	g.count(ctx, uuid.VersionTime)

	return Pack(observation.Timestamp, observation.Sequence, node), nil
}

func (g *Generator) NewV3(namespace uuid.UUID, name string) uuid.UUID {
	g.count(context.Background(), uuid.VersionMD5)

	return uuid.NewMD5(namespace, name)
}

func (g *Generator) NewV5(namespace uuid.UUID, name string) uuid.UUID {
	g.count(context.Background(), uuid.VersionSHA1)

	return uuid.NewSHA1(namespace, name)
}

func (g *Generator) count(ctx context.Context, version int) {
	if g.generated == nil {
		return
	}

	g.generated.Add(ctx, 1, metric.WithAttributes(attribute.Int("version", version)))
}

// Pack lays out a version 1 UUID: the 60-bit timestamp split into time-low, time-mid and
// time-hi, the 14-bit sequence into clock-seq-hi and clock-seq-low, then the node.
func Pack(timestamp uint64, sequence uint16, node uuid.Node) uuid.UUID {
	var output uuid.UUID

	binary.BigEndian.PutUint32(output[0:4], uint32(timestamp))
	binary.BigEndian.PutUint16(output[4:6], uint16(timestamp>>32))
	binary.BigEndian.PutUint16(output[6:8], uint16(timestamp>>48)&0x0fff)
	output.SetVersion(uuid.VersionTime)

	output[8] = byte(sequence>>8) & 0x3f
	output[9] = byte(sequence)
	output.SetVariant()

	copy(output[10:], node[:])

	return output
}

// DegradedCounter counts degradations in `uuid.degraded` before handing them to next.
func DegradedCounter(meterProvider metric.MeterProvider, next state.DegradedHandler) (state.DegradedHandler, error) {
	if meterProvider == nil {
		return next, nil
	}

	counter, err := meterProvider.Meter("github.com/ViBiOh/uuidgen/pkg/generator").Int64Counter("uuid.degraded")
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	return func(ctx context.Context, err error) {
		counter.Add(ctx, 1)

		if next != nil {
			next(ctx, err)
		}
	}, nil
}
