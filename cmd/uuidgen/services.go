package main

import (
	"fmt"
	"time"

	"github.com/ViBiOh/uuidgen/pkg/clock"
	"github.com/ViBiOh/uuidgen/pkg/clockseq"
	"github.com/ViBiOh/uuidgen/pkg/entropy"
	"github.com/ViBiOh/uuidgen/pkg/generator"
	"github.com/ViBiOh/uuidgen/pkg/node"
	"github.com/ViBiOh/uuidgen/pkg/state"
	"github.com/ViBiOh/uuidgen/pkg/telemetry"
)

func newGenerator(config configuration, clients client) (*generator.Generator, error) {
	meterProvider := clients.telemetry.MeterProvider()
	tracerProvider := clients.telemetry.TracerProvider()

	degraded, err := generator.DegradedCounter(meterProvider, state.LogDegraded)
	if err != nil {
		return nil, fmt.Errorf("degraded counter: %w", err)
	}

	source := entropy.Default()

	identity := node.New(config.node, clients.store, source, node.WithDegradedHandler(degraded))

	manager := clockseq.New(config.clockseq, clock.New(time.Time{}), source, clients.store,
		clockseq.WithDegradedHandler(degraded),
		clockseq.WithTracer(telemetry.Tracer(tracerProvider, "clockseq")),
	)

	return generator.New(source, identity, manager, meterProvider, tracerProvider)
}
