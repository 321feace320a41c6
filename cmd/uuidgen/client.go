package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ViBiOh/uuidgen/pkg/logger"
	"github.com/ViBiOh/uuidgen/pkg/state"
	"github.com/ViBiOh/uuidgen/pkg/state/file"
	"github.com/ViBiOh/uuidgen/pkg/state/postgres"
	"github.com/ViBiOh/uuidgen/pkg/state/redis"
	"github.com/ViBiOh/uuidgen/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

const closeTimeout = time.Second * 10

type client struct {
	telemetry *telemetry.Service
	registry  *prometheus.Registry
	store     state.Store
	closers   []func()
	textfile  string
}

func newClient(ctx context.Context, config configuration) (client, error) {
	var (
		output client
		err    error
	)

	logger.Init(config.logger)

	output.telemetry, err = telemetry.New(ctx, config.telemetry)
	if err != nil {
		return output, fmt.Errorf("telemetry: %w", err)
	}

	logger.Init(config.logger, output.telemetry.AddTraceToLogHandler)

	output.registry = prometheus.NewRegistry()
	output.textfile = strings.TrimSpace(config.uuid.Textfile)

	output.store, err = output.newStore(ctx, config)
	if err != nil {
		return output, fmt.Errorf("store: %w", err)
	}

	return output, nil
}

func (c *client) newStore(ctx context.Context, config configuration) (state.Store, error) {
	switch name := strings.ToLower(strings.TrimSpace(config.uuid.Store)); name {
	case "memory":
		slog.LogAttrs(ctx, slog.LevelWarn, "clock state is not persisted across restarts")

		return state.NewMemory(), nil

	case "file":
		return file.New(config.file)

	case "redis":
		store, err := redis.New(ctx, config.redis, c.registry, c.telemetry.TracerProvider())
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}

		c.closers = append(c.closers, func() {
			if err := store.Close(); err != nil {
				slog.LogAttrs(ctx, slog.LevelError, "close redis", slog.Any("error", err))
			}
		})

		return store, nil

	case "postgres":
		store, err := postgres.New(ctx, config.postgres, c.registry, c.telemetry.TracerProvider())
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		c.closers = append(c.closers, store.Close)

		return store, nil

	default:
		return nil, fmt.Errorf("unknown store `%s`", name)
	}
}

func (c client) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()

	for _, closer := range c.closers {
		closer()
	}

	if len(c.textfile) != 0 && c.registry != nil {
		if err := prometheus.WriteToTextfile(c.textfile, c.registry); err != nil {
			slog.LogAttrs(ctx, slog.LevelError, "write metrics textfile", slog.Any("error", err))
		}
	}

	c.telemetry.Close(ctx)
}
