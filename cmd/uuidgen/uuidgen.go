package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ViBiOh/uuidgen/pkg/generator"
	"github.com/ViBiOh/uuidgen/pkg/logger"
	"github.com/ViBiOh/uuidgen/pkg/uuid"
)

var (
	ErrNoName         = errors.New("name is required for version 3 and 5")
	ErrUnknownVersion = errors.New("unknown version")
)

func main() {
	ctx := context.Background()

	config, err := parseArgs()
	logger.FatalfOnErr(ctx, err, "config")

	clients, err := newClient(ctx, config)
	if err != nil {
		clients.Close(ctx)
	}

	logger.FatalfOnErr(ctx, err, "client")

	uuidGenerator, err := newGenerator(config, clients)
	if err == nil {
		writer := bufio.NewWriter(os.Stdout)

		err = errors.Join(generate(ctx, uuidGenerator, config.uuid, writer), writer.Flush())
	}

	clients.Close(ctx)

	logger.FatalfOnErr(ctx, err, "generate")
}

func generate(ctx context.Context, uuidGenerator *generator.Generator, config *generateConfig, writer io.Writer) error {
	next, err := newFactory(ctx, uuidGenerator, config)
	if err != nil {
		return err
	}

	for range config.Count {
		value, err := next()
		if err != nil {
			return err
		}

		if _, err = fmt.Fprintln(writer, value.String()); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}

	return nil
}

func newFactory(ctx context.Context, uuidGenerator *generator.Generator, config *generateConfig) (func() (uuid.UUID, error), error) {
	switch config.Version {
	case uuid.VersionTime:
		return func() (uuid.UUID, error) {
			return uuidGenerator.NewV1(ctx)
		}, nil

	case uuid.VersionRandom:
		return uuidGenerator.NewV4, nil

	case uuid.VersionMD5, uuid.VersionSHA1:
		namespace, err := uuid.Namespace(strings.TrimSpace(config.Namespace))
		if err != nil {
			return nil, fmt.Errorf("namespace: %w", err)
		}

		if len(config.Name) == 0 {
			return nil, ErrNoName
		}

		hash := uuidGenerator.NewV3
		if config.Version == uuid.VersionSHA1 {
			hash = uuidGenerator.NewV5
		}

		return func() (uuid.UUID, error) {
			return hash(namespace, config.Name), nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, config.Version)
	}
}
