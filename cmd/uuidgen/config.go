package main

import (
	"flag"
	"os"

	"github.com/ViBiOh/flags"
	"github.com/ViBiOh/uuidgen/pkg/clockseq"
	"github.com/ViBiOh/uuidgen/pkg/logger"
	"github.com/ViBiOh/uuidgen/pkg/node"
	"github.com/ViBiOh/uuidgen/pkg/state/file"
	"github.com/ViBiOh/uuidgen/pkg/state/postgres"
	"github.com/ViBiOh/uuidgen/pkg/state/redis"
	"github.com/ViBiOh/uuidgen/pkg/telemetry"
)

type configuration struct {
	logger    *logger.Config
	telemetry *telemetry.Config
	node      *node.Config
	clockseq  *clockseq.Config
	file      *file.Config
	redis     *redis.Config
	postgres  *postgres.Config
	uuid      *generateConfig
}

type generateConfig struct {
	Namespace string
	Name      string
	Store     string
	Textfile  string
	Version   uint
	Count     uint
}

func generateFlags(fs *flag.FlagSet, prefix string, overrides ...flags.Override) *generateConfig {
	var config generateConfig

	flags.New("Version", "UUID version: 1, 3, 4 or 5").Prefix(prefix).DocPrefix("uuid").UintVar(fs, &config.Version, 4, overrides)
	flags.New("Count", "Number of UUID to generate").Prefix(prefix).DocPrefix("uuid").UintVar(fs, &config.Count, 1, overrides)
	flags.New("Namespace", "Namespace of version 3 and 5: dns, url, oid, x500 or a UUID").Prefix(prefix).DocPrefix("uuid").StringVar(fs, &config.Namespace, "dns", overrides)
	flags.New("Name", "Name of version 3 and 5").Prefix(prefix).DocPrefix("uuid").StringVar(fs, &config.Name, "", overrides)
	flags.New("Store", "Clock state store: memory, file, redis or postgres").Prefix(prefix).DocPrefix("uuid").StringVar(fs, &config.Store, "file", overrides)
	flags.New("Textfile", "Write store metrics to this node_exporter textfile on exit").Prefix(prefix).DocPrefix("uuid").StringVar(fs, &config.Textfile, "", overrides)

	return &config
}

func newConfig(args []string) (configuration, error) {
	fs := flag.NewFlagSet("uuidgen", flag.ExitOnError)
	fs.Usage = flags.Usage(fs)

	config := configuration{
		uuid:      generateFlags(fs, ""),
		logger:    logger.Flags(fs, "logger", flags.NewOverride("Level", "WARN")),
		telemetry: telemetry.Flags(fs, "telemetry"),
		node:      node.Flags(fs, "node"),
		clockseq:  clockseq.Flags(fs, "clockseq"),
		file:      file.Flags(fs, "state"),
		redis:     redis.Flags(fs, "redis"),
		postgres:  postgres.Flags(fs, "db"),
	}

	return config, fs.Parse(args)
}

func parseArgs() (configuration, error) {
	return newConfig(os.Args[1:])
}
