package logger

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ViBiOh/flags"
)

var exitFunc = os.Exit

type Config struct {
	Level      string
	TimeKey    string
	LevelKey   string
	MessageKey string
	JSON       bool
}

func Flags(fs *flag.FlagSet, prefix string, overrides ...flags.Override) *Config {
	var config Config

	flags.New("Level", "Logger level").Prefix(prefix).DocPrefix("logger").StringVar(fs, &config.Level, "INFO", overrides)
	flags.New("Json", "Log format as JSON").Prefix(prefix).DocPrefix("logger").BoolVar(fs, &config.JSON, false, overrides)
	flags.New("TimeKey", "Key for timestamp in JSON").Prefix(prefix).DocPrefix("logger").StringVar(fs, &config.TimeKey, "time", overrides)
	flags.New("LevelKey", "Key for level in JSON").Prefix(prefix).DocPrefix("logger").StringVar(fs, &config.LevelKey, "level", overrides)
	flags.New("MessageKey", "Key for message in JSON").Prefix(prefix).DocPrefix("logger").StringVar(fs, &config.MessageKey, "msg", overrides)

	return &config
}

// Init installs the configured handler as slog default. Logs are written to stderr so that stdout carries only generated identifiers.
func Init(config *Config, decorators ...func(slog.Handler) slog.Handler) {
	slog.SetDefault(slog.New(New(config, os.Stderr, decorators...)))
}

func New(config *Config, writer io.Writer, decorators ...func(slog.Handler) slog.Handler) slog.Handler {
	level, err := parseLevel(config.Level)

	options := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceKeys(config),
	}

	var handler slog.Handler

	if config.JSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}

	for _, decorator := range decorators {
		handler = decorator(handler)
	}

	if err != nil {
		slog.New(handler).Warn("fallback to INFO level", slog.Any("error", err))
	}

	return handler
}

func replaceKeys(config *Config) func([]string, slog.Attr) slog.Attr {
	keys := map[string]string{
		slog.TimeKey:    config.TimeKey,
		slog.LevelKey:   config.LevelKey,
		slog.MessageKey: config.MessageKey,
	}

	return func(groups []string, attr slog.Attr) slog.Attr {
		if len(groups) != 0 {
			return attr
		}

		if replacement, ok := keys[attr.Key]; ok && len(replacement) != 0 {
			attr.Key = replacement
		}

		return attr
	}
}

// FatalfOnErr logs and exits with status 1 if err is not nil.
func FatalfOnErr(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}

	slog.LogAttrs(ctx, slog.LevelError, fmt.Sprintf(msg, args...), slog.Any("error", err))
	exitFunc(1)
}
