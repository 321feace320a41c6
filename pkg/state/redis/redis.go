package redis

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ViBiOh/flags"
	prom "github.com/ViBiOh/uuidgen/pkg/prometheus"
	"github.com/ViBiOh/uuidgen/pkg/state"
	"github.com/ViBiOh/uuidgen/pkg/telemetry"
	google "github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -source redis.go -destination ../../mocks/redis.go -package mocks -mock_names Client=RedisClient

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

var _ state.Store = Store{}

var (
	ErrNoAddress = errors.New("no redis address")

	lockPollInterval = time.Millisecond * 10
	releaseTimeout   = time.Second
)

type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Close() error
}

// Store persists the clock state as a JSON value. Writers are serialized by a lock key holding a
// random token, acquired with SET NX PX and released only by its owner.
type Store struct {
	client  Client
	tracer  trace.Tracer
	metric  *prometheus.CounterVec
	key     string
	lockKey string
	lockTTL time.Duration
}

type Config struct {
	Address  string
	Username string
	Password string
	Key      string
	Database int
	LockTTL  time.Duration
}

func Flags(fs *flag.FlagSet, prefix string, overrides ...flags.Override) *Config {
	var config Config

	flags.New("Address", "Redis Address host:port").Prefix(prefix).DocPrefix("redis").StringVar(fs, &config.Address, "127.0.0.1:6379", overrides)
	flags.New("Username", "Redis Username, if any").Prefix(prefix).DocPrefix("redis").StringVar(fs, &config.Username, "", overrides)
	flags.New("Password", "Redis Password, if any").Prefix(prefix).DocPrefix("redis").StringVar(fs, &config.Password, "", overrides)
	flags.New("Database", "Redis Database").Prefix(prefix).DocPrefix("redis").IntVar(fs, &config.Database, 0, overrides)
	flags.New("Key", "Key of the clock state").Prefix(prefix).DocPrefix("redis").StringVar(fs, &config.Key, "uuidgen:clock", overrides)
	flags.New("LockTTL", "Expiration of the clock state lock").Prefix(prefix).DocPrefix("redis").DurationVar(fs, &config.LockTTL, time.Second*10, overrides)

	return &config
}

func New(ctx context.Context, config *Config, prometheusRegisterer prometheus.Registerer, tracerProvider trace.TracerProvider) (Store, error) {
	address := strings.TrimSpace(config.Address)
	if len(address) == 0 {
		return Store{}, ErrNoAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Username: config.Username,
		Password: config.Password,
		DB:       config.Database,
	})

	if tracerProvider != nil {
		if err := redisotel.InstrumentTracing(client, redisotel.WithTracerProvider(tracerProvider)); err != nil {
			slog.LogAttrs(ctx, slog.LevelError, "redis tracing", slog.Any("error", err))
		}
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return Store{}, errors.Join(fmt.Errorf("ping: %w", err), client.Close())
	}

	return NewWithClient(client, config.Key, config.LockTTL, prometheusRegisterer, telemetry.Tracer(tracerProvider, "redis")), nil
}

func NewWithClient(client Client, key string, lockTTL time.Duration, prometheusRegisterer prometheus.Registerer, tracer trace.Tracer) Store {
	return Store{
		client:  client,
		tracer:  tracer,
		metric:  prom.CounterVec(prometheusRegisterer, "uuidgen", "redis", "operation", "state"),
		key:     key,
		lockKey: key + ":lock",
		lockTTL: lockTTL,
	}
}

func (s Store) Close() error {
	return s.client.Close()
}

func (s Store) Update(ctx context.Context, update state.UpdateFunc) (err error) {
	ctx, end := telemetry.StartSpan(ctx, s.tracer, "update", trace.WithSpanKind(trace.SpanKindClient))
	defer end(&err)

	token := google.NewString()

	if err = s.lock(ctx, token); err != nil {
		prom.Increase(s.metric, "error")

		return fmt.Errorf("lock: %w", err)
	}

	defer func() {
		if releaseErr := s.release(ctx, token); releaseErr != nil {
			prom.Increase(s.metric, "error")
			err = errors.Join(err, fmt.Errorf("release: %w", releaseErr))
		}
	}()

	content, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		prom.Increase(s.metric, "error")

		return fmt.Errorf("get: %w", err)
	}

	previous, found, corrupt := state.Decode(content)
	if corrupt != nil {
		prom.Increase(s.metric, "corrupt")
	}

	if !found {
		prom.Increase(s.metric, "miss")
	}

	next, err := update(previous, found)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	payload, err := next.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err = s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		prom.Increase(s.metric, "error")

		return fmt.Errorf("set: %w", err)
	}

	prom.Increase(s.metric, "update")

	return corrupt
}

func (s Store) lock(ctx context.Context, token string) error {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		acquired, err := s.client.SetNX(ctx, s.lockKey, token, s.lockTTL).Result()
		if err != nil {
			return err
		}

		if acquired {
			return nil
		}

		prom.Increase(s.metric, "contention")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s Store) release(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	return s.client.Eval(ctx, releaseScript, []string{s.lockKey}, token).Err()
}
