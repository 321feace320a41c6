package postgres

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/ViBiOh/flags"
	prom "github.com/ViBiOh/uuidgen/pkg/prometheus"
	"github.com/ViBiOh/uuidgen/pkg/state"
	"github.com/ViBiOh/uuidgen/pkg/telemetry"
	"github.com/ViBiOh/uuidgen/pkg/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -source postgres.go -destination ../../mocks/postgres.go -package mocks -mock_names Database=Database

var _ state.Store = Store{}

var (
	ErrNoHost = errors.New("no host for database connection")

	SQLTimeout = time.Second * 5
)

type Database interface {
	Ping(context.Context) error
	Close()
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// Store persists the clock state in a row keyed by name. Writers are serialized by a transaction
// scoped advisory lock derived from the name.
type Store struct {
	db     Database
	tracer trace.Tracer
	metric *prometheus.CounterVec
	name   string
	lockID int64
}

type Config struct {
	Host    string
	User    string
	Pass    string
	Name    string
	SSLMode string
	State   string
	Port    uint
	MaxConn uint
}

func Flags(fs *flag.FlagSet, prefix string, overrides ...flags.Override) *Config {
	var config Config

	flags.New("Host", "Host").Prefix(prefix).DocPrefix("database").StringVar(fs, &config.Host, "", overrides)
	flags.New("Port", "Port").Prefix(prefix).DocPrefix("database").UintVar(fs, &config.Port, 5432, overrides)
	flags.New("User", "User").Prefix(prefix).DocPrefix("database").StringVar(fs, &config.User, "", overrides)
	flags.New("Pass", "Pass").Prefix(prefix).DocPrefix("database").StringVar(fs, &config.Pass, "", overrides)
	flags.New("Name", "Name").Prefix(prefix).DocPrefix("database").StringVar(fs, &config.Name, "", overrides)
	flags.New("MaxConn", "Max Open Connections").Prefix(prefix).DocPrefix("database").UintVar(fs, &config.MaxConn, 2, overrides)
	flags.New("SslMode", "SSL Mode").Prefix(prefix).DocPrefix("database").StringVar(fs, &config.SSLMode, "disable", overrides)
	flags.New("State", "Name of the clock state row").Prefix(prefix).DocPrefix("database").StringVar(fs, &config.State, "default", overrides)

	return &config
}

func New(ctx context.Context, config *Config, prometheusRegisterer prometheus.Registerer, tracerProvider trace.TracerProvider) (Store, error) {
	host := strings.TrimSpace(config.Host)
	if len(host) == 0 {
		return Store{}, ErrNoHost
	}

	pool, err := pgxpool.New(ctx, fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d", host, config.Port, strings.TrimSpace(config.User), config.Pass, strings.TrimSpace(config.Name), config.SSLMode, config.MaxConn))
	if err != nil {
		return Store{}, fmt.Errorf("connect to postgres: %w", err)
	}

	instance := NewWithDatabase(pool, config.State, prometheusRegisterer, telemetry.Tracer(tracerProvider, "postgres"))

	if err = instance.Ping(ctx); err != nil {
		pool.Close()

		return Store{}, fmt.Errorf("ping: %w", err)
	}

	if err = instance.Migrate(ctx); err != nil {
		pool.Close()

		return Store{}, err
	}

	return instance, nil
}

func NewWithDatabase(db Database, name string, prometheusRegisterer prometheus.Registerer, tracer trace.Tracer) Store {
	return Store{
		db:     db,
		tracer: tracer,
		metric: prom.CounterVec(prometheusRegisterer, "uuidgen", "postgres", "operation", "state"),
		name:   name,
		lockID: int64(xxh3.HashString("uuidgen:" + name)),
	}
}

func (s Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, SQLTimeout)
	defer cancel()

	return s.db.Ping(ctx)
}

func (s Store) Close() {
	s.db.Close()
}

const createQuery = `
CREATE TABLE IF NOT EXISTS uuidgen_clock (
  name TEXT PRIMARY KEY,
  timestamp BIGINT NOT NULL,
  sequence INTEGER NOT NULL CHECK (sequence >= 0 AND sequence < 16384),
  node BYTEA NOT NULL CHECK (octet_length(node) = 6)
)
`

func (s Store) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, SQLTimeout)
	defer cancel()

	if _, err := s.db.Exec(ctx, createQuery); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	return nil
}

const lockQuery = `SELECT pg_advisory_xact_lock($1)`

const getQuery = `
SELECT
  timestamp,
  sequence,
  node
FROM
  uuidgen_clock
WHERE
  name = $1
`

const upsertQuery = `
INSERT INTO
  uuidgen_clock
(
  name,
  timestamp,
  sequence,
  node
) VALUES (
  $1,
  $2,
  $3,
  $4
) ON CONFLICT (name) DO UPDATE SET
  timestamp = EXCLUDED.timestamp,
  sequence = EXCLUDED.sequence,
  node = EXCLUDED.node
`

func (s Store) Update(ctx context.Context, update state.UpdateFunc) (err error) {
	ctx, end := telemetry.StartSpan(ctx, s.tracer, "update", trace.WithSpanKind(trace.SpanKindClient))
	defer end(&err)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		prom.Increase(s.metric, "error")

		return fmt.Errorf("begin: %w", err)
	}

	corrupt := s.update(ctx, tx, update)
	if corrupt != nil && !errors.Is(corrupt, state.ErrCorrupt) {
		err = corrupt

		if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}

		return err
	}

	if err = tx.Commit(ctx); err != nil {
		prom.Increase(s.metric, "error")

		return fmt.Errorf("commit: %w", err)
	}

	prom.Increase(s.metric, "update")

	return corrupt
}

func (s Store) update(ctx context.Context, tx pgx.Tx, update state.UpdateFunc) error {
	if _, err := tx.Exec(ctx, lockQuery, s.lockID); err != nil {
		prom.Increase(s.metric, "error")

		return fmt.Errorf("lock: %w", err)
	}

	previous, found, corrupt := s.get(ctx, tx)
	if corrupt != nil {
		if !errors.Is(corrupt, state.ErrCorrupt) {
			prom.Increase(s.metric, "error")

			return corrupt
		}

		prom.Increase(s.metric, "corrupt")
	}

	if !found {
		prom.Increase(s.metric, "miss")
	}

	next, err := update(previous, found)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if _, err = tx.Exec(ctx, upsertQuery, s.name, int64(next.Timestamp), int32(next.Sequence), next.Node[:]); err != nil {
		prom.Increase(s.metric, "error")

		return fmt.Errorf("upsert: %w", err)
	}

	return corrupt
}

func (s Store) get(ctx context.Context, tx pgx.Tx) (state.ClockState, bool, error) {
	var (
		timestamp int64
		sequence  int32
		node      []byte
	)

	if err := tx.QueryRow(ctx, getQuery, s.name).Scan(&timestamp, &sequence, &node); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return state.ClockState{}, false, nil
		}

		return state.ClockState{}, false, fmt.Errorf("get: %w", err)
	}

	if timestamp < 0 || sequence < 0 || sequence >= state.MaxSequence || len(node) != len(uuid.Node{}) {
		return state.ClockState{}, false, state.Corrupt(fmt.Errorf("invalid row: timestamp=%d sequence=%d node=%x", timestamp, sequence, node))
	}

	output := state.ClockState{
		Timestamp: uint64(timestamp),
		Sequence:  uint16(sequence),
	}

	copy(output.Node[:], node)

	return output, true, nil
}
