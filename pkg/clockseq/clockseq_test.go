package clockseq

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/ViBiOh/uuidgen/pkg/clock"
	"github.com/ViBiOh/uuidgen/pkg/entropy"
	"github.com/ViBiOh/uuidgen/pkg/mocks"
	"github.com/ViBiOh/uuidgen/pkg/state"
	"github.com/ViBiOh/uuidgen/pkg/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

var (
	node  = uuid.Node{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	other = uuid.Node{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}
)

type steps struct {
	values []uint64
	index  int
}

func (s *steps) Ticks() (uint64, error) {
	value := s.values[s.index%len(s.values)]
	s.index++

	return value, nil
}

type brokenClock struct{}

func (brokenClock) Ticks() (uint64, error) {
	return 0, errors.New("no rtc")
}

// fixed returns an entropy source whose 14-bit values are the given ones, in order.
func fixed(values ...uint16) entropy.Source {
	var content []byte

	for _, value := range values {
		content = append(content, byte(value>>8), byte(value))
	}

	return entropy.New(bytes.NewReader(content))
}

func TestFlags(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("flags", flag.ContinueOnError)
	config := Flags(fs, "")

	assert.Equal(t, time.Second*2, config.LockTimeout)
	assert.NoError(t, fs.Parse([]string{"-lockTimeout", "100ms"}))
	assert.Equal(t, time.Millisecond*100, config.LockTimeout)
}

func TestObserve(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		ticks    []uint64
		persist  *state.ClockState
		initial  uint16
		observed uuid.Node
		want     []Observation
	}{
		"monotone": {
			[]uint64{10, 20, 30},
			nil,
			0x1234,
			node,
			[]Observation{{10, 0x1234}, {20, 0x1234}, {30, 0x1234}},
		},
		"same tick": {
			[]uint64{10, 10, 10},
			nil,
			0x1234,
			node,
			[]Observation{{10, 0x1234}, {10, 0x1235}, {10, 0x1236}},
		},
		"regression": {
			[]uint64{30, 20, 25},
			nil,
			0x1234,
			node,
			[]Observation{{30, 0x1234}, {20, 0x1235}, {25, 0x1235}},
		},
		"wraparound": {
			[]uint64{10, 10},
			nil,
			0x3fff,
			node,
			[]Observation{{10, 0x3fff}, {10, 0x0000}},
		},
		"persisted ahead": {
			[]uint64{50, 60},
			&state.ClockState{Timestamp: 100, Sequence: 5, Node: node},
			0x1234,
			node,
			[]Observation{{50, 6}, {60, 6}},
		},
		"persisted behind": {
			[]uint64{150},
			&state.ClockState{Timestamp: 100, Sequence: 5, Node: node},
			0x1234,
			node,
			[]Observation{{150, 5}},
		},
		"node changed": {
			[]uint64{150, 150},
			&state.ClockState{Timestamp: 100, Sequence: 5, Node: other},
			0x1234,
			node,
			[]Observation{{150, 0x1234}, {150, 0x1235}},
		},
		"node only": {
			[]uint64{150},
			&state.ClockState{Node: node},
			0x0042,
			node,
			[]Observation{{150, 0x0042}},
		},
	}

	for intention, testCase := range cases {
		intention, testCase := intention, testCase

		t.Run(intention, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := state.NewMemory()

			if testCase.persist != nil {
				assert.NoError(t, store.Update(ctx, func(state.ClockState, bool) (state.ClockState, error) {
					return *testCase.persist, nil
				}))
			}

			instance := New(&Config{}, &steps{values: testCase.ticks}, fixed(testCase.initial), store)

			for index, want := range testCase.want {
				got, err := instance.Observe(ctx, testCase.observed)

				assert.NoError(t, err)
				assert.Equal(t, want, got, "observation %d", index)

				persisted, found := store.Load()
				assert.True(t, found)
				assert.Equal(t, state.ClockState{Timestamp: want.Timestamp, Sequence: want.Sequence, Node: testCase.observed}, persisted)
			}
		})
	}
}

func TestObserveFailure(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		clock   clock.Source
		entropy entropy.Source
		wantErr error
	}{
		"clock": {
			brokenClock{},
			fixed(1),
			clock.ErrUnavailable,
		},
		"clock before epoch": {
			clock.New(time.Date(1500, time.January, 1, 0, 0, 0, 0, time.UTC)),
			fixed(1),
			clock.ErrUnavailable,
		},
		"entropy": {
			&steps{values: []uint64{10}},
			entropy.New(iotest.ErrReader(errors.New("depleted"))),
			entropy.ErrUnavailable,
		},
	}

	for intention, testCase := range cases {
		intention, testCase := intention, testCase

		t.Run(intention, func(t *testing.T) {
			t.Parallel()

			store := state.NewMemory()

			var degraded bool

			instance := New(&Config{}, testCase.clock, testCase.entropy, store, WithDegradedHandler(func(context.Context, error) {
				degraded = true
			}))

			_, err := instance.Observe(context.Background(), node)

			assert.ErrorIs(t, err, testCase.wantErr)
			assert.False(t, degraded)

			_, found := store.Load()
			assert.False(t, found)
		})
	}
}

func TestObserveDegraded(t *testing.T) {
	t.Parallel()

	failure := errors.New("disk is full")

	cases := map[string]struct {
		setup func(*mocks.Store)
	}{
		"load failure": {
			func(store *mocks.Store) {
				store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(failure).Times(3)
			},
		},
		"write failure": {
			func(store *mocks.Store) {
				store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, update state.UpdateFunc) error {
					if _, err := update(state.ClockState{}, false); err != nil {
						return err
					}

					return failure
				}).Times(3)
			},
		},
	}

	for intention, testCase := range cases {
		intention, testCase := intention, testCase

		t.Run(intention, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)

			store := mocks.NewStore(ctrl)
			testCase.setup(store)

			var reported []error

			instance := New(&Config{}, &steps{values: []uint64{10, 10, 5}}, fixed(0x0100), store, WithDegradedHandler(func(_ context.Context, err error) {
				reported = append(reported, err)
			}))

			var got []Observation

			for range 3 {
				observation, err := instance.Observe(context.Background(), node)
				assert.NoError(t, err)

				got = append(got, observation)
			}

			assert.Equal(t, []Observation{{10, 0x0100}, {10, 0x0101}, {5, 0x0102}}, got)
			assert.Len(t, reported, 3)

			for index, err := range reported {
				assert.ErrorIs(t, err, state.ErrDegraded)
				assert.ErrorIs(t, err, failure)
				assert.Equal(t, index > 0, errors.Is(err, state.ErrOngoing))
			}
		})
	}
}

func TestObserveStaleStore(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	store := mocks.NewStore(ctrl)

	gomock.InOrder(
		store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, update state.UpdateFunc) error {
			_, err := update(state.ClockState{}, false)

			return err
		}),
		store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, update state.UpdateFunc) error {
			next, err := update(state.ClockState{Timestamp: 5, Sequence: 0x0200, Node: node}, true)
			assert.Equal(t, state.ClockState{Timestamp: 10, Sequence: 0x0101, Node: node}, next)

			return err
		}),
	)

	instance := New(&Config{}, &steps{values: []uint64{10}}, fixed(0x0100), store)

	first, err := instance.Observe(context.Background(), node)
	assert.NoError(t, err)
	assert.Equal(t, Observation{10, 0x0100}, first)

	second, err := instance.Observe(context.Background(), node)
	assert.NoError(t, err)
	assert.Equal(t, Observation{10, 0x0101}, second)
}

type blockingStore struct{}

func (blockingStore) Update(ctx context.Context, _ state.UpdateFunc) error {
	<-ctx.Done()

	return ctx.Err()
}

func TestObserveDegradedEpisodes(t *testing.T) {
	t.Parallel()

	failure := errors.New("disk is full")
	memory := state.NewMemory()

	ctrl := gomock.NewController(t)

	store := mocks.NewStore(ctrl)
	gomock.InOrder(
		store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(failure).Times(2),
		store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(memory.Update),
		store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(failure).Times(2),
	)

	var reported []error

	instance := New(&Config{}, &steps{values: []uint64{10, 11, 12, 13, 14}}, fixed(0x0100), store, WithDegradedHandler(func(_ context.Context, err error) {
		reported = append(reported, err)
	}))

	for range 5 {
		_, err := instance.Observe(context.Background(), node)
		assert.NoError(t, err)
	}

	assert.Len(t, reported, 4)

	var ongoing []bool
	for _, err := range reported {
		ongoing = append(ongoing, errors.Is(err, state.ErrOngoing))
	}

	assert.Equal(t, []bool{false, true, false, true}, ongoing)

	persisted, found := memory.Load()
	assert.True(t, found)
	assert.Equal(t, state.ClockState{Timestamp: 12, Sequence: 0x0100, Node: node}, persisted)
}

func TestObserveCorrupted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	var persisted state.ClockState

	store := mocks.NewStore(ctrl)
	store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, update state.UpdateFunc) (err error) {
		if persisted, err = update(state.ClockState{}, false); err != nil {
			return err
		}

		return state.Corrupt(errors.New("sequence 16384 out of range"))
	})

	var reported []error

	instance := New(&Config{}, &steps{values: []uint64{10}}, fixed(0x0100), store, WithDegradedHandler(func(_ context.Context, err error) {
		reported = append(reported, err)
	}))

	got, err := instance.Observe(context.Background(), node)

	assert.NoError(t, err)
	assert.Equal(t, Observation{10, 0x0100}, got)
	assert.Equal(t, state.ClockState{Timestamp: 10, Sequence: 0x0100, Node: node}, persisted)
	assert.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], state.ErrDegraded)
	assert.ErrorIs(t, reported[0], state.ErrCorrupt)
	assert.NotErrorIs(t, reported[0], state.ErrOngoing)
}

func TestObserveLockTimeout(t *testing.T) {
	t.Parallel()

	var reported error

	instance := New(&Config{LockTimeout: time.Millisecond * 20}, &steps{values: []uint64{10}}, fixed(0x0100), blockingStore{}, WithDegradedHandler(func(_ context.Context, err error) {
		reported = err
	}))

	got, err := instance.Observe(context.Background(), node)

	assert.NoError(t, err)
	assert.Equal(t, Observation{10, 0x0100}, got)
	assert.ErrorIs(t, reported, state.ErrDegraded)
	assert.ErrorIs(t, reported, context.DeadlineExceeded)
}

func TestObserveCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	instance := New(&Config{}, &steps{values: []uint64{10}}, fixed(0x0100), state.NewMemory())

	_, err := instance.Observe(ctx, node)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestObserveConcurrent(t *testing.T) {
	t.Parallel()

	const count = 1000

	instance := New(&Config{}, clock.New(time.Time{}), entropy.Default(), state.NewMemory())

	observations := make(chan Observation, count)

	var wg sync.WaitGroup

	for range count {
		wg.Add(1)

		go func() {
			defer wg.Done()

			observation, err := instance.Observe(context.Background(), node)
			assert.NoError(t, err)

			observations <- observation
		}()
	}

	wg.Wait()
	close(observations)

	seen := make(map[Observation]struct{}, count)

	for observation := range observations {
		seen[observation] = struct{}{}
	}

	assert.Len(t, seen, count)
}

func TestObserveLineage(t *testing.T) {
	t.Parallel()

	instance := New(&Config{}, &steps{values: []uint64{10, 10, 11, 11, 11, 12, 20, 20}}, fixed(0x2000), state.NewMemory())

	var previous Observation

	for index := range 8 {
		got, err := instance.Observe(context.Background(), node)
		assert.NoError(t, err)

		if index > 0 {
			assert.GreaterOrEqual(t, got.Timestamp, previous.Timestamp)

			if got.Timestamp > previous.Timestamp {
				assert.Equal(t, previous.Sequence, got.Sequence)
			} else {
				assert.Equal(t, (previous.Sequence+1)%state.MaxSequence, got.Sequence)
			}
		}

		previous = got
	}
}

func BenchmarkObserve(b *testing.B) {
	instance := New(&Config{}, clock.New(time.Time{}), entropy.Default(), state.NewMemory())
	ctx := context.Background()

	for b.Loop() {
		_, _ = instance.Observe(ctx, node)
	}
}
