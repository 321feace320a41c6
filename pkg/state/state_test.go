package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/ViBiOh/uuidgen/pkg/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMarshalJSON(t *testing.T) {
	t.Parallel()

	instance := ClockState{
		Timestamp: 42,
		Sequence:  0x1234,
		Node:      uuid.Node{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
	}

	content, err := json.Marshal(instance)
	assert.NoError(t, err)
	assert.Equal(t, `{"timestamp":42,"sequence":4660,"node":"001122334455"}`, string(content))

	got, found, err := Decode(content)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, instance, got)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		content   string
		want      ClockState
		wantFound bool
		wantErr   bool
	}{
		"empty": {
			"",
			ClockState{},
			false,
			false,
		},
		"valid": {
			`{"timestamp":1,"sequence":2,"node":"010203040506"}`,
			ClockState{Timestamp: 1, Sequence: 2, Node: uuid.Node{1, 2, 3, 4, 5, 6}},
			true,
			false,
		},
		"invalid json": {
			`{"timestamp":`,
			ClockState{},
			false,
			true,
		},
		"invalid node": {
			`{"timestamp":1,"sequence":2,"node":"zz"}`,
			ClockState{},
			false,
			true,
		},
		"short node": {
			`{"timestamp":1,"sequence":2,"node":"0102"}`,
			ClockState{},
			false,
			true,
		},
		"sequence out of range": {
			`{"timestamp":1,"sequence":16384,"node":"010203040506"}`,
			ClockState{},
			false,
			true,
		},
	}

	for intention, testCase := range cases {
		intention, testCase := intention, testCase

		t.Run(intention, func(t *testing.T) {
			t.Parallel()

			got, gotFound, gotErr := Decode([]byte(testCase.content))

			assert.Equal(t, testCase.want, got)
			assert.Equal(t, testCase.wantFound, gotFound)
			assert.Equal(t, testCase.wantErr, gotErr != nil)

			if testCase.wantErr {
				assert.ErrorIs(t, gotErr, ErrCorrupt)
			}
		})
	}
}

func TestDegraded(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := Degraded(cause)

	assert.ErrorIs(t, err, ErrDegraded)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrOngoing)

	repeated := Degraded(Ongoing(cause))

	assert.ErrorIs(t, repeated, ErrDegraded)
	assert.ErrorIs(t, repeated, ErrOngoing)
	assert.ErrorIs(t, repeated, cause)
}

func TestLogDegraded(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buffer bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buffer, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx := context.Background()
	cause := errors.New("disk full")

	LogDegraded(ctx, Degraded(cause))
	LogDegraded(ctx, Degraded(Ongoing(cause)))
	LogDegraded(ctx, Degraded(Ongoing(cause)))
	LogDegraded(ctx, Degraded(Corrupt(cause)))

	assert.Equal(t, 1, bytes.Count(buffer.Bytes(), []byte("kept in memory only")))
	assert.Equal(t, 1, bytes.Count(buffer.Bytes(), []byte("corrupt uuid state replaced")))
	assert.NotContains(t, buffer.String(), "still kept")
}

func TestMemoryUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	instance := NewMemory()

	_, found := instance.Load()
	assert.False(t, found)

	err := instance.Update(ctx, func(previous ClockState, found bool) (ClockState, error) {
		assert.False(t, found)

		return ClockState{Timestamp: 10, Sequence: 1}, nil
	})
	assert.NoError(t, err)

	failure := errors.New("clock")

	err = instance.Update(ctx, func(previous ClockState, found bool) (ClockState, error) {
		assert.True(t, found)
		assert.Equal(t, uint64(10), previous.Timestamp)

		return ClockState{Timestamp: 99}, failure
	})
	assert.ErrorIs(t, err, failure)

	got, found := instance.Load()
	assert.True(t, found)
	assert.Equal(t, ClockState{Timestamp: 10, Sequence: 1}, got)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	assert.ErrorIs(t, instance.Update(cancelled, nil), context.Canceled)
}
