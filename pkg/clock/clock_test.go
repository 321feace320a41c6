package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2023, time.March, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, fixed, New(fixed).Now())
	assert.Equal(t, fixed, NewFunc(func() time.Time { return fixed }).Now())
	assert.WithinDuration(t, time.Now(), New(time.Time{}).Now(), time.Second)
}

func TestToTicks(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		instant time.Time
		want    uint64
		wantErr error
	}{
		"epoch": {
			Epoch,
			0,
			ErrUnavailable,
		},
		"just after epoch": {
			Epoch.Add(100 * time.Nanosecond),
			1,
			nil,
		},
		"unix epoch": {
			time.Unix(0, 0),
			unixOffset,
			nil,
		},
		"sub tick": {
			time.Unix(1, 150),
			unixOffset + 10_000_001,
			nil,
		},
		"zero": {
			time.Time{},
			0,
			ErrUnavailable,
		},
		"before epoch": {
			Epoch.Add(-time.Hour),
			0,
			ErrUnavailable,
		},
	}

	for intention, testCase := range cases {
		intention, testCase := intention, testCase

		t.Run(intention, func(t *testing.T) {
			t.Parallel()

			got, gotErr := ToTicks(testCase.instant)

			assert.Equal(t, testCase.want, got)
			assert.ErrorIs(t, gotErr, testCase.wantErr)
		})
	}
}

func TestFromTicks(t *testing.T) {
	t.Parallel()

	instant := time.Date(2024, time.February, 29, 23, 59, 59, 123456700, time.UTC)

	ticks, err := ToTicks(instant)
	assert.NoError(t, err)
	assert.Equal(t, instant, FromTicks(ticks))
	assert.Equal(t, time.Unix(0, 0).UTC(), FromTicks(unixOffset))
}

func TestTicks(t *testing.T) {
	t.Parallel()

	current := time.Unix(10, 0)
	instance := NewFunc(func() time.Time { return current })

	first, err := instance.Ticks()
	assert.NoError(t, err)

	current = current.Add(-time.Second)

	second, err := instance.Ticks()
	assert.NoError(t, err)
	assert.Equal(t, first-10_000_000, second)
}
