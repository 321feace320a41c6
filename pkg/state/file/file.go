//go:build unix

package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ViBiOh/uuidgen/pkg/state"
	"golang.org/x/sys/unix"
)

func New(config *Config) (Store, error) {
	if len(config.Path) == 0 {
		return Store{}, ErrNoPath
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o700); err != nil {
		return Store{}, fmt.Errorf("create directory: %w", err)
	}

	return Store{path: config.Path}, nil
}

func (s Store) Update(ctx context.Context, update state.UpdateFunc) (err error) {
	lockFile, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock: %w", err)
	}

	defer func() {
		if closeErr := lockFile.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close lock: %w", closeErr))
		}
	}()

	if err = lock(ctx, lockFile); err != nil {
		return fmt.Errorf("lock: %w", err)
	}

	defer func() {
		if unlockErr := unix.Flock(int(lockFile.Fd()), unix.LOCK_UN); unlockErr != nil {
			err = errors.Join(err, fmt.Errorf("unlock: %w", unlockErr))
		}
	}()

	previous, found, readErr := s.read()
	if readErr != nil && !errors.Is(readErr, state.ErrCorrupt) {
		return readErr
	}

	next, err := update(previous, found)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if err = s.write(next); err != nil {
		return err
	}

	return readErr
}

func lock(ctx context.Context, lockFile *os.File) error {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}

		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s Store) read() (state.ClockState, bool, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state.ClockState{}, false, nil
		}

		return state.ClockState{}, false, fmt.Errorf("read: %w", err)
	}

	return state.Decode(content)
}

func (s Store) write(value state.ClockState) error {
	content, err := value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary: %w", err)
	}

	if _, err = temporary.Write(content); err == nil {
		err = temporary.Sync()
	}

	if closeErr := temporary.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(temporary.Name())

		return fmt.Errorf("write temporary: %w", err)
	}

	if err = os.Rename(temporary.Name(), s.path); err != nil {
		_ = os.Remove(temporary.Name())

		return fmt.Errorf("rename: %w", err)
	}

	return nil
}
