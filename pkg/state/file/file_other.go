//go:build !unix

package file

import (
	"context"
	"errors"

	"github.com/ViBiOh/uuidgen/pkg/state"
)

var ErrUnsupported = errors.New("file state requires flock(2)")

func New(config *Config) (Store, error) {
	if len(config.Path) == 0 {
		return Store{}, ErrNoPath
	}

	return Store{}, ErrUnsupported
}

func (s Store) Update(_ context.Context, _ state.UpdateFunc) error {
	return ErrUnsupported
}
