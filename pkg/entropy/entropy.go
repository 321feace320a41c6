package entropy

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

var ErrUnavailable = errors.New("entropy unavailable")

// Source fills buffers with cryptographically strong random bytes. Implementations are safe for concurrent use.
type Source interface {
	Fill([]byte) error
}

type Reader struct {
	reader io.Reader
}

var defaultSource = Reader{reader: rand.Reader}

// Default returns the process-wide source backed by crypto/rand.
func Default() Reader {
	return defaultSource
}

func New(reader io.Reader) Reader {
	return Reader{reader: reader}
}

func (r Reader) Fill(buffer []byte) error {
	if _, err := io.ReadFull(r.reader, buffer); err != nil {
		return fmt.Errorf("read %d bytes: %w: %w", len(buffer), ErrUnavailable, err)
	}

	return nil
}

// Uint14 returns a random value in [0, 2^14).
func Uint14(source Source) (uint16, error) {
	var buffer [2]byte

	if err := source.Fill(buffer[:]); err != nil {
		return 0, err
	}

	return (uint16(buffer[0])<<8 | uint16(buffer[1])) & 0x3fff, nil
}
