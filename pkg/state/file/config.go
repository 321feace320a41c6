package file

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/ViBiOh/flags"
	"github.com/ViBiOh/uuidgen/pkg/state"
)

var _ state.Store = Store{}

var (
	ErrNoPath = errors.New("no path for state file")

	lockPollInterval = time.Millisecond * 5
)

// Store persists the clock state in a JSON file. Concurrent processes are serialized by an
// advisory lock on `<path>.lock`, which must live on a filesystem honouring flock(2).
type Store struct {
	path string
}

type Config struct {
	Path string
}

func Flags(fs *flag.FlagSet, prefix string, overrides ...flags.Override) *Config {
	var config Config

	flags.New("Path", "Path of the clock state file").Prefix(prefix).DocPrefix("state").StringVar(fs, &config.Path, defaultPath(), overrides)

	return &config
}

func defaultPath() string {
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "uuidgen", "clock.json")
	}

	return filepath.Join(os.TempDir(), "uuidgen-clock.json")
}
