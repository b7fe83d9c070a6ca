package files

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock for a path.
var ErrLocked = errors.New("output is in use by another subflow process")

// Lock takes an exclusive advisory lock on path+".lock" without blocking.
// The returned func releases the lock and removes the lock file.
func Lock(path string) (func() error, error) {
	lockPath := path + ".lock"
	if err := RejectSymlinkPath(lockPath); err != nil {
		return nil, err
	}
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return func() error {
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("unlock %s: %w", lockPath, err)
		}
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}, nil
}
