package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ajaxzhan/mirrorfs/internal/logging"
)

// ErrAlreadyMounted is returned when another process serves the mount point.
var ErrAlreadyMounted = errors.New("mount point is already served by another process")

// mountLock is an advisory lock keyed by mount point.
type mountLock struct {
	fl   *flock.Flock
	path string
}

// lockPath names the lock file for mountPoint inside dir.
func lockPath(dir, mountPoint string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.Clean(mountPoint)))
	return filepath.Join(dir, id.String()+".lock")
}

func acquireMountLock(dir, mountPoint string) (*mountLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := lockPath(dir, mountPoint)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMounted, mountPoint)
	}

	// The pid is informational; the flock is what excludes other mounts.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		logging.Debug("failed to record pid in lock file", logging.String("path", path), logging.Err(err))
	}

	return &mountLock{fl: fl, path: path}, nil
}

// release removes the lock file and drops the lock. The file is removed
// while still locked so that a waiting process never locks a file that is
// about to disappear.
func (l *mountLock) release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Debug("failed to remove lock file", logging.String("path", l.path), logging.Err(err))
	}
	return l.fl.Unlock()
}
