// Package flock takes an exclusive advisory lock next to an image so that only
// one forensicfs process mutates it at a time.
package flock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("image is locked by another process")

type Flock struct {
	fd   *os.File
	path string
}

// LockPath returns the lock file used for an image.
func LockPath(imagePath string) string {
	return imagePath + ".lock"
}

// Lock acquires the lock for imagePath without blocking.
func Lock(imagePath string) (*Flock, error) {
	path := LockPath(imagePath)

	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fd.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, imagePath)
		}
		return nil, fmt.Errorf("error in locking %v: %w", path, err)
	}

	return &Flock{fd: fd, path: path}, nil
}

// Unlock releases the lock. The lock file is left in place.
func (f *Flock) Unlock() error {
	err := unix.Flock(int(f.fd.Fd()), unix.LOCK_UN)
	f.fd.Close()
	return err
}
