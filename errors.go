package forensicfs

import (
	"errors"
	"fmt"
)

var (
	// ErrIO matches every *IOError.
	ErrIO = errors.New("image i/o error")

	// ErrNoSpace is returned when a bitmap scan finds no free bit.
	ErrNoSpace = errors.New("no free bit in bitmap")

	// ErrAllocation is returned when the inode table staging buffer cannot be obtained.
	ErrAllocation = errors.New("staging buffer allocation failed")

	// ErrTruncated is returned by Open when the backing store is shorter than fs_size.
	ErrTruncated = errors.New("image is shorter than its superblock size")

	// ErrClosed is returned by every Image method after Close.
	ErrClosed = errors.New("image is closed")

	ErrInvalidGeometry = errors.New("invalid image geometry")
	ErrInodeRange      = errors.New("inode number out of range")
	ErrReserved        = errors.New("index is reserved for metadata")
	ErrNotAllocated    = errors.New("index is not allocated")
)

// IOError describes a failed open, seek, read or write against the backing store.
type IOError struct {
	Op    string
	Path  string
	Block uint32
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s `%s` block %d: %v", e.Op, e.Path, e.Block, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// ErrBadMagic is returned when block 0 does not carry FSMagic.
type ErrBadMagic struct {
	Found uint32
}

func (err ErrBadMagic) Error() string {
	return fmt.Sprintf("bad magic: wanted `%#08x`; found `%#08x`", FSMagic, err.Found)
}

// ErrBadVersion is returned for a superblock version this package does not understand.
type ErrBadVersion struct {
	Found uint32
}

func (err ErrBadVersion) Error() string {
	return fmt.Sprintf("unsupported format version: wanted `%d`; found `%d`", FormatVersion, err.Found)
}
