package forensicfs

import (
	"fmt"
	"io"
	"os"
)

// BlockDevice is raw, block-addressed access to a fixed-size backing image.
// The core is written against this interface so callers pass a handle rather than
// a fixed path, and fixtures can use an in-memory image.
type BlockDevice interface {
	// ReadBlock returns exactly blockSize bytes starting at blockNumber*blockSize.
	ReadBlock(blockSize, blockNumber uint32) ([]byte, error)

	// WriteBlock writes all of buf starting at blockNumber*blockSize. buf is
	// normally one block, but may be shorter (the superblock record).
	WriteBlock(buf []byte, blockSize, blockNumber uint32) error
}

// Sizer is implemented by devices that can report the length of their backing
// store in bytes.
type Sizer interface {
	Size() (uint64, error)
}

// deviceSize returns the backing store length, or ok=false when dev cannot tell.
func deviceSize(dev BlockDevice) (size uint64, ok bool, err error) {
	s, ok := dev.(Sizer)
	if !ok {
		return 0, false, nil
	}

	size, err = s.Size()
	return size, true, err
}

// FileDevice implements BlockDevice over an image file. Every call opens and
// closes the file on its own: there is no persistent handle, buffering or write
// coalescing, so each operation is on disk when it returns. Writes never extend
// the file; the image keeps the length CreateImage gave it.
type FileDevice struct {
	path string
}

// NewFileDevice returns a device for an existing image file. The file is not
// opened until the first read or write.
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

// Path returns the image file path.
func (d *FileDevice) Path() string {
	return d.path
}

// Size returns the current length of the image file.
func (d *FileDevice) Size() (uint64, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return 0, &IOError{Op: "stat", Path: d.path, Err: err}
	}

	return uint64(info.Size()), nil
}

func (d *FileDevice) ReadBlock(blockSize, blockNumber uint32) ([]byte, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: d.path, Block: blockNumber, Err: err}
	}
	defer f.Close()

	if _, err := f.Seek(BlockOffset(blockSize, blockNumber), io.SeekStart); err != nil {
		return nil, &IOError{Op: "seek", Path: d.path, Block: blockNumber, Err: err}
	}

	buf := make([]byte, blockSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, &IOError{Op: "read", Path: d.path, Block: blockNumber, Err: err}
	}

	return buf, nil
}

func (d *FileDevice) WriteBlock(buf []byte, blockSize, blockNumber uint32) error {
	f, err := os.OpenFile(d.path, os.O_RDWR, 0)
	if err != nil {
		return &IOError{Op: "open", Path: d.path, Block: blockNumber, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return &IOError{Op: "stat", Path: d.path, Block: blockNumber, Err: err}
	}

	if BlockOffset(blockSize, blockNumber)+int64(len(buf)) > info.Size() {
		_ = f.Close()
		return &IOError{Op: "write", Path: d.path, Block: blockNumber, Err: io.ErrShortWrite}
	}

	if _, err := f.Seek(BlockOffset(blockSize, blockNumber), io.SeekStart); err != nil {
		_ = f.Close()
		return &IOError{Op: "seek", Path: d.path, Block: blockNumber, Err: err}
	}

	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return &IOError{Op: "write", Path: d.path, Block: blockNumber, Err: err}
	}

	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: d.path, Block: blockNumber, Err: err}
	}

	return nil
}

// MemoryDevice implements BlockDevice over a byte slice of fixed size.
// Reads and writes past the end fail like a short read or write on a file.
type MemoryDevice struct {
	buf []byte
}

// NewMemoryDevice returns a zero-filled in-memory image of size bytes.
func NewMemoryDevice(size uint64) *MemoryDevice {
	return &MemoryDevice{buf: make([]byte, size)}
}

// Bytes exposes the image contents.
func (d *MemoryDevice) Bytes() []byte {
	return d.buf
}

// Size returns the length of the in-memory image.
func (d *MemoryDevice) Size() (uint64, error) {
	return uint64(len(d.buf)), nil
}

func (d *MemoryDevice) ReadBlock(blockSize, blockNumber uint32) ([]byte, error) {
	off := BlockOffset(blockSize, blockNumber)
	if off+int64(blockSize) > int64(len(d.buf)) {
		return nil, &IOError{Op: "read", Path: "memory", Block: blockNumber, Err: io.ErrUnexpectedEOF}
	}

	buf := make([]byte, blockSize)
	copy(buf, d.buf[off:])

	return buf, nil
}

func (d *MemoryDevice) WriteBlock(buf []byte, blockSize, blockNumber uint32) error {
	off := BlockOffset(blockSize, blockNumber)
	if off+int64(len(buf)) > int64(len(d.buf)) {
		return &IOError{Op: "write", Path: "memory", Block: blockNumber, Err: io.ErrShortWrite}
	}

	copy(d.buf[off:], buf)

	return nil
}

// CreateImage creates (or truncates) the image file at path and makes it exactly
// size bytes by seeking to size-1 and writing one byte, leaving the rest sparse.
func CreateImage(path string, size uint64) (*FileDevice, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: image size must be > 0", ErrInvalidGeometry)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}

	if _, err := f.Seek(int64(size-1), io.SeekStart); err != nil {
		_ = f.Close()
		return nil, &IOError{Op: "seek", Path: path, Err: err}
	}

	if _, err := f.Write([]byte{0}); err != nil {
		_ = f.Close()
		return nil, &IOError{Op: "write", Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return nil, &IOError{Op: "close", Path: path, Err: err}
	}

	return NewFileDevice(path), nil
}
