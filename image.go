package forensicfs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Image is the public API over one forensic image: its device and the in-memory
// superblock. An Image is not safe for concurrent use, and nothing prevents two
// processes from mutating the same file; callers must exclude other writers.
type Image struct {
	dev BlockDevice
	sb  Superblock

	imagePath string
	geometry  Geometry

	now    func() time.Time
	logger *slog.Logger
	sink   EventSink

	closed bool
}

func newImage(opts []ImageOption) (*Image, error) {
	img := &Image{
		geometry: DefaultGeometry(),
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		if err := opt(img); err != nil {
			return nil, err
		}
	}

	return img, nil
}

// New creates a fresh image file and initializes it: superblock, block bitmap,
// inode bitmap and inode table with the root directory. The image path must be set
// with WithImagePath; geometry defaults to 4096-byte blocks x 5000 blocks.
func New(opts ...ImageOption) (*Image, error) {
	img, err := newImage(opts)
	if err != nil {
		return nil, err
	}

	if img.imagePath == "" {
		return nil, errors.New("image path is required: use WithImagePath")
	}

	create := func(size uint64) (BlockDevice, error) {
		return CreateImage(img.imagePath, size)
	}

	if err := img.format(create); err != nil {
		return nil, fmt.Errorf("failed to initialize image %q: %w", img.imagePath, err)
	}

	return img, nil
}

// Open loads an existing image from WithImagePath or WithDevice. The superblock is
// read and checked, and a backing store shorter than fs_size is rejected with
// ErrTruncated. Bitmaps stay on the device and are re-read by every allocation.
func Open(opts ...ImageOption) (*Image, error) {
	img, err := newImage(opts)
	if err != nil {
		return nil, err
	}

	if img.dev == nil {
		if img.imagePath == "" {
			return nil, errors.New("image path is required: use WithImagePath or WithDevice")
		}
		img.dev = NewFileDevice(img.imagePath)
	}

	sb, err := ReadSuperblock(img.dev)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}

	if err := sb.Geometry().Validate(); err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}

	size, known, err := deviceSize(img.dev)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	if known && size < sb.FSSize {
		return nil, fmt.Errorf("load image: %w: %d of %d bytes", ErrTruncated, size, sb.FSSize)
	}

	img.sb = sb
	img.geometry = sb.Geometry()

	return img, nil
}

// Superblock returns a copy of the in-memory superblock, including counter changes
// not yet flushed by Sync.
func (e *Image) Superblock() Superblock {
	return e.sb
}

// Device returns the backing device, or nil after Close.
func (e *Image) Device() BlockDevice {
	if e.closed {
		return nil
	}
	return e.dev
}

func (e *Image) checkOpen() error {
	if e.closed {
		return ErrClosed
	}
	return nil
}

// AllocBlock allocates the lowest free block. The free block count changes in memory
// only; call Sync to persist it.
func (e *Image) AllocBlock() (uint32, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}

	blk, bm, err := allocBlock(e.dev, &e.sb)
	if err != nil {
		return 0, err
	}

	e.emit(Event{Kind: EventBlockAllocated, Block: e.sb.BlockBitmapBlock, DataBlock: blk}, bm)

	return blk, nil
}

// FreeBlock releases a data block. The free block count changes in memory only.
func (e *Image) FreeBlock(blk uint32) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	bm, err := freeBlock(e.dev, &e.sb, blk)
	if err != nil {
		return err
	}

	e.emit(Event{Kind: EventBlockFreed, Block: e.sb.BlockBitmapBlock, DataBlock: blk}, bm)

	return nil
}

// AllocInode allocates the lowest free inode number and writes a fresh inode record
// of the given type into its slot.
func (e *Image) AllocInode(fileType FileType, permissions, ownerID uint32) (Inode, error) {
	if err := e.checkOpen(); err != nil {
		return Inode{}, err
	}

	ino, bm, err := allocInode(e.dev, &e.sb)
	if err != nil {
		return Inode{}, err
	}
	e.emit(Event{Kind: EventInodeAllocated, Block: e.sb.InodeBitmapBlock, Inode: ino}, bm)

	inode := NewInode(ino, fileType, permissions, ownerID, e.now())
	if err := e.WriteInode(&inode); err != nil {
		return Inode{}, err
	}

	return inode, nil
}

// FreeInode releases an inode number in the inode bitmap and marks its record
// deleted, keeping the record readable for analysis.
func (e *Image) FreeInode(ino uint32) error {
	inode, err := e.ReadInode(ino)
	if err != nil {
		return err
	}

	bm, err := freeInode(e.dev, &e.sb, ino)
	if err != nil {
		return err
	}
	e.emit(Event{Kind: EventInodeFreed, Block: e.sb.InodeBitmapBlock, Inode: ino}, bm)

	inode.InodeNumber = ino
	inode.MarkDeleted(e.now())

	return e.WriteInode(&inode)
}

// ReadInode reads one inode record.
func (e *Image) ReadInode(ino uint32) (Inode, error) {
	if err := e.checkOpen(); err != nil {
		return Inode{}, err
	}

	return ReadInode(e.dev, &e.sb, ino)
}

// WriteInode writes one inode record into the slot named by its InodeNumber.
func (e *Image) WriteInode(inode *Inode) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	blk, written, err := writeInode(e.dev, &e.sb, inode)
	if err != nil {
		return err
	}
	e.emit(Event{Kind: EventInodeWritten, Block: blk, Inode: inode.InodeNumber}, written)

	return nil
}

// Mount records a mount in the superblock counters and persists the superblock.
// No session state is kept.
func (e *Image) Mount() error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	now := e.now()
	e.sb.RecordMount(now)

	if err := FlushSuperblock(e.dev, &e.sb, now); err != nil {
		return err
	}
	e.emitSuperblock(EventMounted)

	return nil
}

// Sync writes the in-memory superblock, with its free counters, to block 0.
func (e *Image) Sync() error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	if err := FlushSuperblock(e.dev, &e.sb, e.now()); err != nil {
		return fmt.Errorf("failed to sync superblock: %w", err)
	}
	e.emitSuperblock(EventSuperblockWritten)

	return nil
}

// Verify checks the on-disk bitmaps against the on-disk superblock.
func (e *Image) Verify() (*Report, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	sb, err := ReadSuperblock(e.dev)
	if err != nil {
		return nil, err
	}

	return Verify(e.dev, &sb)
}

// Close releases the image. The file device holds no open handle, so Close only
// detaches the device; it does not flush the superblock. Every later call
// returns ErrClosed. Closing twice is a no-op.
func (e *Image) Close() error {
	e.closed = true
	return nil
}
