// Package forensicfs creates and mutates fixed-size, block-addressed disk images that carry
// forensic metadata (creation, modification and deletion timestamps, tamper markers,
// deletion flags) alongside conventional filesystem bookkeeping: a superblock, an inode
// table and free-space bitmaps for blocks and inodes.
//
// The on-disk layout for the default 4096-byte block size is:
//
//	block 0      superblock record
//	block 1      block-occupancy bitmap
//	block 2      inode-occupancy bitmap
//	blocks 3-10  inode table (8 blocks)
//	blocks 11+   data region
//
// All records are encoded little-endian with no implicit padding.
//
// Example usage:
//
//	img, err := forensicfs.New(
//		forensicfs.WithImagePath("disk.img"),
//		forensicfs.WithBlockSize(4096),
//		forensicfs.WithTotalBlocks(5000),
//	)
//	if err != nil {
//		return err
//	}
//	defer img.Close()
//
//	blk, err := img.AllocBlock()
//	if err != nil {
//		return err
//	}
//	_ = blk
//	return img.Sync()
package forensicfs

const (
	// FSMagic identifies the image format in the first four bytes of block 0.
	FSMagic uint32 = 0xF0F03410

	// FormatVersion is the only superblock version this package reads and writes.
	FormatVersion uint32 = 1

	// DefaultBlockSize is the nominal block size of an image.
	DefaultBlockSize uint32 = 4096

	// Fixed layout of format version 1.
	SuperblockBlock  uint32 = 0
	BlockBitmapBlock uint32 = 1
	InodeBitmapBlock uint32 = 2
	FirstInodeBlock  uint32 = 3
	InodeTableBlocks uint32 = 8
	FirstDataBlock   uint32 = 11
	InodeCount       uint32 = 320
	RootInode        uint32 = 1

	// ReservedBlocks is the number of low blocks holding metadata:
	// superblock, two bitmaps and the inode table.
	ReservedBlocks = FirstDataBlock

	// ReservedInodes is the number of low inode-bitmap bits marked at format time:
	// bit 0 (no inode) and bit 1 (root).
	ReservedInodes uint32 = 2

	// BackupSuperblockSlots is the number of backup superblock locations the record reserves.
	// Nothing populates or consults them.
	BackupSuperblockSlots = 5

	// superblockReservedBytes is the zero-filled tail of the superblock record.
	superblockReservedBytes = 128

	// DirectBlocks is the number of direct block pointers in an inode.
	DirectBlocks = 12

	// Block size bounds accepted by Geometry.Validate.
	MinBlockSize uint32 = 512
	MaxBlockSize uint32 = 65536

	// maxStagingBytes bounds the inode table staging buffer.
	maxStagingBytes = 64 << 20
)

// FileType is the type of object an inode describes.
type FileType uint32

const (
	FileTypeFile FileType = 1
	FileTypeDir  FileType = 2
)

func (t FileType) String() string {
	switch t {
	case FileTypeFile:
		return "file"
	case FileTypeDir:
		return "directory"
	case 0:
		return "none"
	default:
		return "unknown"
	}
}

// State is the superblock filesystem state flag.
type State uint32

const (
	StateClean State = 0
	StateDirty State = 1
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	default:
		return "unknown"
	}
}
