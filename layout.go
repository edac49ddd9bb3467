package forensicfs

import (
	"fmt"
	"math/bits"
)

// Geometry is the requested shape of an image: its block size and block count.
// Everything else in the layout is fixed by the format version.
type Geometry struct {
	BlockSize   uint32
	TotalBlocks uint32
}

// DefaultGeometry returns the nominal 4096 x 5000 geometry.
func DefaultGeometry() Geometry {
	return Geometry{BlockSize: DefaultBlockSize, TotalBlocks: 5000}
}

// Validate checks that the geometry can hold the fixed metadata region and that a
// single bitmap block can address every block of the image.
func (g Geometry) Validate() error {
	if g.BlockSize < MinBlockSize || g.BlockSize > MaxBlockSize {
		return fmt.Errorf("%w: block size %d outside [%d, %d]", ErrInvalidGeometry, g.BlockSize, MinBlockSize, MaxBlockSize)
	}

	if bits.OnesCount32(g.BlockSize) != 1 {
		return fmt.Errorf("%w: block size %d is not a power of two", ErrInvalidGeometry, g.BlockSize)
	}

	if g.TotalBlocks <= ReservedBlocks {
		return fmt.Errorf("%w: need more than %d blocks, got %d", ErrInvalidGeometry, ReservedBlocks, g.TotalBlocks)
	}

	if uint64(g.TotalBlocks) > uint64(g.BlockSize)*8 {
		return fmt.Errorf("%w: %d blocks exceed the %d bits of one bitmap block",
			ErrInvalidGeometry, g.TotalBlocks, uint64(g.BlockSize)*8)
	}

	return nil
}

// Size returns the total image size in bytes.
func (g Geometry) Size() uint64 {
	return uint64(g.BlockSize) * uint64(g.TotalBlocks)
}

// BlockOffset returns the absolute byte offset of a block.
func BlockOffset(blockSize, blockNum uint32) int64 {
	return int64(blockNum) * int64(blockSize)
}

// InodeTableCapacity returns how many inode slots physically fit in the inode table
// region for the given block size. It can be smaller than the superblock inode count.
func InodeTableCapacity(blockSize, inodeBlocks uint32) uint32 {
	return (blockSize / InodeSlotSize) * inodeBlocks
}

// inodeLocation returns the inode-table block holding an inode and the slot's byte
// offset inside that block. Inode numbers start at 1 in slot 0.
func inodeLocation(sb *Superblock, ino uint32) (uint32, uint32) {
	slot := ino - 1
	perBlock := sb.BlockSize / InodeSlotSize
	return sb.FirstInodeBlock + slot/perBlock, (slot % perBlock) * InodeSlotSize
}

// String returns a human-readable description of the geometry.
func (g Geometry) String() string {
	return fmt.Sprintf(`Image Geometry:
  Block size: %d
  Total blocks: %d
  Image size: %d bytes
  Reserved blocks: 0-%d
  Inode table: blocks %d-%d (%d slots of %d bytes)`,
		g.BlockSize,
		g.TotalBlocks,
		g.Size(),
		ReservedBlocks-1,
		FirstInodeBlock, FirstInodeBlock+InodeTableBlocks-1,
		InodeTableCapacity(g.BlockSize, InodeTableBlocks), InodeSlotSize)
}
