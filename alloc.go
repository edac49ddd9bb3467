package forensicfs

import "fmt"

// Allocation is best-effort, not transactional. Each call re-reads its bitmap
// block from the device, persists the whole block, then adjusts the in-memory
// superblock counter. The superblock itself is not rewritten here: until the
// caller runs FlushSuperblock, the on-disk free counts lag the on-disk bitmaps,
// and a crash in between leaves them stale.

// readBitmap loads the bitmap stored in block blk.
func readBitmap(dev BlockDevice, blockSize, blk uint32) (Bitmap, error) {
	buf, err := dev.ReadBlock(blockSize, blk)
	if err != nil {
		return nil, err
	}

	return Bitmap(buf), nil
}

// allocBit finds, sets and persists the first clear bit below maxBits in the
// bitmap at blk. Nothing is written when the bitmap is full.
func allocBit(dev BlockDevice, blockSize, blk, maxBits uint32) (uint32, Bitmap, error) {
	bm, err := readBitmap(dev, blockSize, blk)
	if err != nil {
		return 0, nil, err
	}

	idx, ok := bm.FindFree(maxBits)
	if !ok {
		return 0, nil, ErrNoSpace
	}

	bm.Set(idx)
	if err := dev.WriteBlock(bm, blockSize, blk); err != nil {
		return 0, nil, err
	}

	return idx, bm, nil
}

// freeBit clears and persists bit idx of the bitmap at blk. Clearing a bit that is
// already clear is refused so the caller's counter stays consistent.
func freeBit(dev BlockDevice, blockSize, blk, idx uint32) (Bitmap, error) {
	bm, err := readBitmap(dev, blockSize, blk)
	if err != nil {
		return nil, err
	}

	if !bm.Test(idx) {
		return nil, fmt.Errorf("%w: %d", ErrNotAllocated, idx)
	}

	bm.Clear(idx)
	if err := dev.WriteBlock(bm, blockSize, blk); err != nil {
		return nil, err
	}

	return bm, nil
}

func allocBlock(dev BlockDevice, sb *Superblock) (uint32, Bitmap, error) {
	blk, bm, err := allocBit(dev, sb.BlockSize, sb.BlockBitmapBlock, sb.TotalBlocks)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to allocate block: %w", err)
	}

	sb.FreeBlocks--

	return blk, bm, nil
}

// AllocBlock allocates the lowest free block in [0, total_blocks), persists the
// block bitmap and decrements sb.FreeBlocks in memory. It returns ErrNoSpace,
// without rewriting the bitmap, when every block is used.
func AllocBlock(dev BlockDevice, sb *Superblock) (uint32, error) {
	blk, _, err := allocBlock(dev, sb)
	return blk, err
}

func freeBlock(dev BlockDevice, sb *Superblock, blk uint32) (Bitmap, error) {
	if blk < sb.FirstDataBlock {
		return nil, fmt.Errorf("failed to free block %d: %w", blk, ErrReserved)
	}

	if blk >= sb.TotalBlocks {
		return nil, fmt.Errorf("failed to free block %d: %w: beyond %d blocks", blk, ErrNotAllocated, sb.TotalBlocks)
	}

	bm, err := freeBit(dev, sb.BlockSize, sb.BlockBitmapBlock, blk)
	if err != nil {
		return nil, fmt.Errorf("failed to free block %d: %w", blk, err)
	}

	sb.FreeBlocks++

	return bm, nil
}

// FreeBlock releases a data block, persists the block bitmap and increments
// sb.FreeBlocks in memory. Metadata blocks cannot be freed.
func FreeBlock(dev BlockDevice, sb *Superblock, blk uint32) error {
	_, err := freeBlock(dev, sb, blk)
	return err
}

func allocInode(dev BlockDevice, sb *Superblock) (uint32, Bitmap, error) {
	ino, bm, err := allocBit(dev, sb.BlockSize, sb.InodeBitmapBlock, maxInode(sb)+1)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to allocate inode: %w", err)
	}

	sb.FreeInodes--

	return ino, bm, nil
}

// AllocInode allocates the lowest free inode number, persists the inode bitmap and
// decrements sb.FreeInodes in memory. The scan stops at the last inode the table
// can physically hold. The inode record itself is not written.
func AllocInode(dev BlockDevice, sb *Superblock) (uint32, error) {
	ino, _, err := allocInode(dev, sb)
	return ino, err
}

func freeInode(dev BlockDevice, sb *Superblock, ino uint32) (Bitmap, error) {
	if ino < ReservedInodes {
		return nil, fmt.Errorf("failed to free inode %d: %w", ino, ErrReserved)
	}

	if err := checkInode(sb, ino); err != nil {
		return nil, fmt.Errorf("failed to free inode %d: %w", ino, err)
	}

	bm, err := freeBit(dev, sb.BlockSize, sb.InodeBitmapBlock, ino)
	if err != nil {
		return nil, fmt.Errorf("failed to free inode %d: %w", ino, err)
	}

	sb.FreeInodes++

	return bm, nil
}

// FreeInode releases an inode number, persists the inode bitmap and increments
// sb.FreeInodes in memory. The null and root inodes cannot be freed.
func FreeInode(dev BlockDevice, sb *Superblock, ino uint32) error {
	_, err := freeInode(dev, sb, ino)
	return err
}
