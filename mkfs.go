package forensicfs

import (
	"fmt"
)

// InitBlockBitmap writes a block bitmap with the reserved metadata blocks
// 0..FirstDataBlock-1 marked used.
func InitBlockBitmap(dev BlockDevice, sb *Superblock) (Bitmap, error) {
	bm := NewBitmap(sb.BlockSize)
	for i := uint32(0); i < sb.FirstDataBlock; i++ {
		bm.Set(i)
	}

	if err := dev.WriteBlock(bm, sb.BlockSize, sb.BlockBitmapBlock); err != nil {
		return nil, fmt.Errorf("failed to write block bitmap: %w", err)
	}

	return bm, nil
}

// InitInodeBitmap writes an inode bitmap with bit 0 (no inode) and bit 1 (root)
// marked used. FreeInodes is deliberately left untouched.
func InitInodeBitmap(dev BlockDevice, sb *Superblock) (Bitmap, error) {
	bm := NewBitmap(sb.BlockSize)
	for i := uint32(0); i < ReservedInodes; i++ {
		bm.Set(i)
	}

	if err := dev.WriteBlock(bm, sb.BlockSize, sb.InodeBitmapBlock); err != nil {
		return nil, fmt.Errorf("failed to write inode bitmap: %w", err)
	}

	return bm, nil
}

// format runs the initialization sequence. Steps run in order and the first
// failure aborts the run; blocks already written stay written, so an aborted
// run can leave a partially initialized image.
//
//  1. compute the superblock
//  2. build the root inode descriptor
//  3. create the backing image (create may be nil for a caller-provided device)
//  4. write the superblock to block 0
//  5. write the block bitmap
//  6. write the inode bitmap
//  7. write the inode table
func (e *Image) format(create func(size uint64) (BlockDevice, error)) error {
	if err := e.geometry.Validate(); err != nil {
		return err
	}

	now := e.now()

	e.sb = NewSuperblock(e.geometry.BlockSize, e.geometry.TotalBlocks, now)
	e.logger.Debug("superblock computed",
		"block_size", e.sb.BlockSize, "total_blocks", e.sb.TotalBlocks, "fs_size", e.sb.FSSize)

	root := NewRootInode(now)
	e.logger.Debug("root inode prepared",
		"inode", root.InodeNumber, "type", root.FileType, "permissions", fmt.Sprintf("%04o", root.Permissions))

	if create != nil {
		dev, err := create(e.sb.FSSize)
		if err != nil {
			return fmt.Errorf("failed to create image: %w", err)
		}
		e.dev = dev
		e.emit(Event{Kind: EventImageCreated}, nil)
		e.logger.Debug("image created", "path", e.imagePath, "size", e.sb.FSSize)
	}

	if err := WriteSuperblock(e.dev, &e.sb); err != nil {
		return err
	}
	e.emitSuperblock(EventSuperblockWritten)
	e.logger.Debug("superblock written")

	bbm, err := InitBlockBitmap(e.dev, &e.sb)
	if err != nil {
		return err
	}
	e.emit(Event{Kind: EventBlockBitmapWritten, Block: e.sb.BlockBitmapBlock}, bbm)
	e.logger.Debug("block bitmap initialized", "reserved", e.sb.FirstDataBlock)

	ibm, err := InitInodeBitmap(e.dev, &e.sb)
	if err != nil {
		return err
	}
	e.emit(Event{Kind: EventInodeBitmapWritten, Block: e.sb.InodeBitmapBlock}, ibm)
	e.logger.Debug("inode bitmap initialized", "reserved", ReservedInodes)

	table, err := initInodeTable(e.dev, &e.sb, root)
	if err != nil {
		return err
	}
	e.emit(Event{Kind: EventInodeTableWritten, Block: e.sb.FirstInodeBlock, Inode: root.InodeNumber}, table)
	e.logger.Debug("inode table initialized",
		"first_block", e.sb.FirstInodeBlock, "blocks", e.sb.InodeBlocks)

	return nil
}

// Format lays out a fresh image on an existing device of at least
// g.Size() bytes and returns it ready for allocation.
func Format(dev BlockDevice, g Geometry, opts ...ImageOption) (*Image, error) {
	img, err := newImage(append([]ImageOption{WithGeometry(g)}, opts...))
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("format: device must not be nil")
	}
	img.dev = dev

	if err := img.format(nil); err != nil {
		return nil, fmt.Errorf("failed to format image: %w", err)
	}

	return img, nil
}
