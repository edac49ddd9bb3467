package forensicfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// InodeRecordSize is the packed encoded size of an Inode.
	InodeRecordSize = 120

	// InodeSlotSize is the space each inode occupies in the table. The tail past
	// InodeRecordSize is zero. Slots never straddle a block boundary.
	InodeSlotSize = 128
)

// Inode is the fixed-size record describing one filesystem object. Field order
// and widths are the on-disk layout; encoding is little-endian and packed.
type Inode struct {
	// core
	InodeNumber uint32   // 0x00
	FileType    FileType // 0x04
	Size        uint64   // 0x08

	DirectBlocks  [DirectBlocks]uint32 // 0x10
	IndirectBlock uint32               // 0x40: reserved for chaining, unused

	// timestamps, unix seconds
	CreatedTime  int64 // 0x44
	ModifiedTime int64 // 0x4C
	AccessedTime int64 // 0x54

	// forensics
	DeletedTime int64  // 0x5C
	IsDeleted   uint32 // 0x64
	TamperFlag  uint32 // 0x68: reserved, never set

	OwnerID     uint32 // 0x6C
	Permissions uint32 // 0x70
	LinkCount   uint32 // 0x74
}

// NewInode returns a fully populated inode with a link count of 1 and all three
// timestamps set to now.
func NewInode(number uint32, fileType FileType, permissions, ownerID uint32, now time.Time) Inode {
	ts := now.Unix()

	return Inode{
		InodeNumber:  number,
		FileType:     fileType,
		CreatedTime:  ts,
		ModifiedTime: ts,
		AccessedTime: ts,
		OwnerID:      ownerID,
		Permissions:  permissions,
		LinkCount:    1,
	}
}

// NewRootInode returns the root directory inode written into slot 0 at format time.
func NewRootInode(now time.Time) Inode {
	return NewInode(RootInode, FileTypeDir, 0o755, 0, now)
}

// MarkDeleted flags the inode deleted and records when. Both fields are always set
// together.
func (ino *Inode) MarkDeleted(at time.Time) {
	ino.IsDeleted = 1
	ino.DeletedTime = at.Unix()
}

// Deleted reports whether the inode carries the deletion flag.
func (ino *Inode) Deleted() bool {
	return ino.IsDeleted != 0
}

// IsZero reports whether the record is an unused slot.
func (ino *Inode) IsZero() bool {
	return *ino == Inode{}
}

// Encode serializes the inode into a zero-padded InodeSlotSize buffer.
func (ino *Inode) Encode() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, InodeSlotSize))
	if err := binary.Write(buf, binary.LittleEndian, ino); err != nil {
		return nil, fmt.Errorf("failed to encode inode %d: %w", ino.InodeNumber, err)
	}

	slot := make([]byte, InodeSlotSize)
	copy(slot, buf.Bytes())

	return slot, nil
}

// DecodeInode parses an inode from the first InodeRecordSize bytes of b.
func DecodeInode(b []byte) (Inode, error) {
	var ino Inode
	if len(b) < InodeRecordSize {
		return ino, fmt.Errorf("decoding inode: short buffer of %d bytes", len(b))
	}

	if err := binary.Read(bytes.NewReader(b[:InodeRecordSize]), binary.LittleEndian, &ino); err != nil {
		return ino, fmt.Errorf("decoding inode: %w", err)
	}

	return ino, nil
}

// maxInode returns the highest inode number that both the superblock count and the
// physical table allow.
func maxInode(sb *Superblock) uint32 {
	if sb.InodeCount == 0 {
		return 0
	}

	capacity := InodeTableCapacity(sb.BlockSize, sb.InodeBlocks)
	if sb.InodeCount-1 < capacity {
		return sb.InodeCount - 1
	}

	return capacity
}

func checkInode(sb *Superblock, ino uint32) error {
	if ino == 0 || ino > maxInode(sb) {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInodeRange, ino, maxInode(sb))
	}

	return nil
}

// InitInodeTable stages inode_blocks*block_size zero bytes, places root at the
// start, and writes the table block by block from FirstInodeBlock. A failed block
// write aborts; blocks already written are not rolled back.
func InitInodeTable(dev BlockDevice, sb *Superblock, root Inode) error {
	_, err := initInodeTable(dev, sb, root)
	return err
}

func initInodeTable(dev BlockDevice, sb *Superblock, root Inode) ([]byte, error) {
	size := uint64(sb.InodeBlocks) * uint64(sb.BlockSize)
	if size == 0 || size > maxStagingBytes {
		return nil, fmt.Errorf("%w: inode table of %d bytes", ErrAllocation, size)
	}

	table := make([]byte, size)

	slot, err := root.Encode()
	if err != nil {
		return nil, err
	}
	copy(table, slot)

	for i := uint32(0); i < sb.InodeBlocks; i++ {
		off := uint64(i) * uint64(sb.BlockSize)
		if err := dev.WriteBlock(table[off:off+uint64(sb.BlockSize)], sb.BlockSize, sb.FirstInodeBlock+i); err != nil {
			return nil, fmt.Errorf("failed to write inode table block %d: %w", i, err)
		}
	}

	return table, nil
}

// ReadInode reads inode ino from the inode table.
func ReadInode(dev BlockDevice, sb *Superblock, ino uint32) (Inode, error) {
	if err := checkInode(sb, ino); err != nil {
		return Inode{}, err
	}

	blk, off := inodeLocation(sb, ino)

	buf, err := dev.ReadBlock(sb.BlockSize, blk)
	if err != nil {
		return Inode{}, fmt.Errorf("failed to read inode %d: %w", ino, err)
	}

	return DecodeInode(buf[off : off+InodeSlotSize])
}

// WriteInode stores inode into its slot, rewriting the whole containing block.
// The slot is taken from inode.InodeNumber.
func WriteInode(dev BlockDevice, sb *Superblock, inode *Inode) error {
	_, _, err := writeInode(dev, sb, inode)
	return err
}

// writeInode returns the table block it rewrote and that block's new contents.
func writeInode(dev BlockDevice, sb *Superblock, inode *Inode) (uint32, []byte, error) {
	ino := inode.InodeNumber
	if err := checkInode(sb, ino); err != nil {
		return 0, nil, err
	}

	slot, err := inode.Encode()
	if err != nil {
		return 0, nil, err
	}

	blk, off := inodeLocation(sb, ino)

	buf, err := dev.ReadBlock(sb.BlockSize, blk)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read inode block for inode %d: %w", ino, err)
	}

	copy(buf[off:], slot)
	if err := dev.WriteBlock(buf, sb.BlockSize, blk); err != nil {
		return 0, nil, fmt.Errorf("failed to write inode %d: %w", ino, err)
	}

	return blk, buf, nil
}
