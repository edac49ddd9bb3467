package forensicfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// SuperblockSize is the encoded size of the superblock record. It is written at the
// start of block 0; the rest of the block is left untouched.
const SuperblockSize = 240

// Superblock is the singleton record describing the whole image. Field order and
// widths are the on-disk order and widths; encoding is little-endian and packed.
type Superblock struct {
	// identity
	Magic   uint32 // 0x00
	Version uint32 // 0x04

	// geometry
	BlockSize   uint32 // 0x08
	TotalBlocks uint32 // 0x0C
	FSSize      uint64 // 0x10: BlockSize * TotalBlocks

	// inode region
	InodeCount       uint32 // 0x18
	FreeInodes       uint32 // 0x1C
	FirstInodeBlock  uint32 // 0x20
	InodeBlocks      uint32 // 0x24
	InodeBitmapBlock uint32 // 0x28

	// block region
	FreeBlocks       uint32 // 0x2C
	FirstDataBlock   uint32 // 0x30
	BlockBitmapBlock uint32 // 0x34

	RootInode uint32 // 0x38

	// forensic timestamps, unix seconds
	CreatedTime   int64 // 0x3C
	LastMountTime int64 // 0x44
	LastWriteTime int64 // 0x4C

	MountCount uint32 // 0x54
	State      State  // 0x58

	BackupSuperblocks [BackupSuperblockSlots]uint32 // 0x5C: unpopulated
	Reserved          [superblockReservedBytes]byte // 0x70
}

// NewSuperblock computes the superblock for a geometry. It performs no validation
// and captures now as the creation, mount and write time.
//
// FreeInodes starts at InodeCount even though formatting marks inode bits 0 and 1
// used; Verify reports that drift instead of this constructor hiding it.
func NewSuperblock(blockSize, totalBlocks uint32, now time.Time) Superblock {
	ts := now.Unix()

	return Superblock{
		Magic:            FSMagic,
		Version:          FormatVersion,
		BlockSize:        blockSize,
		TotalBlocks:      totalBlocks,
		FSSize:           uint64(blockSize) * uint64(totalBlocks),
		InodeCount:       InodeCount,
		FreeInodes:       InodeCount,
		FirstInodeBlock:  FirstInodeBlock,
		InodeBlocks:      InodeTableBlocks,
		InodeBitmapBlock: InodeBitmapBlock,
		FreeBlocks:       totalBlocks - ReservedBlocks,
		FirstDataBlock:   FirstDataBlock,
		BlockBitmapBlock: BlockBitmapBlock,
		RootInode:        RootInode,
		CreatedTime:      ts,
		LastMountTime:    ts,
		LastWriteTime:    ts,
		MountCount:       0,
		State:            StateClean,
	}
}

// Geometry returns the block size and count the superblock declares.
func (sb *Superblock) Geometry() Geometry {
	return Geometry{BlockSize: sb.BlockSize, TotalBlocks: sb.TotalBlocks}
}

// Encode serializes the superblock into its fixed SuperblockSize-byte form.
func (sb *Superblock) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(SuperblockSize)

	if err := binary.Write(&buf, binary.LittleEndian, sb); err != nil {
		return nil, fmt.Errorf("failed to encode superblock: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeSuperblock parses a superblock from the first SuperblockSize bytes of b and
// checks its magic and version.
func DecodeSuperblock(b []byte) (Superblock, error) {
	var sb Superblock
	if len(b) < SuperblockSize {
		return sb, fmt.Errorf("decoding superblock: short buffer of %d bytes", len(b))
	}

	if err := binary.Read(bytes.NewReader(b[:SuperblockSize]), binary.LittleEndian, &sb); err != nil {
		return sb, fmt.Errorf("decoding superblock: %w", err)
	}

	if sb.Magic != FSMagic {
		return sb, fmt.Errorf("decoding superblock: %w", ErrBadMagic{sb.Magic})
	}

	if sb.Version != FormatVersion {
		return sb, fmt.Errorf("decoding superblock: %w", ErrBadVersion{sb.Version})
	}

	return sb, nil
}

// RecordMount bumps the mount counter and the last-mount time.
func (sb *Superblock) RecordMount(now time.Time) {
	sb.MountCount++
	sb.LastMountTime = now.Unix()
}

// RecordWrite sets the last-write time.
func (sb *Superblock) RecordWrite(now time.Time) {
	sb.LastWriteTime = now.Unix()
}

func (sb *Superblock) CreatedAt() time.Time   { return time.Unix(sb.CreatedTime, 0) }
func (sb *Superblock) LastMountAt() time.Time { return time.Unix(sb.LastMountTime, 0) }
func (sb *Superblock) LastWriteAt() time.Time { return time.Unix(sb.LastWriteTime, 0) }

// WriteSuperblock encodes sb and writes it at the start of block 0.
func WriteSuperblock(dev BlockDevice, sb *Superblock) error {
	data, err := sb.Encode()
	if err != nil {
		return err
	}

	if err := dev.WriteBlock(data, sb.BlockSize, SuperblockBlock); err != nil {
		return fmt.Errorf("failed to write superblock: %w", err)
	}

	return nil
}

// ReadSuperblock reads and decodes the superblock of an image whose block size is
// not yet known. The record always starts at byte 0, so it is read as a
// MinBlockSize-sized block 0.
func ReadSuperblock(dev BlockDevice) (Superblock, error) {
	buf, err := dev.ReadBlock(MinBlockSize, SuperblockBlock)
	if err != nil {
		return Superblock{}, fmt.Errorf("failed to read superblock: %w", err)
	}

	return DecodeSuperblock(buf)
}

// FlushSuperblock stamps the last-write time and persists sb. Allocations only
// change the in-memory counters; this is the step that makes them durable.
func FlushSuperblock(dev BlockDevice, sb *Superblock, now time.Time) error {
	sb.RecordWrite(now)
	return WriteSuperblock(dev, sb)
}
