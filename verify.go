package forensicfs

import (
	"fmt"
	"strings"
)

// Report is the result of Verify. Problems are invariant violations; FreeInodesDrift
// is the known gap between the superblock inode counter and the inode bitmap left
// by formatting, reported separately because it is expected on a fresh image.
type Report struct {
	Superblock Superblock

	UsedBlocks uint32 // set bits in the block bitmap below TotalBlocks
	UsedInodes uint32 // set bits in the inode bitmap below InodeCount

	// FreeBlocksDrift is FreeBlocks - (TotalBlocks - UsedBlocks).
	FreeBlocksDrift int64
	// FreeInodesDrift is FreeInodes - (InodeCount - UsedInodes).
	FreeInodesDrift int64

	Problems []string
}

// OK reports whether no invariant was violated.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) problemf(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// String renders the report for humans.
func (r *Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "used blocks: %d, free blocks drift: %d\n", r.UsedBlocks, r.FreeBlocksDrift)
	fmt.Fprintf(&b, "used inodes: %d, free inodes drift: %d\n", r.UsedInodes, r.FreeInodesDrift)
	if r.OK() {
		b.WriteString("no problems found\n")
	}
	for _, p := range r.Problems {
		fmt.Fprintf(&b, "problem: %s\n", p)
	}

	return b.String()
}

// Verify reads both bitmaps and the root inode and checks them against sb:
// fs_size against the geometry and the backing store length, the reserved
// metadata bits, the root inode record, and the free block count. It only reads;
// nothing is repaired.
func Verify(dev BlockDevice, sb *Superblock) (*Report, error) {
	r := &Report{Superblock: *sb}

	if sb.FSSize != uint64(sb.BlockSize)*uint64(sb.TotalBlocks) {
		r.problemf("fs_size %d != block_size %d * total_blocks %d", sb.FSSize, sb.BlockSize, sb.TotalBlocks)
	}

	size, known, err := deviceSize(dev)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if known && size != sb.FSSize {
		r.problemf("backing store is %d bytes but fs_size is %d", size, sb.FSSize)
	}

	bbm, err := readBitmap(dev, sb.BlockSize, sb.BlockBitmapBlock)
	if err != nil {
		return nil, fmt.Errorf("verify: failed to read block bitmap: %w", err)
	}

	for i := uint32(0); i < sb.FirstDataBlock; i++ {
		if !bbm.Test(i) {
			r.problemf("reserved block %d is marked free", i)
		}
	}

	r.UsedBlocks = bbm.Count(sb.TotalBlocks)
	r.FreeBlocksDrift = int64(sb.FreeBlocks) - (int64(sb.TotalBlocks) - int64(r.UsedBlocks))
	if r.FreeBlocksDrift != 0 {
		r.problemf("free_blocks %d but block bitmap implies %d",
			sb.FreeBlocks, int64(sb.TotalBlocks)-int64(r.UsedBlocks))
	}

	ibm, err := readBitmap(dev, sb.BlockSize, sb.InodeBitmapBlock)
	if err != nil {
		return nil, fmt.Errorf("verify: failed to read inode bitmap: %w", err)
	}

	for i := uint32(0); i < ReservedInodes; i++ {
		if !ibm.Test(i) {
			r.problemf("reserved inode %d is marked free", i)
		}
	}

	r.UsedInodes = ibm.Count(sb.InodeCount)
	r.FreeInodesDrift = int64(sb.FreeInodes) - (int64(sb.InodeCount) - int64(r.UsedInodes))

	root, err := ReadInode(dev, sb, sb.RootInode)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	if root.InodeNumber != sb.RootInode || root.FileType != FileTypeDir {
		r.problemf("root inode slot holds inode %d of type %s", root.InodeNumber, root.FileType)
	}

	if root.Deleted() {
		r.problemf("root inode is marked deleted")
	}

	return r, nil
}
