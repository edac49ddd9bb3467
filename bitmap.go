package forensicfs

import "math/bits"

// Bitmap is a block-sized occupancy map: bit i (byte i/8, bit i%8) is set when
// block or inode i is in use. Its length comes from the superblock block size.
type Bitmap []byte

// NewBitmap returns an all-zero bitmap of one block.
func NewBitmap(blockSize uint32) Bitmap {
	return make(Bitmap, blockSize)
}

// Set marks index i used. Setting a set bit is a no-op.
func (bm Bitmap) Set(i uint32) {
	bm[i/8] |= 1 << (i % 8)
}

// Clear marks index i free. Clearing a clear bit is a no-op.
func (bm Bitmap) Clear(i uint32) {
	bm[i/8] &^= 1 << (i % 8)
}

// Test reports whether index i is used.
func (bm Bitmap) Test(i uint32) bool {
	return bm[i/8]&(1<<(i%8)) != 0
}

// FindFree returns the lowest clear index below maxBits. Allocation is therefore
// deterministic first-fit from index 0.
func (bm Bitmap) FindFree(maxBits uint32) (uint32, bool) {
	if limit := uint32(len(bm)) * 8; maxBits > limit {
		maxBits = limit
	}

	for i := uint32(0); i < maxBits; i++ {
		if bm[i/8] == 0xFF {
			i |= 7
			continue
		}

		if !bm.Test(i) {
			return i, true
		}
	}

	return 0, false
}

// Count returns the number of set bits below maxBits.
func (bm Bitmap) Count(maxBits uint32) uint32 {
	if limit := uint32(len(bm)) * 8; maxBits > limit {
		maxBits = limit
	}

	var n int
	full := maxBits / 8
	for _, b := range bm[:full] {
		n += bits.OnesCount8(b)
	}

	if rem := maxBits % 8; rem != 0 {
		n += bits.OnesCount8(bm[full] & (1<<rem - 1))
	}

	return uint32(n)
}
