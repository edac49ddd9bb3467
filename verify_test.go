package forensicfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyFreshImage(t *testing.T) {
	dev, sb := formatted(t, DefaultGeometry())

	r, err := Verify(dev, sb)
	require.NoError(t, err)

	assert.True(t, r.OK(), r.String())
	assert.Equal(t, uint32(11), r.UsedBlocks)
	assert.Equal(t, uint32(2), r.UsedInodes)
	assert.Zero(t, r.FreeBlocksDrift)
	assert.Equal(t, int64(2), r.FreeInodesDrift)
	assert.Contains(t, r.String(), "no problems found")
}

func TestVerifyStaleSuperblock(t *testing.T) {
	dev, sb := formatted(t, DefaultGeometry())

	_, err := AllocBlock(dev, sb)
	require.NoError(t, err)

	onDisk, err := ReadSuperblock(dev)
	require.NoError(t, err)

	r, err := Verify(dev, &onDisk)
	require.NoError(t, err)
	assert.False(t, r.OK())
	assert.Equal(t, int64(1), r.FreeBlocksDrift)

	r, err = Verify(dev, sb)
	require.NoError(t, err)
	assert.True(t, r.OK(), r.String())
}

func TestVerifyDetectsDamage(t *testing.T) {
	dev, sb := formatted(t, DefaultGeometry())

	bm, err := readBitmap(dev, sb.BlockSize, sb.BlockBitmapBlock)
	require.NoError(t, err)
	bm.Clear(4)
	require.NoError(t, dev.WriteBlock(bm, sb.BlockSize, sb.BlockBitmapBlock))

	ibm, err := readBitmap(dev, sb.BlockSize, sb.InodeBitmapBlock)
	require.NoError(t, err)
	ibm.Clear(1)
	require.NoError(t, dev.WriteBlock(ibm, sb.BlockSize, sb.InodeBitmapBlock))

	damaged := *sb
	damaged.FSSize++

	r, err := Verify(dev, &damaged)
	require.NoError(t, err)
	assert.False(t, r.OK())

	out := r.String()
	assert.Contains(t, out, "fs_size")
	assert.Contains(t, out, "reserved block 4 is marked free")
	assert.Contains(t, out, "reserved inode 1 is marked free")
}

func TestVerifyRootInode(t *testing.T) {
	dev, sb := formatted(t, DefaultGeometry())

	root, err := ReadInode(dev, sb, RootInode)
	require.NoError(t, err)
	root.MarkDeleted(testCreatedAt)
	require.NoError(t, WriteInode(dev, sb, &root))

	r, err := Verify(dev, sb)
	require.NoError(t, err)
	assert.Contains(t, r.Problems, "root inode is marked deleted")
}

func TestVerifyBackingStoreLength(t *testing.T) {
	g := Geometry{BlockSize: 512, TotalBlocks: 64}

	dev := NewMemoryDevice(g.Size() + 512)
	img, err := Format(dev, g, WithCreatedAt(testCreatedAt))
	require.NoError(t, err)
	sb := img.Superblock()

	r, err := Verify(dev, &sb)
	require.NoError(t, err)
	assert.Contains(t, r.Problems, "backing store is 33280 bytes but fs_size is 32768")

	// Devices that cannot report a length are not checked.
	r, err = Verify(&countingDevice{BlockDevice: dev}, &sb)
	require.NoError(t, err)
	assert.True(t, r.OK(), r.String())
}
