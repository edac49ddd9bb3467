package forensicfs_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	forensicfs "github.com/pilat/go-forensicfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testContext holds resources for a single test case
type testContext struct {
	t         *testing.T
	imagePath string
	now       time.Time
	events    []forensicfs.Event
	img       *forensicfs.Image
}

// newTestContext creates a formatted image file in a temporary directory
func newTestContext(t *testing.T, opts ...forensicfs.ImageOption) *testContext {
	t.Helper()

	tc := &testContext{
		t:         t,
		imagePath: filepath.Join(t.TempDir(), "test.img"),
		now:       time.Unix(1700000000, 0),
	}

	base := []forensicfs.ImageOption{
		forensicfs.WithImagePath(tc.imagePath),
		forensicfs.WithClock(func() time.Time { return tc.now }),
		forensicfs.WithEventSink(forensicfs.EventSinkFunc(func(ev forensicfs.Event) error {
			tc.events = append(tc.events, ev)
			return nil
		})),
	}

	img, err := forensicfs.New(append(base, opts...)...)
	require.NoError(t, err, "failed to create image")
	tc.img = img

	return tc
}

// reopen loads the image from disk, dropping all in-memory state
func (tc *testContext) reopen() *forensicfs.Image {
	tc.t.Helper()

	img, err := forensicfs.Open(forensicfs.WithImagePath(tc.imagePath))
	require.NoError(tc.t, err, "failed to open image")
	return img
}

func (tc *testContext) kinds() []forensicfs.EventKind {
	var kinds []forensicfs.EventKind
	for _, ev := range tc.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestNewDefaultImage(t *testing.T) {
	tc := newTestContext(t)

	info, err := os.Stat(tc.imagePath)
	require.NoError(t, err)
	assert.Equal(t, int64(20480000), info.Size())

	img := tc.reopen()
	sb := img.Superblock()
	assert.Equal(t, forensicfs.FSMagic, sb.Magic)
	assert.Equal(t, uint32(4989), sb.FreeBlocks)
	assert.Equal(t, uint32(320), sb.FreeInodes)
	assert.Equal(t, tc.now, sb.CreatedAt())

	root, err := img.ReadInode(forensicfs.RootInode)
	require.NoError(t, err)
	assert.Equal(t, forensicfs.FileTypeDir, root.FileType)
	assert.Equal(t, uint32(0o755), root.Permissions)

	slot2, err := img.ReadInode(2)
	require.NoError(t, err)
	assert.True(t, slot2.IsZero())

	assert.Equal(t, []forensicfs.EventKind{
		forensicfs.EventImageCreated,
		forensicfs.EventSuperblockWritten,
		forensicfs.EventBlockBitmapWritten,
		forensicfs.EventInodeBitmapWritten,
		forensicfs.EventInodeTableWritten,
	}, tc.kinds())
}

func TestReservedBitsExactlyMarked(t *testing.T) {
	tc := newTestContext(t)

	dev := forensicfs.NewFileDevice(tc.imagePath)

	bbm, err := dev.ReadBlock(4096, forensicfs.BlockBitmapBlock)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x07}, bbm[:2])
	assert.Equal(t, make([]byte, 4094), bbm[2:])

	ibm, err := dev.ReadBlock(4096, forensicfs.InodeBitmapBlock)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), ibm[0])
	assert.Equal(t, make([]byte, 4095), ibm[1:])
}

func TestSmallGeometry(t *testing.T) {
	tc := newTestContext(t, forensicfs.WithBlockSize(1024), forensicfs.WithTotalBlocks(100))

	info, err := os.Stat(tc.imagePath)
	require.NoError(t, err)
	assert.Equal(t, int64(102400), info.Size())

	sb := tc.reopen().Superblock()
	assert.Equal(t, forensicfs.Geometry{BlockSize: 1024, TotalBlocks: 100}, sb.Geometry())
	assert.Equal(t, uint32(89), sb.FreeBlocks)
}

func TestNewRejectsBadGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.img")

	_, err := forensicfs.New(forensicfs.WithImagePath(path), forensicfs.WithTotalBlocks(10))
	assert.ErrorIs(t, err, forensicfs.ErrInvalidGeometry)

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "nothing is created for an invalid geometry")

	_, err = forensicfs.New()
	assert.Error(t, err)
}

func TestOpenRejectsForeignImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.img")
	_, err := forensicfs.CreateImage(path, 4096*16)
	require.NoError(t, err)

	_, err = forensicfs.Open(forensicfs.WithImagePath(path))
	var magicErr forensicfs.ErrBadMagic
	assert.ErrorAs(t, err, &magicErr)
}

func TestAllocationSurvivesReopenAfterSync(t *testing.T) {
	tc := newTestContext(t)

	for _, want := range []uint32{11, 12, 13} {
		blk, err := tc.img.AllocBlock()
		require.NoError(t, err)
		assert.Equal(t, want, blk)
	}

	// Without Sync the on-disk counter lags the bitmap.
	assert.Equal(t, uint32(4989), tc.reopen().Superblock().FreeBlocks)

	tc.now = tc.now.Add(time.Minute)
	require.NoError(t, tc.img.Sync())

	img := tc.reopen()
	sb := img.Superblock()
	assert.Equal(t, uint32(4986), sb.FreeBlocks)
	assert.Equal(t, tc.now, sb.LastWriteAt())

	r, err := img.Verify()
	require.NoError(t, err)
	assert.True(t, r.OK(), r.String())

	blk, err := img.AllocBlock()
	require.NoError(t, err)
	assert.Equal(t, uint32(14), blk)
}

func TestInodeLifecycle(t *testing.T) {
	tc := newTestContext(t)

	created := tc.now
	ino, err := tc.img.AllocInode(forensicfs.FileTypeFile, 0o640, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ino.InodeNumber)

	blk, err := tc.img.AllocBlock()
	require.NoError(t, err)
	ino.DirectBlocks[0] = blk
	ino.Size = 100
	require.NoError(t, tc.img.WriteInode(&ino))

	tc.now = tc.now.Add(time.Hour)
	require.NoError(t, tc.img.FreeInode(ino.InodeNumber))
	require.NoError(t, tc.img.Sync())

	img := tc.reopen()
	got, err := img.ReadInode(2)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.Equal(t, tc.now.Unix(), got.DeletedTime)
	assert.Equal(t, created.Unix(), got.CreatedTime)
	assert.Equal(t, uint32(11), got.DirectBlocks[0], "deleted record stays readable")
	assert.Equal(t, uint64(100), got.Size)

	// The number is free again and the slot is rewritten on reuse.
	again, err := img.AllocInode(forensicfs.FileTypeDir, 0o700, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), again.InodeNumber)
	assert.False(t, again.Deleted())

	assert.ErrorIs(t, img.FreeInode(forensicfs.RootInode), forensicfs.ErrReserved)
}

func TestMountCounters(t *testing.T) {
	tc := newTestContext(t)

	tc.now = tc.now.Add(24 * time.Hour)
	require.NoError(t, tc.img.Mount())
	require.NoError(t, tc.img.Mount())

	sb := tc.reopen().Superblock()
	assert.Equal(t, uint32(2), sb.MountCount)
	assert.Equal(t, tc.now, sb.LastMountAt())
	assert.Equal(t, tc.now.Add(-24*time.Hour), sb.CreatedAt())
	assert.Equal(t, forensicfs.EventMounted, tc.events[len(tc.events)-1].Kind)
}

func TestEventDigestMatchesWrittenBytes(t *testing.T) {
	tc := newTestContext(t)
	dev := forensicfs.NewFileDevice(tc.imagePath)

	table := tc.events[len(tc.events)-1]
	require.Equal(t, forensicfs.EventInodeTableWritten, table.Kind)
	assert.Equal(t, forensicfs.FirstInodeBlock, table.Block)

	var onDisk []byte
	for i := uint32(0); i < forensicfs.InodeTableBlocks; i++ {
		blk, err := dev.ReadBlock(4096, forensicfs.FirstInodeBlock+i)
		require.NoError(t, err)
		onDisk = append(onDisk, blk...)
	}
	assert.Equal(t, forensicfs.Digest(onDisk), table.Digest, "digest covers the whole table")

	_, err := tc.img.AllocBlock()
	require.NoError(t, err)

	ev := tc.events[len(tc.events)-1]
	require.Equal(t, forensicfs.EventBlockAllocated, ev.Kind)
	assert.Equal(t, forensicfs.BlockBitmapBlock, ev.Block)
	assert.Equal(t, uint32(11), ev.DataBlock)

	bm, err := dev.ReadBlock(4096, forensicfs.BlockBitmapBlock)
	require.NoError(t, err)
	assert.Equal(t, forensicfs.Digest(bm), ev.Digest)
}

func TestEventBlockIsTheWrittenBlock(t *testing.T) {
	tc := newTestContext(t)
	dev := forensicfs.NewFileDevice(tc.imagePath)
	tc.events = nil

	_, err := tc.img.AllocInode(forensicfs.FileTypeFile, 0o600, 0)
	require.NoError(t, err)
	require.NoError(t, tc.img.Sync())

	require.Equal(t, []forensicfs.EventKind{
		forensicfs.EventInodeAllocated,
		forensicfs.EventInodeWritten,
		forensicfs.EventSuperblockWritten,
	}, tc.kinds())

	for _, ev := range tc.events {
		assert.Zero(t, ev.DataBlock, ev.Kind)
	}
	assert.Equal(t, forensicfs.InodeBitmapBlock, tc.events[0].Block)
	assert.Equal(t, forensicfs.FirstInodeBlock, tc.events[1].Block)
	assert.Equal(t, forensicfs.SuperblockBlock, tc.events[2].Block)

	for _, ev := range tc.events[:2] {
		written, err := dev.ReadBlock(4096, ev.Block)
		require.NoError(t, err)
		assert.Equal(t, forensicfs.Digest(written), ev.Digest, ev.Kind)
	}
}

func TestTruncatedImage(t *testing.T) {
	tc := newTestContext(t)
	require.NoError(t, os.Truncate(tc.imagePath, 4096*12))

	_, err := forensicfs.Open(forensicfs.WithImagePath(tc.imagePath))
	assert.ErrorIs(t, err, forensicfs.ErrTruncated)

	// An image opened before truncation still fails verification.
	r, err := tc.img.Verify()
	require.NoError(t, err)
	assert.False(t, r.OK())
	assert.Contains(t, r.String(), "backing store is 49152 bytes but fs_size is 20480000")
}

func TestClosedImage(t *testing.T) {
	tc := newTestContext(t)
	require.NoError(t, tc.img.Close())
	require.NoError(t, tc.img.Close())

	_, err := tc.img.AllocBlock()
	assert.ErrorIs(t, err, forensicfs.ErrClosed)
	assert.ErrorIs(t, tc.img.FreeBlock(11), forensicfs.ErrClosed)
	_, err = tc.img.AllocInode(forensicfs.FileTypeFile, 0o600, 0)
	assert.ErrorIs(t, err, forensicfs.ErrClosed)
	assert.ErrorIs(t, tc.img.FreeInode(2), forensicfs.ErrClosed)
	_, err = tc.img.ReadInode(forensicfs.RootInode)
	assert.ErrorIs(t, err, forensicfs.ErrClosed)
	assert.ErrorIs(t, tc.img.Mount(), forensicfs.ErrClosed)
	assert.ErrorIs(t, tc.img.Sync(), forensicfs.ErrClosed)
	_, err = tc.img.Verify()
	assert.ErrorIs(t, err, forensicfs.ErrClosed)
	assert.Nil(t, tc.img.Device())
}

func TestSinkErrorDoesNotFailMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.img")
	sink := forensicfs.EventSinkFunc(func(forensicfs.Event) error { return errors.New("audit offline") })

	img, err := forensicfs.New(forensicfs.WithImagePath(path), forensicfs.WithEventSink(sink))
	require.NoError(t, err)

	_, err = img.AllocBlock()
	assert.NoError(t, err)
}

func TestFormatOnMemoryDevice(t *testing.T) {
	g := forensicfs.Geometry{BlockSize: 512, TotalBlocks: 64}
	dev := forensicfs.NewMemoryDevice(g.Size())

	img, err := forensicfs.Format(dev, g)
	require.NoError(t, err)

	again, err := forensicfs.Open(forensicfs.WithDevice(dev))
	require.NoError(t, err)
	assert.Equal(t, img.Superblock(), again.Superblock())

	_, err = forensicfs.Format(forensicfs.NewMemoryDevice(512), g)
	assert.ErrorIs(t, err, forensicfs.ErrIO)
}
