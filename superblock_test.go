package forensicfs

import (
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreatedAt = time.Unix(1600000000, 0)

func TestNewSuperblockDefaults(t *testing.T) {
	sb := NewSuperblock(4096, 5000, testCreatedAt)

	assert.Equal(t, FSMagic, sb.Magic)
	assert.Equal(t, uint32(1), sb.Version)
	assert.Equal(t, uint64(20480000), sb.FSSize)
	assert.Equal(t, uint32(320), sb.InodeCount)
	assert.Equal(t, uint32(320), sb.FreeInodes)
	assert.Equal(t, uint32(4989), sb.FreeBlocks)
	assert.Equal(t, uint32(3), sb.FirstInodeBlock)
	assert.Equal(t, uint32(8), sb.InodeBlocks)
	assert.Equal(t, uint32(2), sb.InodeBitmapBlock)
	assert.Equal(t, uint32(1), sb.BlockBitmapBlock)
	assert.Equal(t, uint32(11), sb.FirstDataBlock)
	assert.Equal(t, uint32(1), sb.RootInode)
	assert.Equal(t, int64(1600000000), sb.CreatedTime)
	assert.Equal(t, sb.CreatedTime, sb.LastMountTime)
	assert.Equal(t, sb.CreatedTime, sb.LastWriteTime)
	assert.Zero(t, sb.MountCount)
	assert.Equal(t, StateClean, sb.State)
	assert.Equal(t, [BackupSuperblockSlots]uint32{}, sb.BackupSuperblocks)
}

func TestSuperblockEncodeLayout(t *testing.T) {
	sb := NewSuperblock(4096, 5000, testCreatedAt)
	sb.MountCount = 3

	data, err := sb.Encode()
	require.NoError(t, err)
	require.Len(t, data, SuperblockSize)

	le := binary.LittleEndian
	assert.Equal(t, []byte{0x10, 0x34, 0xF0, 0xF0}, data[0:4])
	assert.Equal(t, uint32(4096), le.Uint32(data[0x08:]))
	assert.Equal(t, uint64(20480000), le.Uint64(data[0x10:]))
	assert.Equal(t, uint32(4989), le.Uint32(data[0x2C:]))
	assert.Equal(t, uint64(1600000000), le.Uint64(data[0x3C:]))
	assert.Equal(t, uint32(3), le.Uint32(data[0x54:]))
	assert.Equal(t, make([]byte, 240-0x5C), data[0x5C:])
}

func TestSuperblockFileRoundTrip(t *testing.T) {
	dev, err := CreateImage(filepath.Join(t.TempDir(), "disk.img"), 4096*16)
	require.NoError(t, err)

	sb := NewSuperblock(4096, 16, testCreatedAt)
	require.NoError(t, WriteSuperblock(dev, &sb))

	got, err := ReadSuperblock(dev)
	require.NoError(t, err)
	assert.Equal(t, sb, got)
}

func TestDecodeSuperblockErrors(t *testing.T) {
	sb := NewSuperblock(4096, 5000, testCreatedAt)
	data, err := sb.Encode()
	require.NoError(t, err)

	_, err = DecodeSuperblock(data[:100])
	assert.Error(t, err)

	badMagic := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(badMagic, 0xEF53)
	_, err = DecodeSuperblock(badMagic)
	var magicErr ErrBadMagic
	require.ErrorAs(t, err, &magicErr)
	assert.Equal(t, uint32(0xEF53), magicErr.Found)

	badVersion := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(badVersion[4:], 2)
	_, err = DecodeSuperblock(badVersion)
	var versionErr ErrBadVersion
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, uint32(2), versionErr.Found)
}

func TestSuperblockCounters(t *testing.T) {
	sb := NewSuperblock(4096, 5000, testCreatedAt)
	later := testCreatedAt.Add(time.Hour)

	sb.RecordMount(later)
	sb.RecordMount(later)
	assert.Equal(t, uint32(2), sb.MountCount)
	assert.Equal(t, later.Unix(), sb.LastMountTime)
	assert.Equal(t, testCreatedAt.Unix(), sb.LastWriteTime)

	dev := NewMemoryDevice(4096 * 16)
	require.NoError(t, FlushSuperblock(dev, &sb, later))
	assert.Equal(t, later.Unix(), sb.LastWriteTime)

	got, err := ReadSuperblock(dev)
	require.NoError(t, err)
	assert.Equal(t, later, got.LastWriteAt())
	assert.Equal(t, testCreatedAt, got.CreatedAt())
}

func TestGeometryValidate(t *testing.T) {
	tests := []struct {
		name string
		g    Geometry
		ok   bool
	}{
		{"default", DefaultGeometry(), true},
		{"smallest", Geometry{BlockSize: 512, TotalBlocks: 12}, true},
		{"bitmap limit", Geometry{BlockSize: 512, TotalBlocks: 4096}, true},
		{"beyond bitmap", Geometry{BlockSize: 512, TotalBlocks: 4097}, false},
		{"metadata only", Geometry{BlockSize: 4096, TotalBlocks: 11}, false},
		{"tiny block", Geometry{BlockSize: 256, TotalBlocks: 100}, false},
		{"odd block", Geometry{BlockSize: 3000, TotalBlocks: 100}, false},
		{"huge block", Geometry{BlockSize: 1 << 17, TotalBlocks: 100}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidGeometry)
			}
		})
	}
}
