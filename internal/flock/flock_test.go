package flock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockIsExclusive(t *testing.T) {
	img := filepath.Join(t.TempDir(), "disk.img")

	first, err := Lock(img)
	require.NoError(t, err)

	_, err = Lock(img)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Unlock())

	again, err := Lock(img)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestLockPath(t *testing.T) {
	assert.Equal(t, "/cases/disk.img.lock", LockPath("/cases/disk.img"))
}
