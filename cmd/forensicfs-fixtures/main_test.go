package main

import (
	"os"
	"path/filepath"
	"testing"

	forensicfs "github.com/pilat/go-forensicfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions("check", nil)
	require.NoError(t, err)
	assert.Equal(t, fixtureGeometry, opts.geometry)
	assert.Empty(t, opts.out)

	opts, err = parseOptions("generate", []string{"-block-size", "1024", "-blocks", "64", "-o", "x.img"})
	require.NoError(t, err)
	assert.Equal(t, forensicfs.Geometry{BlockSize: 1024, TotalBlocks: 64}, opts.geometry)
	assert.Equal(t, "x.img", opts.out)

	_, err = parseOptions("generate", []string{"-blocks", "4294967307"})
	assert.Error(t, err)

	_, err = parseOptions("generate", []string{"-blocks", "5"})
	assert.ErrorIs(t, err, forensicfs.ErrInvalidGeometry)
}

func TestFixtureMatchesFingerprint(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fixture.img")

	size, fileHash, err := buildAndHashFixture(options{geometry: fixtureGeometry, out: out})
	require.NoError(t, err)
	assert.Equal(t, expectedSHA256Hex, fixtureFingerprint(size, fileHash))

	_, err = os.Stat(out)
	assert.NoError(t, err, "fixture is kept when -o is given")
}

func TestCheckRejectsOtherGeometry(t *testing.T) {
	err := runCheck(options{geometry: forensicfs.Geometry{BlockSize: 1024, TotalBlocks: 64}})
	assert.Error(t, err)
}
