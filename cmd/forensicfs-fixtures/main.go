package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	forensicfs "github.com/pilat/go-forensicfs"
)

const (
	fixturesCreatedAt = int64(1600000000)
	expectedSHA256Hex = "77fd1bd573536d085cf45e16e45ead016bf35cb0f009aa9ad35ac43ed59139e5"
)

// fixtureGeometry is the geometry expectedSHA256Hex was recorded for.
var fixtureGeometry = forensicfs.Geometry{BlockSize: 4096, TotalBlocks: 5000}

// options are the flags shared by both subcommands.
type options struct {
	geometry forensicfs.Geometry
	out      string
}

func parseOptions(cmd string, args []string) (options, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	blockSize := fs.Uint("block-size", uint(fixtureGeometry.BlockSize), "fixture block size in bytes")
	blocks := fs.Uint("blocks", uint(fixtureGeometry.TotalBlocks), "fixture block count")
	out := fs.String("o", "", "keep the fixture image at this path instead of a temporary file")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if *blockSize > math.MaxUint32 || *blocks > math.MaxUint32 {
		return options{}, fmt.Errorf("-block-size %d or -blocks %d does not fit 32 bits", *blockSize, *blocks)
	}

	opts := options{
		geometry: forensicfs.Geometry{BlockSize: uint32(*blockSize), TotalBlocks: uint32(*blocks)},
		out:      *out,
	}

	return opts, opts.geometry.Validate()
}

func main() {
	log.SetFlags(0)
	prog := filepath.Base(os.Args[0])

	if len(os.Args) < 2 {
		log.Fatalf("usage: %s generate|check [-block-size N] [-blocks N] [-o image]", prog)
	}

	cmd := os.Args[1]
	run, ok := map[string]func(options) error{
		"generate": runGenerate,
		"check":    runCheck,
	}[cmd]
	if !ok {
		log.Fatalf("%s: unknown command %q: want generate or check", prog, cmd)
	}

	opts, err := parseOptions(cmd, os.Args[2:])
	if err != nil {
		log.Fatalf("%s %s: %v", prog, cmd, err)
	}

	if err := run(opts); err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func runGenerate(opts options) error {
	size, fileHash, err := buildAndHashFixture(opts)
	if err != nil {
		return err
	}

	fingerprint := fixtureFingerprint(size, fileHash)

	fmt.Printf("fixture geometry: %d x %d\n", opts.geometry.BlockSize, opts.geometry.TotalBlocks)
	fmt.Printf("fixture size: %d bytes\n", size)
	fmt.Printf("fixture file sha256: %s\n", fileHash)
	fmt.Printf("fixture fingerprint (sha256 of \"size:filehash\"): %s\n", fingerprint)

	if opts.geometry == fixtureGeometry {
		fmt.Println()
		fmt.Println("update expected constant in cmd/forensicfs-fixtures/main.go if this value changed:")
		fmt.Printf("  const expectedSHA256Hex = %q\n", fingerprint)
	}

	return nil
}

func runCheck(opts options) error {
	if opts.geometry != fixtureGeometry {
		return fmt.Errorf("the expected fingerprint is recorded for %d x %d only",
			fixtureGeometry.BlockSize, fixtureGeometry.TotalBlocks)
	}

	size, fileHash, err := buildAndHashFixture(opts)
	if err != nil {
		return err
	}

	actual := fixtureFingerprint(size, fileHash)
	if actual != expectedSHA256Hex {
		log.Printf("ERROR: fingerprint mismatch: expected=%s actual=%s", expectedSHA256Hex, actual)
		return fmt.Errorf("fixture does not match expected fingerprint")
	}

	log.Printf("ok: fixture matches expected fingerprint (%s)", expectedSHA256Hex)
	return nil
}

func buildAndHashFixture(opts options) (uint64, string, error) {
	imagePath := opts.out
	if imagePath == "" {
		imagePath = filepath.Join(os.TempDir(), "forensicfs-fixture.img")
		defer os.Remove(imagePath)
	}
	_ = os.Remove(imagePath)

	img, err := forensicfs.New(
		forensicfs.WithImagePath(imagePath),
		forensicfs.WithGeometry(opts.geometry),
		forensicfs.WithCreatedAt(time.Unix(fixturesCreatedAt, 0)),
	)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create image: %w", err)
	}

	if err := buildFixture(img, opts.geometry.BlockSize); err != nil {
		_ = img.Close()
		return 0, "", fmt.Errorf("fixture build failed: %w", err)
	}

	report, err := img.Verify()
	if err != nil {
		return 0, "", fmt.Errorf("verify failed: %w", err)
	}
	if !report.OK() {
		return 0, "", fmt.Errorf("fixture is inconsistent:\n%s", report)
	}

	if err := img.Close(); err != nil {
		return 0, "", err
	}

	info, err := os.Stat(imagePath)
	if err != nil {
		return 0, "", fmt.Errorf("failed to stat image %q: %w", imagePath, err)
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open image %q: %w", imagePath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, "", fmt.Errorf("failed to hash image %q: %w", imagePath, err)
	}

	return uint64(info.Size()), hex.EncodeToString(h.Sum(nil)), nil
}

// buildFixture mounts the image, stores one file in a data block, then creates
// and deletes a scratch directory so the image carries a deletion record.
func buildFixture(img *forensicfs.Image, blockSize uint32) error {
	if err := img.Mount(); err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	note, err := img.AllocInode(forensicfs.FileTypeFile, 0o644, 1000)
	if err != nil {
		return fmt.Errorf("failed to allocate note inode: %w", err)
	}

	blk, err := img.AllocBlock()
	if err != nil {
		return fmt.Errorf("failed to allocate note block: %w", err)
	}

	content := []byte("hello from forensicfs fixtures\n")
	data := make([]byte, blockSize)
	copy(data, content)
	if err := img.Device().WriteBlock(data, blockSize, blk); err != nil {
		return fmt.Errorf("failed to write note data: %w", err)
	}

	note.DirectBlocks[0] = blk
	note.Size = uint64(len(content))
	if err := img.WriteInode(&note); err != nil {
		return fmt.Errorf("failed to update note inode: %w", err)
	}

	scratch, err := img.AllocInode(forensicfs.FileTypeDir, 0o700, 1000)
	if err != nil {
		return fmt.Errorf("failed to allocate scratch inode: %w", err)
	}

	scratchBlk, err := img.AllocBlock()
	if err != nil {
		return fmt.Errorf("failed to allocate scratch block: %w", err)
	}

	if err := img.FreeBlock(scratchBlk); err != nil {
		return fmt.Errorf("failed to free scratch block: %w", err)
	}

	if err := img.FreeInode(scratch.InodeNumber); err != nil {
		return fmt.Errorf("failed to free scratch inode: %w", err)
	}

	return img.Sync()
}

func fixtureFingerprint(size uint64, fileHash string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s", size, fileHash)
	return hex.EncodeToString(h.Sum(nil))
}
