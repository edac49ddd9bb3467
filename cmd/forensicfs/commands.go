package main

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	forensicfs "github.com/pilat/go-forensicfs"
	"github.com/pilat/go-forensicfs/internal/archive"
	"github.com/pilat/go-forensicfs/internal/flock"
	"github.com/urfave/cli/v2"
)

// uint32Flag reads a uint flag bound for a 32-bit on-disk field.
func uint32Flag(c *cli.Context, name string) (uint32, error) {
	v := c.Uint(name)
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("--%s %d is out of range: maximum is %d", name, v, uint64(math.MaxUint32))
	}
	return uint32(v), nil
}

func (env *environment) mkfs(c *cli.Context) error {
	path := env.imagePath(c)

	g := forensicfs.Geometry{BlockSize: env.cfg.Image.BlockSize, TotalBlocks: env.cfg.Image.TotalBlocks}
	if c.IsSet("block-size") {
		v, err := uint32Flag(c, "block-size")
		if err != nil {
			return err
		}
		g.BlockSize = v
	}
	if c.IsSet("total-blocks") {
		v, err := uint32Flag(c, "total-blocks")
		if err != nil {
			return err
		}
		g.TotalBlocks = v
	}

	lock, err := flock.Lock(path)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	img, err := forensicfs.New(append(env.imageOptions(path), forensicfs.WithGeometry(g))...)
	if err != nil {
		return err
	}
	defer img.Close()

	fmt.Fprintf(c.App.Writer, "created %s (%s)\n", path, humanize.IBytes(g.Size()))
	fmt.Fprintln(c.App.Writer, g.String())
	return nil
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

func inspect(c *cli.Context, img *forensicfs.Image) error {
	sb := img.Superblock()
	w := c.App.Writer

	fmt.Fprintf(w, "magic:              %#08x\n", sb.Magic)
	fmt.Fprintf(w, "version:            %d\n", sb.Version)
	fmt.Fprintf(w, "block size:         %d\n", sb.BlockSize)
	fmt.Fprintf(w, "total blocks:       %s\n", humanize.Comma(int64(sb.TotalBlocks)))
	fmt.Fprintf(w, "size:               %s (%d bytes)\n", humanize.IBytes(sb.FSSize), sb.FSSize)
	fmt.Fprintf(w, "free blocks:        %s\n", humanize.Comma(int64(sb.FreeBlocks)))
	fmt.Fprintf(w, "inodes:             %d (%d free)\n", sb.InodeCount, sb.FreeInodes)
	fmt.Fprintf(w, "inode table:        blocks %d-%d\n", sb.FirstInodeBlock, sb.FirstInodeBlock+sb.InodeBlocks-1)
	fmt.Fprintf(w, "block bitmap:       block %d\n", sb.BlockBitmapBlock)
	fmt.Fprintf(w, "inode bitmap:       block %d\n", sb.InodeBitmapBlock)
	fmt.Fprintf(w, "first data block:   %d\n", sb.FirstDataBlock)
	fmt.Fprintf(w, "root inode:         %d\n", sb.RootInode)
	fmt.Fprintf(w, "created:            %s\n", formatTime(sb.CreatedTime))
	fmt.Fprintf(w, "last mount:         %s\n", formatTime(sb.LastMountTime))
	fmt.Fprintf(w, "last write:         %s\n", formatTime(sb.LastWriteTime))
	fmt.Fprintf(w, "mount count:        %d\n", sb.MountCount)
	fmt.Fprintf(w, "state:              %s\n", sb.State)

	return nil
}

func verify(c *cli.Context, img *forensicfs.Image) error {
	report, err := img.Verify()
	if err != nil {
		return err
	}

	fmt.Fprint(c.App.Writer, report.String())
	if !report.OK() {
		return cli.Exit("image failed verification", 1)
	}
	return nil
}

func allocBlocks(c *cli.Context, img *forensicfs.Image) error {
	n := c.Int("count")
	if n < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	for i := 0; i < n; i++ {
		blk, err := img.AllocBlock()
		if err != nil {
			// Blocks allocated so far are already in the bitmap.
			if syncErr := img.Sync(); syncErr != nil {
				return syncErr
			}
			return err
		}
		fmt.Fprintln(c.App.Writer, blk)
	}

	return img.Sync()
}

func freeBlock(c *cli.Context, img *forensicfs.Image) error {
	blk, err := uint32Flag(c, "block")
	if err != nil {
		return err
	}

	if err := img.FreeBlock(blk); err != nil {
		return err
	}
	return img.Sync()
}

func parseFileType(s string) (forensicfs.FileType, error) {
	switch s {
	case "file", "f":
		return forensicfs.FileTypeFile, nil
	case "dir", "directory", "d":
		return forensicfs.FileTypeDir, nil
	default:
		return 0, fmt.Errorf("unknown file type %q: want file or dir", s)
	}
}

func allocInode(c *cli.Context, img *forensicfs.Image) error {
	fileType, err := parseFileType(c.String("type"))
	if err != nil {
		return err
	}

	mode, err := strconv.ParseUint(c.String("mode"), 8, 32)
	if err != nil {
		return fmt.Errorf("invalid mode %q: %w", c.String("mode"), err)
	}

	owner, err := uint32Flag(c, "owner")
	if err != nil {
		return err
	}

	inode, err := img.AllocInode(fileType, uint32(mode), owner)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, inode.InodeNumber)
	return img.Sync()
}

func freeInode(c *cli.Context, img *forensicfs.Image) error {
	ino, err := uint32Flag(c, "inode")
	if err != nil {
		return err
	}

	if err := img.FreeInode(ino); err != nil {
		return err
	}
	return img.Sync()
}

func statInode(c *cli.Context, img *forensicfs.Image) error {
	ino, err := uint32Flag(c, "inode")
	if err != nil {
		return err
	}

	inode, err := img.ReadInode(ino)
	if err != nil {
		return err
	}

	w := c.App.Writer
	if inode.IsZero() {
		fmt.Fprintf(w, "inode %d: unused slot\n", ino)
		return nil
	}

	fmt.Fprintf(w, "inode:       %d\n", inode.InodeNumber)
	fmt.Fprintf(w, "type:        %s\n", inode.FileType)
	fmt.Fprintf(w, "size:        %d\n", inode.Size)
	fmt.Fprintf(w, "permissions: %04o\n", inode.Permissions)
	fmt.Fprintf(w, "owner:       %d\n", inode.OwnerID)
	fmt.Fprintf(w, "links:       %d\n", inode.LinkCount)
	fmt.Fprintf(w, "blocks:      %v\n", inode.DirectBlocks)
	fmt.Fprintf(w, "created:     %s\n", formatTime(inode.CreatedTime))
	fmt.Fprintf(w, "modified:    %s\n", formatTime(inode.ModifiedTime))
	fmt.Fprintf(w, "accessed:    %s\n", formatTime(inode.AccessedTime))
	if inode.Deleted() {
		fmt.Fprintf(w, "deleted:     %s\n", formatTime(inode.DeletedTime))
	}

	return nil
}

func mount(c *cli.Context, img *forensicfs.Image) error {
	if err := img.Mount(); err != nil {
		return err
	}

	sb := img.Superblock()
	fmt.Fprintf(c.App.Writer, "mount count: %d\n", sb.MountCount)
	return nil
}

func (env *environment) listAudit(c *cli.Context) error {
	if env.audit == nil {
		return fmt.Errorf("audit trail is disabled: set audit.enabled in the configuration")
	}

	entries, err := env.audit.List(c.Context, auditKey(env.imagePath(c)))
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%s %-22s block=%-6d data=%-6d inode=%-4d crc32=%08x %s\n",
			e.Time.UTC().Format(time.RFC3339Nano), e.Kind, e.Block, e.DataBlock, e.Inode, e.Digest, e.ID)
	}
	return nil
}

func (env *environment) archive(c *cli.Context) error {
	path := env.imagePath(c)

	key := c.String("key")
	if key == "" {
		key = filepath.Base(path)
	}

	store, err := archive.New(c.Context, &env.cfg.Archive)
	if err != nil {
		return err
	}

	// Hold the image lock so nothing mutates the image mid-copy.
	lock, err := flock.Lock(path)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	receipt, err := store.Put(c.Context, key, path)
	if err != nil {
		return err
	}

	env.logger.Info("image archived", "key", receipt.Key, "location", receipt.Location, "sha256", receipt.SHA256)

	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling receipt to JSON: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%s\n", data)
	return nil
}
