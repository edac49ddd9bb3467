package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "forensicfs: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	env := &environment{}

	imageFlag := &cli.StringFlag{
		Name:    "image",
		Aliases: []string{"i"},
		Usage:   "path to the image file (defaults to image.path from the config)",
	}

	return &cli.App{
		Name:  "forensicfs",
		Usage: "create and mutate forensic disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override logging.level (DEBUG, INFO, WARN, ERROR)",
			},
		},
		Before: env.setup,
		After:  env.teardown,
		Commands: []*cli.Command{{
			Name:        "mkfs",
			Usage:       "create and format a new image",
			Description: "creates the image file and writes the superblock, both bitmaps and the inode table",
			Flags: []cli.Flag{
				imageFlag,
				&cli.UintFlag{Name: "block-size", Usage: "block size in bytes"},
				&cli.UintFlag{Name: "total-blocks", Usage: "number of blocks"},
			},
			Action: env.mkfs,
		}, {
			Name:   "inspect",
			Usage:  "print the superblock of an image",
			Flags:  []cli.Flag{imageFlag},
			Action: withImage(env, false, inspect),
		}, {
			Name:        "verify",
			Usage:       "check the bitmaps against the superblock",
			Description: "exits non-zero when an invariant is violated; nothing is repaired",
			Flags:       []cli.Flag{imageFlag},
			Action:      withImage(env, false, verify),
		}, {
			Name:  "alloc",
			Usage: "allocate data blocks",
			Flags: []cli.Flag{
				imageFlag,
				&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "number of blocks"},
			},
			Action: withImage(env, true, allocBlocks),
		}, {
			Name:  "free",
			Usage: "free a data block",
			Flags: []cli.Flag{
				imageFlag,
				&cli.UintFlag{Name: "block", Aliases: []string{"b"}, Required: true, Usage: "block number"},
			},
			Action: withImage(env, true, freeBlock),
		}, {
			Name:  "ialloc",
			Usage: "allocate an inode and write a fresh record",
			Flags: []cli.Flag{
				imageFlag,
				&cli.StringFlag{Name: "type", Value: "file", Usage: "file or dir"},
				&cli.StringFlag{Name: "mode", Value: "0644", Usage: "octal permissions"},
				&cli.UintFlag{Name: "owner", Usage: "owner id"},
			},
			Action: withImage(env, true, allocInode),
		}, {
			Name:  "ifree",
			Usage: "free an inode and mark its record deleted",
			Flags: []cli.Flag{
				imageFlag,
				&cli.UintFlag{Name: "inode", Required: true, Usage: "inode number"},
			},
			Action: withImage(env, true, freeInode),
		}, {
			Name:   "stat",
			Usage:  "print one inode record",
			Flags:  []cli.Flag{imageFlag, &cli.UintFlag{Name: "inode", Value: 1, Usage: "inode number"}},
			Action: withImage(env, false, statInode),
		}, {
			Name:   "mount",
			Usage:  "record a mount in the superblock",
			Flags:  []cli.Flag{imageFlag},
			Action: withImage(env, true, mount),
		}, {
			Name:   "audit",
			Usage:  "list recorded mutations of an image",
			Flags:  []cli.Flag{imageFlag},
			Action: env.listAudit,
		}, {
			Name:  "archive",
			Usage: "copy a finished image to the archive store",
			Flags: []cli.Flag{
				imageFlag,
				&cli.StringFlag{Name: "key", Usage: "archive key (defaults to the image file name)"},
			},
			Action: env.archive,
		}},
	}
}
