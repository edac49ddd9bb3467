package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	forensicfs "github.com/pilat/go-forensicfs"
	"github.com/pilat/go-forensicfs/internal/audit"
	"github.com/pilat/go-forensicfs/internal/config"
	"github.com/pilat/go-forensicfs/internal/flock"
	"github.com/pilat/go-forensicfs/internal/logger"
	"github.com/urfave/cli/v2"
)

// environment is what every command shares: configuration, logger and the
// audit store, set up once before the command runs.
type environment struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	audit    audit.Store
}

func (env *environment) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	log, closeLog, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}

	env.cfg = cfg
	env.logger = log
	env.closeLog = closeLog

	if cfg.Audit.Enabled {
		store, err := audit.New(c.Context, &cfg.Audit)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		env.audit = store
	}

	log.Debug("configuration loaded",
		"image", cfg.Image.Path, "audit", cfg.Audit.Enabled, "audit_type", cfg.Audit.Type, "archive_type", cfg.Archive.Type)

	return nil
}

func (env *environment) teardown(*cli.Context) error {
	if env.audit != nil {
		if err := env.audit.Close(); err != nil {
			env.logger.Warn("closing audit store failed", "err", err)
		}
	}
	if env.closeLog != nil {
		return env.closeLog()
	}
	return nil
}

func (env *environment) imagePath(c *cli.Context) string {
	if p := c.String("image"); p != "" {
		return p
	}
	return env.cfg.Image.Path
}

// auditKey names an image in the audit store independently of the working
// directory the command ran from.
func auditKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (env *environment) imageOptions(path string) []forensicfs.ImageOption {
	opts := []forensicfs.ImageOption{
		forensicfs.WithImagePath(path),
		forensicfs.WithLogger(env.logger.With("image", path)),
	}
	if env.audit != nil {
		opts = append(opts, forensicfs.WithEventSink(audit.Sink(env.audit, auditKey(path))))
	}
	return opts
}

// withImage opens the image named on the command line, taking the image lock
// first when the command mutates it.
func withImage(
	env *environment,
	mutating bool,
	f func(*cli.Context, *forensicfs.Image) error,
) cli.ActionFunc {
	return func(c *cli.Context) error {
		path := env.imagePath(c)

		if mutating {
			lock, err := flock.Lock(path)
			if err != nil {
				return err
			}
			defer lock.Unlock()
		}

		img, err := forensicfs.Open(env.imageOptions(path)...)
		if err != nil {
			return err
		}
		defer img.Close()

		return f(c, img)
	}
}
