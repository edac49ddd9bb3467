package config

import (
	"strings"

	forensicfs "github.com/pilat/go-forensicfs"
)

// ApplyDefaults fills zero values with defaults. Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyImageDefaults(&cfg.Image)
	applyAuditDefaults(&cfg.Audit)
	applyArchiveDefaults(&cfg.Archive)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyImageDefaults(cfg *ImageConfig) {
	if cfg.Path == "" {
		cfg.Path = "disk.img"
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = forensicfs.DefaultBlockSize
	}
	if cfg.TotalBlocks == 0 {
		cfg.TotalBlocks = forensicfs.DefaultGeometry().TotalBlocks
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
}

func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
