package audit

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/pilat/go-forensicfs/internal/config"
)

// New creates the audit store selected by cfg.Type, decoding the type-specific
// option map.
func New(ctx context.Context, cfg *config.AuditConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "badger":
		var storeCfg BadgerStoreConfig
		if err := mapstructure.Decode(cfg.Badger, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode badger audit store config: %w", err)
		}
		return NewBadgerStore(ctx, storeCfg)
	default:
		return nil, fmt.Errorf("unknown audit store type: %q", cfg.Type)
	}
}
