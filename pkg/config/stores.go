package config

import (
	"fmt"

	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/pkg/controlplane/store"
	"github.com/marmos91/filebox/pkg/index"
)

// CreateIndexBackend opens the index persistence backend named by cfg.
func CreateIndexBackend(cfg IndexConfig) (index.Backend, error) {
	switch cfg.Backend {
	case IndexBackendMemory, "":
		return index.NewMemoryBackend(), nil
	case IndexBackendBadger:
		b, err := index.OpenBadger(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger index at %q: %w", cfg.Path, err)
		}
		logger.Debug("Badger index opened", logger.KeyPath, cfg.Path)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown index backend: %q", cfg.Backend)
	}
}

// CreateUserStore opens the user database. The caller closes it.
func CreateUserStore(cfg AuthConfig) (store.Store, error) {
	dbCfg := cfg.Database
	s, err := store.New(&dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open user database (%s): %w", dbCfg.Type, err)
	}
	return s, nil
}
