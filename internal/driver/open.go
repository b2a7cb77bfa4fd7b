package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/logger"
)

// Open connects to the backend named by cfg.Graph.Backend.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (GraphDriver, error) {
	switch strings.ToLower(cfg.Graph.Backend) {
	case "", "memory":
		log.Info("Using in-memory graph store")
		return NewMemoryDriver(), nil
	case "sqlite":
		d, err := OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info("Opened SQLite graph store", "path", cfg.SQLite.Path)
		return d, nil
	case "memgraph":
		d, err := NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, log)
		if err != nil {
			return nil, err
		}
		d.Database = cfg.Memgraph.Database
		return d, nil
	default:
		return nil, fmt.Errorf("unknown graph backend: %s", cfg.Graph.Backend)
	}
}
