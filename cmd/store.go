package cmd

import (
	"fmt"

	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/jmehdipour/campaign-orchestrator/internal/db"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"go.uber.org/zap"
)

// stores bundles the repositories a command works against.
type stores struct {
	Store     repository.Store
	Archiving *repository.ArchivingStore // nil unless the archive is enabled
	Archive   repository.CHLogsRepository
	closers   []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// openStores builds the configured repository backend. withArchive also
// connects ClickHouse when archiving is enabled.
func openStores(cfg config.Config, log *zap.Logger, withArchive bool) (*stores, error) {
	out := &stores{}

	switch cfg.Storage.Driver {
	case "memory":
		out.Store = repository.NewMemoryStore()
	case "", "mysql":
		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		out.closers = append(out.closers, mysqlDB.Close)
		out.Store = repository.NewMySQLStore(mysqlDB)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if withArchive && cfg.Storage.ArchiveEnabled {
		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("clickhouse connect: %w", err)
		}
		out.closers = append(out.closers, chDB.Close)
		out.Archive = repository.NewCHLogsRepository(chDB)
		out.Archiving = repository.NewArchivingStore(out.Store, out.Archive, log)
		out.Store = out.Archiving
	}
	return out, nil
}
