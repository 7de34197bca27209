package storage

import (
	"regatta-live/src/interfaces"
	"regatta-live/src/logger"
	"regatta-live/src/models"
)

// -----------------------------------------------------------------------------

// NewDatabase selects the backend named by storage.db_type. The result is not yet initialized.
func NewDatabase(cfg *models.MConfig, log *logger.Logger) (interfaces.IDatabase, error) {
	switch cfg.Storage.DBType {
	case "postgres":
		return NewPostgresDB(cfg, log)
	case "badger":
		return NewBadgerDB(cfg, log)
	case "memory":
		return NewMemoryDB(), nil
	default:
		// Default to SQLite
		return NewSQLiteDB(cfg, log)
	}
}
