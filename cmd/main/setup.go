package main

import (
	"context"
	"time"

	"regatta-live/src/interfaces"
	"regatta-live/src/logger"
	"regatta-live/src/models"
	"regatta-live/src/race"
	"regatta-live/src/replay"
	"regatta-live/src/storage"
)

const retentionInterval = time.Hour

// components groups everything the servers need.
type components struct {
	db       interfaces.IDatabase
	registry *race.Registry
	replay   *replay.Engine
}

// -----------------------------------------------------------------------------

// setupComponents opens storage and builds the registry and replay engine on top of it.
func setupComponents(cfg *models.MConfig, appLogger *logger.Logger) (*components, error) {
	db, err := storage.NewDatabase(cfg, appLogger.Named("Storage"))
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, err
	}

	registry := race.NewRegistry(race.Options{
		Store:          db,
		TrackLog:       db,
		Logger:         appLogger.Named("Race"),
		StaleAfterMs:   cfg.Tracking.StaleAfterMs,
		TrackQueueSize: cfg.Tracking.TrackQueueSize,
	}, time.Duration(cfg.Tracking.IdleEvictSeconds)*time.Second)

	engine := replay.NewEngine(
		db,
		appLogger.Named("Replay"),
		time.Duration(cfg.Replay.MaxWindowMinutes)*time.Minute,
		cfg.Replay.DefaultHz,
	)

	return &components{db: db, registry: registry, replay: engine}, nil
}

// -----------------------------------------------------------------------------

// close stops every race channel, which drains pending track writes, then closes storage.
func (c *components) close(appLogger *logger.Logger) {
	c.registry.Close()
	if err := c.db.Close(); err != nil {
		appLogger.Error("Failed to close database: %v", err)
	}
}

// -----------------------------------------------------------------------------

// runRetention prunes old track points once at startup and then hourly.
func runRetention(ctx context.Context, db interfaces.IDatabase, log *logger.Logger) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		if err := db.CleanupOldData(); err != nil {
			log.Warning("Retention cleanup failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
