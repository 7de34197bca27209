package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"regatta-live/src/logger"
	"regatta-live/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	// One writer connection keeps snapshot writes strictly ordered and
	// lets ":memory:" databases behave as a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		d.Logger.Warning("Failed to set busy timeout: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	statements := []string{
		`CREATE TABLE IF NOT EXISTS race_snapshots (
			race_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS track_points (
			race_id TEXT NOT NULL,
			boat_id TEXT NOT NULL,
			t INTEGER NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			sog REAL,
			cog REAL,
			name TEXT,
			PRIMARY KEY (race_id, boat_id, t)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_track_points_race_t ON track_points (race_id, t, boat_id);`,
	}

	for _, stmt := range statements {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) LoadSnapshot(ctx context.Context, raceID string) (*models.MRaceSnapshot, bool, error) {
	var payload []byte
	err := d.DB.QueryRowContext(ctx, "SELECT payload FROM race_snapshots WHERE race_id = ?", raceID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot for %s: %w", raceID, err)
	}

	snapshot, err := decodeSnapshot(payload)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveSnapshot(ctx context.Context, raceID string, snapshot *models.MRaceSnapshot) error {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	_, err = d.DB.ExecContext(ctx, `
		INSERT INTO race_snapshots (race_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (race_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, raceID, string(payload), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", raceID, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) ListRaceIDs(ctx context.Context) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx, "SELECT race_id FROM race_snapshots ORDER BY race_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) AppendTrackPoints(ctx context.Context, points []models.MTrackPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_points (race_id, boat_id, t, lat, lon, sog, cog, name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (race_id, boat_id, t) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.RaceID, p.BoatID, p.T, p.Lat, p.Lon, nullableFloat(p.SOG), nullableFloat(p.COG), nullableName(p.Name)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) ListTrackPoints(ctx context.Context, raceID string, from, to int64) ([]models.MTrackPoint, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT boat_id, t, lat, lon, sog, cog, name
		FROM track_points
		WHERE race_id = ? AND t >= ? AND t <= ?
		ORDER BY t ASC, boat_id ASC
	`, raceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points for %s: %w", raceID, err)
	}
	defer rows.Close()

	return scanTrackPoints(rows, raceID)
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	if retentionDays <= 0 {
		return nil
	}
	cutoff := retentionCutoffMs(time.Now(), retentionDays)

	d.Logger.Info("Cleaning up track points older than %d days (t < %d)...", retentionDays, cutoff)

	res, err := d.DB.Exec("DELETE FROM track_points WHERE t < ?", cutoff)
	if err != nil {
		d.Logger.Error("Cleanup track_points error: %v", err)
		return err
	}

	removed, _ := res.RowsAffected()
	d.Logger.Info("Cleanup completed, %d track points removed", removed)
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
