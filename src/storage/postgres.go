package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"regatta-live/src/helpers"
	"regatta-live/src/logger"
	"regatta-live/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Schema is named after the executable so several deployments can share one database
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	// The database container may still be starting
	if err := helpers.RetryWithBackoff(d.Logger, "postgres ping", 5, 500*time.Millisecond, db.Ping); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				race_id TEXT PRIMARY KEY,
				payload JSONB NOT NULL,
				updated_at BIGINT NOT NULL
			);
		`, d.table("race_snapshots")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				race_id TEXT NOT NULL,
				boat_id TEXT NOT NULL,
				t BIGINT NOT NULL,
				lat DOUBLE PRECISION NOT NULL,
				lon DOUBLE PRECISION NOT NULL,
				sog DOUBLE PRECISION,
				cog DOUBLE PRECISION,
				name TEXT,
				PRIMARY KEY (race_id, boat_id, t)
			);
		`, d.table("track_points")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_track_points_race_t ON %s (race_id, t, boat_id);`, d.table("track_points")),
	}

	for _, stmt := range statements {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema objects: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LoadSnapshot(ctx context.Context, raceID string) (*models.MRaceSnapshot, bool, error) {
	var payload []byte
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE race_id = $1`, d.table("race_snapshots"))
	err := d.DB.QueryRowContext(ctx, query, raceID).Scan(&payload)
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

func (d *PostgresDB) SaveSnapshot(ctx context.Context, raceID string, snapshot *models.MRaceSnapshot) error {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (race_id, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (race_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`, d.table("race_snapshots"))
	if _, err := d.DB.ExecContext(ctx, query, raceID, string(payload), time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", raceID, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ListRaceIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT race_id FROM %s ORDER BY race_id COLLATE "C"`, d.table("race_snapshots"))
	rows, err := d.DB.QueryContext(ctx, query)
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

func (d *PostgresDB) AppendTrackPoints(ctx context.Context, points []models.MTrackPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (race_id, boat_id, t, lat, lon, sog, cog, name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (race_id, boat_id, t) DO NOTHING
	`, d.table("track_points"))
	stmt, err := tx.PrepareContext(ctx, query)
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

func (d *PostgresDB) ListTrackPoints(ctx context.Context, raceID string, from, to int64) ([]models.MTrackPoint, error) {
	// Byte-wise boat ordering so ties break the same way on every backend
	query := fmt.Sprintf(`
		SELECT boat_id, t, lat, lon, sog, cog, name
		FROM %s
		WHERE race_id = $1 AND t >= $2 AND t <= $3
		ORDER BY t ASC, boat_id COLLATE "C" ASC
	`, d.table("track_points"))
	rows, err := d.DB.QueryContext(ctx, query, raceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points for %s: %w", raceID, err)
	}
	defer rows.Close()

	return scanTrackPoints(rows, raceID)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	if retentionDays <= 0 {
		return nil
	}
	cutoff := retentionCutoffMs(time.Now(), retentionDays)

	d.Logger.Info("Cleaning up track points older than %d days (t < %d)...", retentionDays, cutoff)

	if _, err := d.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE t < $1`, d.table("track_points")), cutoff); err != nil {
		d.Logger.Error("Cleanup track_points error: %v", err)
		return err
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
