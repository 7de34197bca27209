package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"regatta-live/src/models"
)

// -----------------------------------------------------------------------------
// Shared helpers for the SQL backends
// -----------------------------------------------------------------------------

func encodeSnapshot(snapshot *models.MRaceSnapshot) ([]byte, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return payload, nil
}

// -----------------------------------------------------------------------------

func decodeSnapshot(payload []byte) (*models.MRaceSnapshot, error) {
	var snapshot models.MRaceSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// -----------------------------------------------------------------------------

func scanTrackPoints(rows *sql.Rows, raceID string) ([]models.MTrackPoint, error) {
	var points []models.MTrackPoint
	for rows.Next() {
		var (
			p    models.MTrackPoint
			sog  sql.NullFloat64
			cog  sql.NullFloat64
			name sql.NullString
		)
		if err := rows.Scan(&p.BoatID, &p.T, &p.Lat, &p.Lon, &sog, &cog, &name); err != nil {
			return nil, err
		}
		p.RaceID = raceID
		if sog.Valid {
			v := sog.Float64
			p.SOG = &v
		}
		if cog.Valid {
			v := cog.Float64
			p.COG = &v
		}
		p.Name = name.String
		points = append(points, p)
	}
	return points, rows.Err()
}

// -----------------------------------------------------------------------------

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// -----------------------------------------------------------------------------

func nullableName(name string) sql.NullString {
	return sql.NullString{String: name, Valid: name != ""}
}

// -----------------------------------------------------------------------------

// retentionCutoffMs returns the epoch-ms boundary below which track points expire.
func retentionCutoffMs(now time.Time, retentionDays int) int64 {
	return now.UTC().AddDate(0, 0, -retentionDays).UnixMilli()
}
