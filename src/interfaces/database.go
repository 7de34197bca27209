package interfaces

import (
	"context"

	"regatta-live/src/models"
)

// -----------------------------------------------------------------------------
// ISnapshotStore persists the live state of each race.
// -----------------------------------------------------------------------------

type ISnapshotStore interface {

	// -----------------------------------------------------------------------------

	// LoadSnapshot returns the last persisted snapshot; found is false when the race has none.
	LoadSnapshot(ctx context.Context, raceID string) (snapshot *models.MRaceSnapshot, found bool, err error)

	// -----------------------------------------------------------------------------

	// SaveSnapshot replaces the persisted snapshot of a race.
	SaveSnapshot(ctx context.Context, raceID string, snapshot *models.MRaceSnapshot) error

	// -----------------------------------------------------------------------------

	// ListRaceIDs returns every race with a persisted snapshot, sorted.
	ListRaceIDs(ctx context.Context) ([]string, error)
}

// -----------------------------------------------------------------------------
// ITrackLog is the append-only historical point store read by replay.
// -----------------------------------------------------------------------------

type ITrackLog interface {

	// -----------------------------------------------------------------------------

	// AppendTrackPoints inserts points; a point already stored for (raceId, boatId, t) is left untouched.
	AppendTrackPoints(ctx context.Context, points []models.MTrackPoint) error

	// -----------------------------------------------------------------------------

	// ListTrackPoints returns points with from <= t <= to ordered by t then boatId.
	ListTrackPoints(ctx context.Context, raceID string, from, to int64) ([]models.MTrackPoint, error)
}

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage backends.
// -----------------------------------------------------------------------------

type IDatabase interface {
	ISnapshotStore
	ITrackLog

	// -----------------------------------------------------------------------------

	// Initialize opens the backend and creates its schema when missing.
	Initialize() error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes track points older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
