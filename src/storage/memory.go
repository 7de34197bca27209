package storage

import (
	"context"
	"sort"
	"sync"

	"regatta-live/src/models"
)

type trackKeyID struct {
	boatID string
	t      int64
}

// -----------------------------------------------------------------------------

// MemoryDB keeps everything in process memory. It backs db_type "memory" and tests.
type MemoryDB struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	points    map[string][]models.MTrackPoint
	seen      map[string]map[trackKeyID]struct{}
}

// -----------------------------------------------------------------------------

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		snapshots: make(map[string][]byte),
		points:    make(map[string][]models.MTrackPoint),
		seen:      make(map[string]map[trackKeyID]struct{}),
	}
}

// -----------------------------------------------------------------------------

func (m *MemoryDB) Initialize() error { return nil }

func (m *MemoryDB) CleanupOldData() error { return nil }

func (m *MemoryDB) Close() error { return nil }

// -----------------------------------------------------------------------------

func (m *MemoryDB) LoadSnapshot(ctx context.Context, raceID string) (*models.MRaceSnapshot, bool, error) {
	m.mu.RLock()
	payload, ok := m.snapshots[raceID]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	// Stored encoded so callers never share memory with the store
	snapshot, err := decodeSnapshot(payload)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

// -----------------------------------------------------------------------------

func (m *MemoryDB) SaveSnapshot(ctx context.Context, raceID string, snapshot *models.MRaceSnapshot) error {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.snapshots[raceID] = payload
	m.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

func (m *MemoryDB) ListRaceIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// -----------------------------------------------------------------------------

func (m *MemoryDB) AppendTrackPoints(ctx context.Context, points []models.MTrackPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		seen, ok := m.seen[p.RaceID]
		if !ok {
			seen = make(map[trackKeyID]struct{})
			m.seen[p.RaceID] = seen
		}
		id := trackKeyID{boatID: p.BoatID, t: p.T}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		m.points[p.RaceID] = append(m.points[p.RaceID], p)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (m *MemoryDB) ListTrackPoints(ctx context.Context, raceID string, from, to int64) ([]models.MTrackPoint, error) {
	m.mu.RLock()
	var points []models.MTrackPoint
	for _, p := range m.points[raceID] {
		if p.T >= from && p.T <= to {
			points = append(points, p)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(points, func(i, j int) bool {
		if points[i].T != points[j].T {
			return points[i].T < points[j].T
		}
		return points[i].BoatID < points[j].BoatID
	})
	return points, nil
}
