package race

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"regatta-live/src/models"
	"regatta-live/src/storage"
)

// recorder is an ISubscriber that keeps every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []*models.MFleetEvent
	fail   atomic.Bool
}

func (r *recorder) Send(event *models.MFleetEvent) error {
	if r.fail.Load() {
		return errors.New("connection reset")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) received() []*models.MFleetEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.MFleetEvent, len(r.events))
	copy(out, r.events)
	return out
}

// -----------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(ms int64) *fakeClock {
	return &fakeClock{now: time.UnixMilli(ms)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// flakyStore wraps MemoryDB and fails snapshot writes on demand.
type flakyStore struct {
	*storage.MemoryDB
	failSaves atomic.Bool
}

func (s *flakyStore) SaveSnapshot(ctx context.Context, raceID string, snapshot *models.MRaceSnapshot) error {
	if s.failSaves.Load() {
		return errors.New("disk full")
	}
	return s.MemoryDB.SaveSnapshot(ctx, raceID, snapshot)
}

// -----------------------------------------------------------------------------

// gatedStore holds snapshot writes at a gate while armed. Once released, a
// write still fails if its context was cancelled.
type gatedStore struct {
	*storage.MemoryDB
	armed   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryDB: storage.NewMemoryDB(),
		entered:  make(chan struct{}, 1),
		gate:     make(chan struct{}),
	}
}

func (s *gatedStore) SaveSnapshot(ctx context.Context, raceID string, snapshot *models.MRaceSnapshot) error {
	if s.armed.Load() {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.gate
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryDB.SaveSnapshot(ctx, raceID, snapshot)
}

func (s *gatedStore) release() {
	s.armed.Store(false)
	close(s.gate)
}

func persistedBoats(t *testing.T, store *gatedStore, raceID string) map[string]bool {
	t.Helper()
	snap, found, err := store.LoadSnapshot(context.Background(), raceID)
	if err != nil || !found {
		t.Fatalf("LoadSnapshot(%s) found=%t err=%v", raceID, found, err)
	}
	boats := make(map[string]bool, len(snap.Telemetry))
	for _, pair := range snap.Telemetry {
		boats[pair.BoatID] = true
	}
	return boats
}

// -----------------------------------------------------------------------------

func newTestChannel(t *testing.T, raceID string, clock *fakeClock, store *flakyStore) *Channel {
	t.Helper()
	opts := Options{Clock: clock.Now}
	if store != nil {
		opts.Store = store
		opts.TrackLog = store
	}
	ch := NewChannel(raceID, opts, nil)
	t.Cleanup(ch.Stop)
	return ch
}

func update(raceID, boatID string, lat, lon float64, t int64) models.MUpdateRecord {
	return models.MUpdateRecord{RaceID: raceID, BoatID: boatID, Lat: lat, Lon: lon, T: t}
}

func findBoat(t *testing.T, view *models.MFleetView, boatID string) models.MBoatView {
	t.Helper()
	for _, b := range view.Boats {
		if b.BoatID == boatID {
			return b
		}
	}
	t.Fatalf("boat %s not in view of race %s", boatID, view.RaceID)
	return models.MBoatView{}
}
