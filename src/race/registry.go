package race

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"regatta-live/src/helpers"
	"regatta-live/src/interfaces"
	"regatta-live/src/logger"
	"regatta-live/src/metrics"
	"regatta-live/src/models"
	"regatta-live/src/validation"
)

// -----------------------------------------------------------------------------
// Registry resolves raceId -> Channel
// -----------------------------------------------------------------------------

// Registry owns one Channel per resident race. Channels are created on first
// reference from the last persisted snapshot and may be evicted when idle.
type Registry struct {
	opts      Options
	idleEvict time.Duration
	logger    *logger.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
	closed   bool
	group    singleflight.Group
}

// -----------------------------------------------------------------------------

// NewRegistry creates an empty registry. idleEvict <= 0 disables eviction.
func NewRegistry(opts Options, idleEvict time.Duration) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		opts:      opts,
		idleEvict: idleEvict,
		logger:    opts.Logger.Named("RaceRegistry"),
		channels:  make(map[string]*Channel),
	}
}

// -----------------------------------------------------------------------------

// Resolve returns the live channel for raceID, creating it if needed.
func (r *Registry) Resolve(ctx context.Context, raceID string) (*Channel, error) {
	return r.resolve(ctx, raceID, true)
}

// resolve looks up raceID. With create=false a race that is neither resident
// nor persisted yields NotFound instead of a new empty channel.
func (r *Registry) resolve(ctx context.Context, raceID string, create bool) (*Channel, error) {
	if raceID == "" {
		return nil, helpers.NewInvalidInput("raceId is required")
	}

	r.mu.RLock()
	ch, ok := r.channels[raceID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrChannelStopped
	}
	if ok && !ch.Stopped() {
		return ch, nil
	}

	key := raceID
	if !create {
		key = "lookup:" + raceID
	}
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.load(ctx, raceID, create)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Channel), nil
}

func (r *Registry) load(ctx context.Context, raceID string, create bool) (*Channel, error) {
	r.mu.RLock()
	if ch, ok := r.channels[raceID]; ok && !ch.Stopped() {
		r.mu.RUnlock()
		return ch, nil
	}
	r.mu.RUnlock()

	var snapshot *models.MRaceSnapshot
	if r.opts.Store != nil {
		loaded, found, err := r.opts.Store.LoadSnapshot(ctx, raceID)
		if err != nil {
			return nil, helpers.WrapPersistence("failed to restore race "+raceID, err)
		}
		if found {
			snapshot = loaded
		} else if !create {
			return nil, helpers.NewNotFound("race %s not found", raceID)
		}
	} else if !create {
		return nil, helpers.NewNotFound("race %s not found", raceID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrChannelStopped
	}
	// A concurrent create for the same race under the other singleflight key may have won
	if ch, ok := r.channels[raceID]; ok && !ch.Stopped() {
		return ch, nil
	}

	ch := NewChannel(raceID, r.opts, snapshot)
	if _, replaced := r.channels[raceID]; !replaced {
		metrics.ActiveChannels.Inc()
	}
	r.channels[raceID] = ch
	r.logger.Info("Race channel %s started (restored=%t)", raceID, snapshot != nil)
	return ch, nil
}

// -----------------------------------------------------------------------------

// withChannel runs op against the race channel, retrying once when the channel
// was evicted between resolution and use.
func withChannel[T any](ctx context.Context, r *Registry, raceID string, create bool, op func(*Channel) (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := r.resolve(ctx, raceID, create)
		if err != nil {
			return zero, err
		}
		res, err := op(ch)
		if errors.Is(err, ErrChannelStopped) {
			continue
		}
		return res, err
	}
	return zero, ErrChannelStopped
}

// Join registers a competitor in raceID.
func (r *Registry) Join(ctx context.Context, raceID, boatID, displayName, nation string) (*models.MRosterAck, error) {
	if err := validation.ValidateBoatID(boatID); err != nil {
		return nil, err
	}
	return withChannel(ctx, r, raceID, true, func(ch *Channel) (*models.MRosterAck, error) {
		return ch.Join(ctx, boatID, displayName, nation)
	})
}

// Update routes a canonical record to its race. Invalid records never create a race.
func (r *Registry) Update(ctx context.Context, rec models.MUpdateRecord) (*models.MUpdateAck, error) {
	if err := validation.ValidateUpdate(rec); err != nil {
		metrics.UpdatesRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}
	return withChannel(ctx, r, rec.RaceID, true, func(ch *Channel) (*models.MUpdateAck, error) {
		return ch.Update(ctx, rec)
	})
}

// Subscribe registers sub on raceID and returns the channel handle for Unsubscribe.
func (r *Registry) Subscribe(ctx context.Context, raceID string, sub interfaces.ISubscriber) (*Channel, *models.MFleetView, error) {
	var handle *Channel
	view, err := withChannel(ctx, r, raceID, true, func(ch *Channel) (*models.MFleetView, error) {
		handle = ch
		return ch.Subscribe(ctx, sub)
	})
	if err != nil {
		return nil, nil, err
	}
	return handle, view, nil
}

// Snapshot returns the merged view of a known race.
func (r *Registry) Snapshot(ctx context.Context, raceID string) (*models.MFleetView, error) {
	return withChannel(ctx, r, raceID, false, func(ch *Channel) (*models.MFleetView, error) {
		return ch.Snapshot(ctx)
	})
}

// -----------------------------------------------------------------------------

// ListRaces returns the union of resident and persisted races, sorted.
func (r *Registry) ListRaces(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	r.mu.RLock()
	for id, ch := range r.channels {
		if !ch.Stopped() {
			seen[id] = struct{}{}
		}
	}
	r.mu.RUnlock()

	if r.opts.Store != nil {
		ids, err := r.opts.Store.ListRaceIDs(ctx)
		if err != nil {
			return nil, helpers.WrapPersistence("failed to list races", err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	races := make([]string, 0, len(seen))
	for id := range seen {
		races = append(races, id)
	}
	sort.Strings(races)
	return races, nil
}

// -----------------------------------------------------------------------------

// Evict stops the resident channel of raceID. Its state stays in the snapshot store.
// The channel leaves the map only after its loop has exited, so a concurrent
// resolve waits for the last persist instead of restoring an older snapshot.
func (r *Registry) Evict(raceID string) error {
	r.mu.RLock()
	ch, ok := r.channels[raceID]
	r.mu.RUnlock()

	if !ok || ch.Stopped() {
		return helpers.NewNotFound("race %s is not resident", raceID)
	}
	ch.Stop()

	r.mu.Lock()
	if current, ok := r.channels[raceID]; ok && current == ch {
		delete(r.channels, raceID)
		metrics.ActiveChannels.Dec()
	}
	r.mu.Unlock()

	r.logger.Info("Race channel %s evicted", raceID)
	return nil
}

// -----------------------------------------------------------------------------

// EvictIdle stops every channel without subscribers and without activity for the idle window.
// It returns the number of channels evicted.
func (r *Registry) EvictIdle(ctx context.Context) int {
	if r.idleEvict <= 0 {
		return 0
	}

	r.mu.RLock()
	candidates := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		candidates = append(candidates, ch)
	}
	r.mu.RUnlock()

	evicted := 0
	for _, ch := range candidates {
		stopped, err := ch.stopIfIdle(ctx, r.idleEvict)
		if err != nil || !stopped {
			continue
		}

		r.mu.Lock()
		if current, ok := r.channels[ch.RaceID()]; ok && current == ch {
			delete(r.channels, ch.RaceID())
			metrics.ActiveChannels.Dec()
			evicted++
		}
		r.mu.Unlock()
	}

	if evicted > 0 {
		r.logger.Info("Evicted %d idle race channels", evicted)
	}
	return evicted
}

// -----------------------------------------------------------------------------

// RunEviction sweeps idle channels until ctx is done.
func (r *Registry) RunEviction(ctx context.Context) {
	if r.idleEvict <= 0 {
		return
	}

	interval := r.idleEvict / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle(ctx)
		}
	}
}

// -----------------------------------------------------------------------------

// Close stops every channel and drains their track writers.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	channels := r.channels
	r.channels = make(map[string]*Channel)
	r.mu.Unlock()

	for _, ch := range channels {
		ch.Stop()
		metrics.ActiveChannels.Dec()
	}
	r.logger.Info("Race registry closed (%d channels stopped)", len(channels))
}
