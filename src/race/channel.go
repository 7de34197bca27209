// Package race holds the authoritative live state of each race.
//
// A Channel is an actor: one goroutine owns the roster, the telemetry cache and
// the subscriber set of a single race and executes every operation in the order
// it was received. Snapshot writes happen inside that loop, so two mutations on
// the same race never interleave their persistence. Different races run on
// different goroutines and share nothing.
package race

import (
	"context"
	"errors"
	"sync"
	"time"

	"regatta-live/src/helpers"
	"regatta-live/src/interfaces"
	"regatta-live/src/logger"
	"regatta-live/src/metrics"
	"regatta-live/src/models"
	"regatta-live/src/validation"
)

// ErrChannelStopped is returned by operations issued after a channel was evicted or closed.
var ErrChannelStopped = errors.New("race channel stopped")

// persistTimeout bounds a snapshot write once the caller may have gone away.
const persistTimeout = 5 * time.Second

// Options configures the channels created by a Registry.
type Options struct {
	Store          interfaces.ISnapshotStore
	TrackLog       interfaces.ITrackLog
	Logger         *logger.Logger
	Clock          func() time.Time
	StaleAfterMs   int64
	TrackQueueSize int
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.StaleAfterMs <= 0 {
		o.StaleAfterMs = DefaultStaleAfterMs
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return o
}

// -----------------------------------------------------------------------------
// Channel
// -----------------------------------------------------------------------------

type Channel struct {
	raceID string
	opts   Options
	logger *logger.Logger

	// Owned by the run loop
	roster       map[string]models.MRosterEntry
	telemetry    map[string]models.MTelemetrySample
	subscribers  map[interfaces.ISubscriber]struct{}
	lastActivity time.Time
	stopping     bool

	inbox    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	tracks   *trackWriter
}

// -----------------------------------------------------------------------------

// NewChannel starts a channel for raceID restored from snapshot (nil for a fresh race).
func NewChannel(raceID string, opts Options, snapshot *models.MRaceSnapshot) *Channel {
	opts = opts.withDefaults()
	roster, telemetry := importSnapshot(snapshot)

	c := &Channel{
		raceID:       raceID,
		opts:         opts,
		logger:       opts.Logger.With("race_id", raceID),
		roster:       roster,
		telemetry:    telemetry,
		subscribers:  make(map[interfaces.ISubscriber]struct{}),
		lastActivity: opts.Clock(),
		inbox:        make(chan func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if opts.TrackLog != nil {
		c.tracks = newTrackWriter(opts.TrackLog, c.logger, opts.TrackQueueSize)
	}

	go c.run()
	return c
}

// RaceID returns the race this channel serves.
func (c *Channel) RaceID() string {
	return c.raceID
}

// -----------------------------------------------------------------------------
// Run loop
// -----------------------------------------------------------------------------

func (c *Channel) run() {
	defer close(c.done)

	for {
		select {
		case fn := <-c.inbox:
			fn()
			if c.stopping {
				c.shutdown()
				return
			}
		case <-c.quit:
			c.shutdown()
			return
		}
	}
}

func (c *Channel) shutdown() {
	metrics.Subscribers.Sub(float64(len(c.subscribers)))
	for sub := range c.subscribers {
		if closer, ok := sub.(interfaces.IClosableSubscriber); ok {
			closer.Close()
		}
	}
	c.subscribers = make(map[interfaces.ISubscriber]struct{})
	if c.tracks != nil {
		c.tracks.close()
	}
	c.logger.Debug("Race channel stopped")
}

// submit hands fn to the run loop. Once accepted, fn always runs to completion.
func (c *Channel) submit(ctx context.Context, fn func()) error {
	select {
	case c.inbox <- fn:
		return nil
	case <-c.done:
		return ErrChannelStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the loop after the operation in progress and drains the track writer.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

// Stopped reports whether the run loop has exited.
func (c *Channel) Stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

type joinResult struct {
	size int
	err  error
}

// Join registers or renames a competitor and broadcasts the full fleet state.
// An existing entry keeps its original joinedAt; telemetry is untouched.
// On a PersistenceError the ack is returned too, since the join was applied.
func (c *Channel) Join(ctx context.Context, boatID, displayName, nation string) (*models.MRosterAck, error) {
	if err := validation.ValidateBoatID(boatID); err != nil {
		return nil, err
	}

	reply := make(chan joinResult, 1)
	if err := c.submit(ctx, func() {
		size, err := c.applyJoin(ctx, boatID, displayName, nation)
		reply <- joinResult{size: size, err: err}
	}); err != nil {
		return nil, err
	}

	res := <-reply
	ack := &models.MRosterAck{RaceID: c.raceID, BoatID: boatID, RosterSize: res.size}
	return ack, res.err
}

func (c *Channel) applyJoin(ctx context.Context, boatID, displayName, nation string) (int, error) {
	now := c.opts.Clock()
	nowMs := now.UnixMilli()

	entry, ok := c.roster[boatID]
	if !ok {
		entry = models.MRosterEntry{BoatID: boatID, JoinedAt: nowMs}
	}
	if displayName != "" {
		entry.DisplayName = displayName
	} else if entry.DisplayName == "" {
		entry.DisplayName = boatID
	}
	if nation != "" {
		entry.Nation = nation
	}
	c.roster[boatID] = entry
	c.lastActivity = now

	view := fleetView(c.raceID, c.roster, c.telemetry, nowMs, c.opts.StaleAfterMs)
	c.broadcast(models.FullStateEvent(view))

	return len(c.roster), c.persist(ctx)
}

// -----------------------------------------------------------------------------

type updateResult struct {
	ack *models.MUpdateAck
	err error
}

// Update applies one canonical position report. The cached sample is replaced
// even when rec.T is older than the cached one. As with Join, a PersistenceError
// comes with the ack of the applied update.
func (c *Channel) Update(ctx context.Context, rec models.MUpdateRecord) (*models.MUpdateAck, error) {
	if err := validation.ValidateUpdate(rec); err != nil {
		metrics.UpdatesRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if rec.RaceID != c.raceID {
		metrics.UpdatesRejected.WithLabelValues("invalid").Inc()
		return nil, helpers.NewInvalidInput("record for race %q sent to race %q", rec.RaceID, c.raceID)
	}

	reply := make(chan updateResult, 1)
	if err := c.submit(ctx, func() {
		ack, err := c.applyUpdate(ctx, rec)
		reply <- updateResult{ack: ack, err: err}
	}); err != nil {
		return nil, err
	}

	res := <-reply
	return res.ack, res.err
}

func (c *Channel) applyUpdate(ctx context.Context, rec models.MUpdateRecord) (*models.MUpdateAck, error) {
	now := c.opts.Clock()
	nowMs := now.UnixMilli()

	entry, ok := c.roster[rec.BoatID]
	if !ok {
		entry = models.MRosterEntry{BoatID: rec.BoatID, DisplayName: rec.BoatID, JoinedAt: nowMs}
	}
	if rec.DisplayName != "" {
		entry.DisplayName = rec.DisplayName
	}
	seen := rec.T
	entry.LastSeenAt = &seen

	sample := rec.Sample()
	c.roster[rec.BoatID] = entry
	c.telemetry[rec.BoatID] = sample
	c.lastActivity = now
	metrics.UpdatesAccepted.Inc()

	if c.tracks != nil {
		c.tracks.enqueue(rec.TrackPoint(entry.DisplayName))
	}

	view := boatView(entry, &sample, nowMs, c.opts.StaleAfterMs)
	c.broadcast(&models.MFleetEvent{
		Type:   models.EventIncremental,
		RaceID: c.raceID,
		Now:    nowMs,
		BoatID: rec.BoatID,
		Boat:   &view,
	})

	ack := &models.MUpdateAck{RaceID: c.raceID, BoatID: rec.BoatID, T: rec.T, Live: view.Live}
	return ack, c.persist(ctx)
}

// -----------------------------------------------------------------------------

type subscribeResult struct {
	view *models.MFleetView
	err  error
}

// Subscribe registers sub and sends it the current full state before any later event.
// The returned view is the same state.
func (c *Channel) Subscribe(ctx context.Context, sub interfaces.ISubscriber) (*models.MFleetView, error) {
	reply := make(chan subscribeResult, 1)
	if err := c.submit(ctx, func() {
		view, err := c.applySubscribe(sub)
		reply <- subscribeResult{view: view, err: err}
	}); err != nil {
		return nil, err
	}

	res := <-reply
	return res.view, res.err
}

func (c *Channel) applySubscribe(sub interfaces.ISubscriber) (*models.MFleetView, error) {
	now := c.opts.Clock()
	nowMs := now.UnixMilli()
	view := fleetView(c.raceID, c.roster, c.telemetry, nowMs, c.opts.StaleAfterMs)

	if err := sub.Send(models.FullStateEvent(view)); err != nil {
		return nil, helpers.WrapTransport("initial state send failed", err)
	}

	if _, exists := c.subscribers[sub]; !exists {
		c.subscribers[sub] = struct{}{}
		metrics.Subscribers.Inc()
	}
	c.lastActivity = now
	c.logger.Debug("Subscriber registered (%d total)", len(c.subscribers))
	return view, nil
}

// -----------------------------------------------------------------------------

// Resend delivers the current full state to a registered subscriber from inside
// the run loop, so it stays ordered with the increments around it. A failed
// send drops the subscriber like a failed broadcast.
func (c *Channel) Resend(ctx context.Context, sub interfaces.ISubscriber) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, func() {
		reply <- c.applyResend(sub)
	}); err != nil {
		return err
	}
	return <-reply
}

func (c *Channel) applyResend(sub interfaces.ISubscriber) error {
	if _, ok := c.subscribers[sub]; !ok {
		return helpers.NewNotFound("subscriber is not registered on race %s", c.raceID)
	}

	view := fleetView(c.raceID, c.roster, c.telemetry, c.opts.Clock().UnixMilli(), c.opts.StaleAfterMs)
	if err := sub.Send(models.FullStateEvent(view)); err != nil {
		c.removeSubscriber(sub)
		metrics.SubscriberDrops.Inc()
		return helpers.WrapTransport("state resend failed", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Unsubscribe removes sub. Removing an unknown subscriber, or unsubscribing
// from a stopped channel, is not an error.
func (c *Channel) Unsubscribe(ctx context.Context, sub interfaces.ISubscriber) error {
	reply := make(chan struct{}, 1)
	err := c.submit(ctx, func() {
		c.removeSubscriber(sub)
		reply <- struct{}{}
	})
	if errors.Is(err, ErrChannelStopped) {
		return nil
	}
	if err != nil {
		return err
	}

	<-reply
	return nil
}

func (c *Channel) removeSubscriber(sub interfaces.ISubscriber) {
	if _, ok := c.subscribers[sub]; !ok {
		return
	}
	delete(c.subscribers, sub)
	metrics.Subscribers.Dec()
}

// -----------------------------------------------------------------------------

// Snapshot returns the current merged view without changing anything.
func (c *Channel) Snapshot(ctx context.Context) (*models.MFleetView, error) {
	reply := make(chan *models.MFleetView, 1)
	if err := c.submit(ctx, func() {
		reply <- fleetView(c.raceID, c.roster, c.telemetry, c.opts.Clock().UnixMilli(), c.opts.StaleAfterMs)
	}); err != nil {
		return nil, err
	}
	return <-reply, nil
}

// -----------------------------------------------------------------------------

// SubscriberCount returns the number of registered subscribers.
func (c *Channel) SubscriberCount(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := c.submit(ctx, func() {
		reply <- len(c.subscribers)
	}); err != nil {
		return 0, err
	}
	return <-reply, nil
}

// -----------------------------------------------------------------------------

// stopIfIdle stops the channel when it has no subscribers and no activity for idleFor.
// It reports whether the channel stopped.
func (c *Channel) stopIfIdle(ctx context.Context, idleFor time.Duration) (bool, error) {
	reply := make(chan bool, 1)
	if err := c.submit(ctx, func() {
		idle := len(c.subscribers) == 0 && c.opts.Clock().Sub(c.lastActivity) >= idleFor
		if idle {
			c.stopping = true
		}
		reply <- idle
	}); err != nil {
		if errors.Is(err, ErrChannelStopped) {
			return true, nil
		}
		return false, err
	}

	stopped := <-reply
	if stopped {
		<-c.done
	}
	return stopped, nil
}

// -----------------------------------------------------------------------------
// Internals (run loop only)
// -----------------------------------------------------------------------------

// broadcast sends event to every subscriber. A failed send drops that subscriber only.
func (c *Channel) broadcast(event *models.MFleetEvent) {
	if len(c.subscribers) == 0 {
		return
	}

	targets := make([]interfaces.ISubscriber, 0, len(c.subscribers))
	for sub := range c.subscribers {
		targets = append(targets, sub)
	}

	for _, sub := range targets {
		if err := sub.Send(event); err != nil {
			c.removeSubscriber(sub)
			metrics.SubscriberDrops.Inc()
			c.logger.Warning("Dropping subscriber after failed send: %v", helpers.WrapTransport("send failed", err))
		}
	}
}

// persist writes the full roster and telemetry. In-memory state and sent
// broadcasts stay applied when the write fails. The write outlives a cancelled
// caller: the mutation is already visible, so the store must catch up with it.
func (c *Channel) persist(ctx context.Context) error {
	if c.opts.Store == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.opts.Store.SaveSnapshot(ctx, c.raceID, exportSnapshot(c.roster, c.telemetry)); err != nil {
		metrics.PersistenceFailures.Inc()
		c.logger.Error("Snapshot persist failed: %v", err)
		return helpers.WrapPersistence("snapshot persist failed", err)
	}
	return nil
}
