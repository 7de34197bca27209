// Package replay rebuilds sampled fleet frames from the track log.
//
// Frames are taken every stepMs from the start of the window. For each boat a
// cursor only moves forward through that boat's points, so one replay is a
// single pass over the fetched points plus one step per frame and boat.
package replay

import (
	"context"
	"math"
	"sort"
	"time"

	"regatta-live/src/helpers"
	"regatta-live/src/interfaces"
	"regatta-live/src/logger"
	"regatta-live/src/metrics"
	"regatta-live/src/models"
)

const (
	MinHz      = 0.1
	MaxHz      = 10.0
	MinStepMs  = 50
	DefaultMax = 6 * time.Hour

	// MaxEpochMs is 9999-12-31T23:59:59.999Z; window bounds lie in [0, MaxEpochMs].
	MaxEpochMs = 253402300799999
)

// -----------------------------------------------------------------------------

type Engine struct {
	log       interfaces.ITrackLog
	logger    *logger.Logger
	maxWindow time.Duration
	defaultHz float64
}

// -----------------------------------------------------------------------------

// NewEngine creates a replay engine reading from log. maxWindow <= 0 uses six hours.
func NewEngine(log interfaces.ITrackLog, lg *logger.Logger, maxWindow time.Duration, defaultHz float64) *Engine {
	if maxWindow <= 0 {
		maxWindow = DefaultMax
	}
	if defaultHz <= 0 {
		defaultHz = 1
	}
	if lg == nil {
		lg = logger.Nop()
	}
	return &Engine{
		log:       log,
		logger:    lg,
		maxWindow: maxWindow,
		defaultHz: defaultHz,
	}
}

// -----------------------------------------------------------------------------

// ClampHz bounds hz to [0.1, 10]. Zero or a non-finite value selects fallback.
func ClampHz(hz, fallback float64) float64 {
	if hz == 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		hz = fallback
	}
	return math.Min(MaxHz, math.Max(MinHz, hz))
}

// StepMs converts a sample rate to the frame spacing, never below 50ms.
func StepMs(hz float64) int64 {
	step := int64(math.Round(1000 / hz))
	if step < MinStepMs {
		step = MinStepMs
	}
	return step
}

// -----------------------------------------------------------------------------

// Replay samples the fleet of q.RaceID between q.From and q.To inclusive.
// Windows wider than the configured maximum are clipped at From+max.
// The result is a pure function of the query and the stored points.
func (e *Engine) Replay(ctx context.Context, q models.MReplayQuery) (*models.MReplayResult, error) {
	start := time.Now()
	defer func() { metrics.ReplayDuration.Observe(time.Since(start).Seconds()) }()

	if q.RaceID == "" {
		return nil, helpers.NewInvalidInput("raceId is required")
	}
	if q.From < 0 || q.To > MaxEpochMs {
		return nil, helpers.NewInvalidInput("window [%d, %d] outside epoch range [0, %d]", q.From, q.To, int64(MaxEpochMs))
	}
	if q.From >= q.To {
		return nil, helpers.NewInvalidInput("from (%d) must be before to (%d)", q.From, q.To)
	}

	mode := q.Mode
	switch mode {
	case "":
		mode = models.ReplayModeSmooth
	case models.ReplayModeSmooth, models.ReplayModeStep:
	default:
		return nil, helpers.NewInvalidInput("unknown replay mode %q", q.Mode)
	}

	hz := ClampHz(q.Hz, e.defaultHz)
	stepMs := StepMs(hz)

	to := q.To
	clipped := false
	if maxMs := e.maxWindow.Milliseconds(); uint64(to)-uint64(q.From) > uint64(maxMs) {
		to = q.From + maxMs
		clipped = true
	}

	points, err := e.log.ListTrackPoints(ctx, q.RaceID, q.From, to)
	if err != nil {
		return nil, helpers.WrapPersistence("failed to read track log", err)
	}

	frames, err := sampleFrames(ctx, points, q.From, to, stepMs, mode == models.ReplayModeSmooth)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Replay %s [%d, %d] at %.2f Hz: %d points -> %d frames", q.RaceID, q.From, to, hz, len(points), len(frames))

	return &models.MReplayResult{
		RaceID:  q.RaceID,
		From:    q.From,
		To:      to,
		Hz:      hz,
		StepMs:  stepMs,
		Mode:    mode,
		Clipped: clipped,
		Frames:  frames,
	}, nil
}

// -----------------------------------------------------------------------------
// Sampling
// -----------------------------------------------------------------------------

// boatCursor walks one boat's points in time order.
// idx is the last point at or before the current frame, -1 before the first point.
type boatCursor struct {
	boatID string
	points []models.MTrackPoint
	idx    int
}

func (c *boatCursor) advance(ts int64) {
	for c.idx+1 < len(c.points) && c.points[c.idx+1].T <= ts {
		c.idx++
	}
}

// sample returns the boat position at ts. ok is false before the boat's first point.
func (c *boatCursor) sample(ts int64, smooth bool) (models.MReplayPoint, bool) {
	if c.idx < 0 {
		return models.MReplayPoint{}, false
	}

	prev := c.points[c.idx]
	if !smooth || prev.T == ts || c.idx+1 >= len(c.points) {
		return pointAt(prev), true
	}

	next := c.points[c.idx+1]
	return interpolate(prev, next, ts), true
}

// sampleFrames expects points ordered by t then boatId and from <= to.
func sampleFrames(ctx context.Context, points []models.MTrackPoint, from, to, stepMs int64, smooth bool) ([]models.MReplayFrame, error) {
	cursors := groupByBoat(points)

	frames := make([]models.MReplayFrame, 0, (to-from)/stepMs+1)
	for ts := from; ; ts += stepMs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame := models.MReplayFrame{T: ts, Boats: make([]models.MReplayPoint, 0, len(cursors))}
		for _, c := range cursors {
			c.advance(ts)
			if p, ok := c.sample(ts, smooth); ok {
				frame.Boats = append(frame.Boats, p)
			}
		}
		frames = append(frames, frame)

		// to-ts never overflows inside a window, ts+stepMs might
		if to-ts < stepMs {
			break
		}
	}
	return frames, nil
}

// groupByBoat splits points per boat keeping their order; cursors are sorted by boat id.
func groupByBoat(points []models.MTrackPoint) []*boatCursor {
	byBoat := make(map[string]*boatCursor)
	for _, p := range points {
		c, ok := byBoat[p.BoatID]
		if !ok {
			c = &boatCursor{boatID: p.BoatID, idx: -1}
			byBoat[p.BoatID] = c
		}
		c.points = append(c.points, p)
	}

	cursors := make([]*boatCursor, 0, len(byBoat))
	for _, c := range byBoat {
		cursors = append(cursors, c)
	}
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].boatID < cursors[j].boatID })
	return cursors
}

// -----------------------------------------------------------------------------

func pointAt(p models.MTrackPoint) models.MReplayPoint {
	return models.MReplayPoint{
		BoatID:  p.BoatID,
		Name:    p.Name,
		Lat:     p.Lat,
		Lon:     p.Lon,
		SOG:     models.CloneFloat(p.SOG),
		COG:     models.CloneFloat(p.COG),
		SourceT: p.T,
	}
}

// interpolate blends a and b linearly at ts, a.T < ts < b.T.
// Optional values missing on either side carry a's value forward.
func interpolate(a, b models.MTrackPoint, ts int64) models.MReplayPoint {
	frac := float64(ts-a.T) / float64(b.T-a.T)

	out := pointAt(a)
	out.Lat = lerp(a.Lat, b.Lat, frac)
	out.Lon = lerp(a.Lon, b.Lon, frac)
	out.Interpolated = true

	if a.SOG != nil && b.SOG != nil {
		v := lerp(*a.SOG, *b.SOG, frac)
		out.SOG = &v
	}
	if a.COG != nil && b.COG != nil {
		v := lerpAngle(*a.COG, *b.COG, frac)
		out.COG = &v
	}
	return out
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}

// lerpAngle interpolates headings in degrees along the shorter arc, result in [0, 360).
func lerpAngle(a, b, frac float64) float64 {
	delta := math.Mod(b-a, 360)
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	v := math.Mod(a+delta*frac, 360)
	if v < 0 {
		v += 360
	}
	return v
}
