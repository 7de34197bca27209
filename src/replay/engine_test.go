package replay

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"regatta-live/src/helpers"
	"regatta-live/src/models"
	"regatta-live/src/storage"

	"github.com/goccy/go-json"
)

func seed(t *testing.T, points ...models.MTrackPoint) *storage.MemoryDB {
	t.Helper()
	db := storage.NewMemoryDB()
	if err := db.AppendTrackPoints(context.Background(), points); err != nil {
		t.Fatal(err)
	}
	return db
}

func pt(boat string, ts int64, lat, lon float64) models.MTrackPoint {
	return models.MTrackPoint{RaceID: "R1", BoatID: boat, T: ts, Lat: lat, Lon: lon}
}

func frameAt(t *testing.T, res *models.MReplayResult, ts int64) models.MReplayFrame {
	t.Helper()
	for _, f := range res.Frames {
		if f.T == ts {
			return f
		}
	}
	t.Fatalf("no frame at t=%d", ts)
	return models.MReplayFrame{}
}

func boatIn(f models.MReplayFrame, boat string) (models.MReplayPoint, bool) {
	for _, p := range f.Boats {
		if p.BoatID == boat {
			return p, true
		}
	}
	return models.MReplayPoint{}, false
}

// -----------------------------------------------------------------------------

func TestReplayMidpointInterpolation(t *testing.T) {
	db := seed(t, pt("B1", 0, 0, 0), pt("B1", 4000, 4, 4))
	engine := NewEngine(db, nil, 0, 1)

	res, err := engine.Replay(context.Background(), models.MReplayQuery{RaceID: "R1", From: 0, To: 4000, Hz: 1})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.StepMs != 1000 || len(res.Frames) != 5 {
		t.Fatalf("stepMs=%d frames=%d, want 1000 and 5", res.StepMs, len(res.Frames))
	}

	p, ok := boatIn(frameAt(t, res, 2000), "B1")
	if !ok {
		t.Fatal("B1 missing at t=2000")
	}
	if p.Lat != 2 || p.Lon != 2 || !p.Interpolated {
		t.Errorf("B1 at 2000 = (%v, %v) interpolated=%t, want (2, 2) interpolated", p.Lat, p.Lon, p.Interpolated)
	}

	last, _ := boatIn(frameAt(t, res, 4000), "B1")
	if last.Lat != 4 || last.Interpolated {
		t.Errorf("frame on an exact point = %+v", last)
	}
}

func TestReplayBoatAppearsAtFirstPoint(t *testing.T) {
	db := seed(t,
		pt("B1", 0, 1, 1),
		pt("B2", 5000, 9, 9),
		pt("B2", 9000, 13, 13),
	)
	engine := NewEngine(db, nil, 0, 1)

	res, err := engine.Replay(context.Background(), models.MReplayQuery{RaceID: "R1", From: 0, To: 10_000, Hz: 1})
	if err != nil {
		t.Fatal(err)
	}

	for _, f := range res.Frames {
		p, ok := boatIn(f, "B2")
		switch {
		case f.T < 5000 && ok:
			t.Errorf("B2 present at t=%d before its first point", f.T)
		case f.T == 5000:
			if !ok || p.Lat != 9 || p.Interpolated {
				t.Errorf("B2 at its first point = %+v present=%t", p, ok)
			}
		case f.T > 9000:
			if !ok || p.Lat != 13 || p.Interpolated {
				t.Errorf("B2 after its last point should hold it, got %+v", p)
			}
		}
	}

	// B1 has a single point and is carried to the end of the window
	if p, ok := boatIn(frameAt(t, res, 10_000), "B1"); !ok || p.Lat != 1 || p.SourceT != 0 {
		t.Errorf("B1 at end = %+v present=%t", p, ok)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	db := seed(t,
		pt("B2", 0, 0, 0), pt("B1", 0, 5, 5),
		pt("B1", 3000, 6, 7), pt("B2", 3500, 1, 1),
		pt("B1", 8000, 9, 9),
	)
	engine := NewEngine(db, nil, 0, 1)
	q := models.MReplayQuery{RaceID: "R1", From: 0, To: 9000, Hz: 3}

	encode := func() []byte {
		res, err := engine.Replay(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		raw, err := json.Marshal(res.Frames)
		if err != nil {
			t.Fatal(err)
		}
		return raw
	}

	if first, second := encode(), encode(); !bytes.Equal(first, second) {
		t.Error("two replays of the same window differ")
	}
}

func TestReplayFrameBoatsSortedByID(t *testing.T) {
	db := seed(t, pt("zeta", 0, 0, 0), pt("alpha", 0, 0, 0), pt("mike", 0, 0, 0))
	engine := NewEngine(db, nil, 0, 1)

	res, err := engine.Replay(context.Background(), models.MReplayQuery{RaceID: "R1", From: 0, To: 1000})
	if err != nil {
		t.Fatal(err)
	}
	got := res.Frames[0].Boats
	if len(got) != 3 || got[0].BoatID != "alpha" || got[1].BoatID != "mike" || got[2].BoatID != "zeta" {
		t.Errorf("boat order = %+v", got)
	}
}

func TestReplayStepMode(t *testing.T) {
	db := seed(t, pt("B1", 0, 0, 0), pt("B1", 4000, 4, 4))
	engine := NewEngine(db, nil, 0, 1)

	res, err := engine.Replay(context.Background(), models.MReplayQuery{RaceID: "R1", From: 0, To: 4000, Hz: 1, Mode: models.ReplayModeStep})
	if err != nil {
		t.Fatal(err)
	}
	if p, _ := boatIn(frameAt(t, res, 3000), "B1"); p.Lat != 0 || p.Interpolated {
		t.Errorf("step mode at 3000 = %+v, want the t=0 point held", p)
	}
	if res.Mode != models.ReplayModeStep {
		t.Errorf("mode = %s", res.Mode)
	}
}

func TestReplayInterpolatesMotion(t *testing.T) {
	a := pt("B1", 0, 0, 0)
	a.SOG, a.COG = models.Float(4), models.Float(350)
	b := pt("B1", 2000, 0, 0)
	b.SOG, b.COG = models.Float(8), models.Float(10)
	c := pt("B1", 4000, 0, 0)
	c.COG = models.Float(20)

	engine := NewEngine(seed(t, a, b, c), nil, 0, 1)
	res, err := engine.Replay(context.Background(), models.MReplayQuery{RaceID: "R1", From: 0, To: 4000, Hz: 1})
	if err != nil {
		t.Fatal(err)
	}

	p, _ := boatIn(frameAt(t, res, 1000), "B1")
	if p.SOG == nil || *p.SOG != 6 {
		t.Errorf("sog = %v, want 6", p.SOG)
	}
	if p.COG == nil || math.Abs(*p.COG) > 1e-9 {
		t.Errorf("cog across north = %v, want 0", p.COG)
	}

	// c has no sog, so the earlier value is held
	p, _ = boatIn(frameAt(t, res, 3000), "B1")
	if p.SOG == nil || *p.SOG != 8 {
		t.Errorf("sog with missing end = %v, want 8", p.SOG)
	}
	if p.COG == nil || math.Abs(*p.COG-15) > 1e-9 {
		t.Errorf("cog = %v, want 15", p.COG)
	}
}

func TestReplayClipsLongWindow(t *testing.T) {
	db := seed(t, pt("B1", 0, 0, 0), pt("B1", 90_000, 1, 1))
	engine := NewEngine(db, nil, time.Minute, 1)

	res, err := engine.Replay(context.Background(), models.MReplayQuery{RaceID: "R1", From: 0, To: 120_000, Hz: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Clipped || res.To != 60_000 {
		t.Errorf("clipped=%t to=%d, want window cut at 60000", res.Clipped, res.To)
	}
	if n := len(res.Frames); n != 61 {
		t.Errorf("frames = %d, want 61", n)
	}
	if last := res.Frames[len(res.Frames)-1]; last.T != 60_000 {
		t.Errorf("last frame at %d", last.T)
	}
}

func TestReplayClipsWidestWindow(t *testing.T) {
	engine := NewEngine(seed(t, pt("B1", 0, 0, 0)), nil, time.Minute, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := engine.Replay(ctx, models.MReplayQuery{RaceID: "R1", From: 0, To: MaxEpochMs, Hz: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Clipped || res.To != 60_000 || len(res.Frames) != 61 {
		t.Errorf("clipped=%t to=%d frames=%d, want 61 frames up to 60000", res.Clipped, res.To, len(res.Frames))
	}
}

func TestSampleFramesStopsBeforeOverflow(t *testing.T) {
	to := int64(math.MaxInt64)
	frames, err := sampleFrames(context.Background(), nil, to-2500, to, 1000, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if last := frames[2].T; last != to-500 {
		t.Errorf("last frame at %d, want %d", last, to-500)
	}
}

func TestReplayRejectsBadQueries(t *testing.T) {
	engine := NewEngine(storage.NewMemoryDB(), nil, 0, 1)
	ctx := context.Background()

	cases := map[string]models.MReplayQuery{
		"empty race":   {From: 0, To: 10},
		"inverted":     {RaceID: "R1", From: 10, To: 0},
		"empty window": {RaceID: "R1", From: 10, To: 10},
		"unknown mode": {RaceID: "R1", From: 0, To: 10, Mode: "cubic"},
		"before epoch": {RaceID: "R1", From: -1, To: 10},
		"past range":   {RaceID: "R1", From: 0, To: MaxEpochMs + 1},
		"int64 limits": {RaceID: "R1", From: math.MinInt64 + 1, To: math.MaxInt64},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := engine.Replay(ctx, q); !helpers.IsInvalidInput(err) {
				t.Errorf("err = %v, want InvalidInput", err)
			}
		})
	}
}

type brokenLog struct{}

func (brokenLog) AppendTrackPoints(context.Context, []models.MTrackPoint) error { return nil }

func (brokenLog) ListTrackPoints(context.Context, string, int64, int64) ([]models.MTrackPoint, error) {
	return nil, errors.New("connection refused")
}

func TestReplayStoreFailure(t *testing.T) {
	engine := NewEngine(brokenLog{}, nil, 0, 1)
	res, err := engine.Replay(context.Background(), models.MReplayQuery{RaceID: "R1", From: 0, To: 1000})
	if !helpers.IsPersistence(err) || res != nil {
		t.Errorf("res=%v err=%v, want PersistenceError and no output", res, err)
	}
}

func TestReplayHonoursCancellation(t *testing.T) {
	engine := NewEngine(seed(t, pt("B1", 0, 0, 0)), nil, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Replay(ctx, models.MReplayQuery{RaceID: "R1", From: 0, To: 1000}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestClampHzAndStep(t *testing.T) {
	cases := []struct {
		hz, fallback float64
		wantHz       float64
		wantStep     int64
	}{
		{hz: 1, fallback: 1, wantHz: 1, wantStep: 1000},
		{hz: 0, fallback: 2, wantHz: 2, wantStep: 500},
		{hz: 0.01, fallback: 1, wantHz: 0.1, wantStep: 10_000},
		{hz: 50, fallback: 1, wantHz: 10, wantStep: 100},
		{hz: -3, fallback: 1, wantHz: 0.1, wantStep: 10_000},
		{hz: 3, fallback: 1, wantHz: 3, wantStep: 333},
		{hz: math.NaN(), fallback: 4, wantHz: 4, wantStep: 250},
	}
	for _, tc := range cases {
		hz := ClampHz(tc.hz, tc.fallback)
		if hz != tc.wantHz {
			t.Errorf("ClampHz(%v, %v) = %v, want %v", tc.hz, tc.fallback, hz, tc.wantHz)
		}
		if step := StepMs(hz); step != tc.wantStep {
			t.Errorf("StepMs(%v) = %d, want %d", hz, step, tc.wantStep)
		}
	}

	if step := StepMs(40); step != MinStepMs {
		t.Errorf("StepMs(40) = %d, want floor %d", step, MinStepMs)
	}
}

func TestLerpAngle(t *testing.T) {
	cases := []struct{ a, b, frac, want float64 }{
		{a: 10, b: 30, frac: 0.5, want: 20},
		{a: 350, b: 10, frac: 0.5, want: 0},
		{a: 10, b: 350, frac: 0.25, want: 5},
		{a: 90, b: 270, frac: 0.5, want: 180},
	}
	for _, tc := range cases {
		if got := lerpAngle(tc.a, tc.b, tc.frac); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("lerpAngle(%v, %v, %v) = %v, want %v", tc.a, tc.b, tc.frac, got, tc.want)
		}
	}
}
