package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"regatta-live/src/logger"
	"regatta-live/src/models"
	"regatta-live/src/race"
	"regatta-live/src/replay"
	"regatta-live/src/storage"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type testGateway struct {
	srv      *APIServer
	registry *race.Registry
	db       *storage.MemoryDB
	http     *httptest.Server
}

func newTestGateway(t *testing.T, ingest models.MIngestConfig) *testGateway {
	t.Helper()

	cfg := &models.MConfig{
		Name:     "regatta-test",
		Host:     "127.0.0.1",
		Port:     8090,
		LogLevel: "ERROR",
		Tracking: models.MTrackingConfig{SubscriberBuffer: 16},
		Ingest:   ingest,
	}
	db := storage.NewMemoryDB()
	registry := race.NewRegistry(race.Options{Store: db, TrackLog: db}, 0)
	engine := replay.NewEngine(db, logger.Nop(), time.Hour, 1)

	gw := &testGateway{
		srv:      NewAPIServer(cfg, logger.Nop(), registry, engine),
		registry: registry,
		db:       db,
	}
	gw.http = httptest.NewServer(gw.srv.Handler())
	t.Cleanup(func() {
		gw.http.Close()
		registry.Close()
	})
	return gw
}

func (g *testGateway) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	g.srv.Handler().ServeHTTP(rec, req)
	return rec.Result(), rec.Body.Bytes()
}

func ingestBody(raceID, boatID string, lat, lon float64, ts int64) map[string]interface{} {
	return map[string]interface{}{"raceId": raceID, "boatId": boatID, "lat": lat, "lon": lon, "t": ts}
}

// -----------------------------------------------------------------------------

func TestIngestAndSnapshot(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})
	now := time.Now().UnixMilli()

	resp, body := gw.do(t, http.MethodPost, "/api/ingest", ingestBody("R1", "B1", 0, 0, now), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status %d: %s", resp.StatusCode, body)
	}
	var ack models.MUpdateAck
	if err := json.Unmarshal(body, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.BoatID != "B1" || !ack.Live {
		t.Errorf("ack = %+v", ack)
	}

	resp, body = gw.do(t, http.MethodGet, "/api/races/R1/snapshot", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status %d: %s", resp.StatusCode, body)
	}
	var view models.MFleetView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	// Zero coordinates are valid positions
	if len(view.Boats) != 1 || view.Boats[0].Lat == nil || *view.Boats[0].Lat != 0 {
		t.Errorf("view = %s", body)
	}
}

func TestIngestRejectsBadPayloads(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})

	cases := map[string]interface{}{
		"missing lat":  map[string]interface{}{"raceId": "R1", "boatId": "B1", "lon": 1, "t": 1},
		"missing t":    map[string]interface{}{"raceId": "R1", "boatId": "B1", "lat": 1, "lon": 1},
		"lat too high": ingestBody("R1", "B1", 95, 0, 1),
		"not json":     "lat=1",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, raw := gw.do(t, http.MethodPost, "/api/ingest", body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status %d: %s", resp.StatusCode, raw)
			}
		})
	}

	races, err := gw.registry.ListRaces(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range races {
		view, err := gw.registry.Snapshot(context.Background(), id)
		if err == nil && len(view.Boats) > 0 {
			t.Errorf("rejected payload reached race %s", id)
		}
	}
}

func TestIngestKeyRequired(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{SharedKey: "s3cret"})
	body := ingestBody("R1", "B1", 1, 1, 1)

	if resp, _ := gw.do(t, http.MethodPost, "/api/ingest", body, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status %d", resp.StatusCode)
	}
	if resp, _ := gw.do(t, http.MethodPost, "/api/ingest", body, map[string]string{ingestKeyHeader: "wrong"}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status %d", resp.StatusCode)
	}
	if resp, _ := gw.do(t, http.MethodPost, "/api/ingest", body, map[string]string{ingestKeyHeader: "s3cret"}); resp.StatusCode != http.StatusOK {
		t.Errorf("right key: status %d", resp.StatusCode)
	}
	// Reads stay open
	if resp, _ := gw.do(t, http.MethodGet, "/api/races", nil, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("list races: status %d", resp.StatusCode)
	}
}

func TestIngestThrottled(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{RatePerSecond: 0.001, Burst: 2})

	codes := make([]int, 0, 3)
	for i := int64(1); i <= 3; i++ {
		resp, _ := gw.do(t, http.MethodPost, "/api/ingest", ingestBody("R1", "B1", 1, 1, i), nil)
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestJoinAndListRaces(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})

	join := map[string]string{"boatId": "B7", "displayName": "Seven", "nation": "ITA"}
	resp, body := gw.do(t, http.MethodPost, "/api/races/R2/join", join, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status %d: %s", resp.StatusCode, body)
	}
	var ack models.MRosterAck
	if err := json.Unmarshal(body, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.RosterSize != 1 {
		t.Errorf("ack = %+v", ack)
	}

	if resp, _ := gw.do(t, http.MethodPost, "/api/races/R2/join", map[string]string{}, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("join without boat: status %d", resp.StatusCode)
	}

	_, body = gw.do(t, http.MethodGet, "/api/races", nil, nil)
	var list struct {
		Races []string `json:"races"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Races) != 1 || list.Races[0] != "R2" {
		t.Errorf("races = %v", list.Races)
	}
}

func TestSnapshotUnknownRace(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})
	if resp, _ := gw.do(t, http.MethodGet, "/api/races/ghost/snapshot", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}

func TestReplayEndpoint(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})
	ctx := context.Background()

	points := []models.MTrackPoint{
		{RaceID: "R1", BoatID: "B1", T: 0, Lat: 0, Lon: 0},
		{RaceID: "R1", BoatID: "B1", T: 4000, Lat: 4, Lon: 4},
	}
	if err := gw.db.AppendTrackPoints(ctx, points); err != nil {
		t.Fatal(err)
	}

	resp, body := gw.do(t, http.MethodGet, "/api/races/R1/replay?from=0&to=4000&hz=1", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var res models.MReplayResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Frames) != 5 || res.Frames[2].Boats[0].Lat != 2 {
		t.Errorf("replay = %s", body)
	}

	for _, q := range []string{"from=0", "from=x&to=1", "from=0&to=10&hz=fast", "from=10&to=0", "from=0&to=10&mode=cubic", "from=-9223372036854775807&to=9223372036854775807"} {
		if resp, _ := gw.do(t, http.MethodGet, "/api/races/R1/replay?"+q, nil, nil); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})

	if resp, body := gw.do(t, http.MethodGet, "/api/health", nil, nil); resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Errorf("health %d: %s", resp.StatusCode, body)
	}

	gw.do(t, http.MethodPost, "/api/ingest", ingestBody("R1", "B1", 1, 1, 1), nil)
	resp, body := gw.do(t, http.MethodGet, "/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "regatta_updates_accepted_total") {
		t.Errorf("metrics %d missing counters", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/api/ingest", nil)
	req.Header.Set("Origin", "https://viewer.example")
	rec := httptest.NewRecorder()
	gw.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://viewer.example" {
		t.Errorf("allow origin = %q", got)
	}
}

// -----------------------------------------------------------------------------
// WebSocket
// -----------------------------------------------------------------------------

func dialRace(t *testing.T, gw *testGateway, raceID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(gw.http.URL, "http") + "/ws/races/" + raceID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.MFleetEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.MFleetEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestWebSocketFullStateThenIncremental(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})
	ctx := context.Background()

	now := time.Now().UnixMilli()
	if _, err := gw.registry.Update(ctx, models.MUpdateRecord{RaceID: "R1", BoatID: "B1", Lat: 1, Lon: 1, T: now}); err != nil {
		t.Fatal(err)
	}

	conn := dialRace(t, gw, "R1")
	first := readEvent(t, conn)
	if first.Type != models.EventFullState || len(first.Boats) != 1 || first.Boats[0].BoatID != "B1" {
		t.Fatalf("first event = %+v", first)
	}

	if _, err := gw.registry.Update(ctx, models.MUpdateRecord{RaceID: "R1", BoatID: "B2", Lat: 2, Lon: 2, T: now}); err != nil {
		t.Fatal(err)
	}
	next := readEvent(t, conn)
	if next.Type != models.EventIncremental || next.BoatID != "B2" || next.Boat == nil || *next.Boat.Lat != 2 {
		t.Errorf("incremental event = %+v", next)
	}

	// Viewer asks for a fresh full state
	if err := conn.WriteJSON(models.MClientCommand{Command: models.CommandSnapshot}); err != nil {
		t.Fatal(err)
	}
	refreshed := readEvent(t, conn)
	if refreshed.Type != models.EventFullState || len(refreshed.Boats) != 2 {
		t.Errorf("snapshot command reply = %+v", refreshed)
	}
}

func TestWebSocketDisconnectUnsubscribes(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})
	ctx := context.Background()

	conn := dialRace(t, gw, "R1")
	readEvent(t, conn)

	ch, err := gw.registry.Resolve(ctx, "R1")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := ch.SubscriberCount(ctx); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := ch.SubscriberCount(ctx); n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("subscriber still registered after the viewer disconnected")
}

func TestWebSocketClosedOnEviction(t *testing.T) {
	gw := newTestGateway(t, models.MIngestConfig{})

	conn := dialRace(t, gw, "R1")
	readEvent(t, conn)

	if err := gw.registry.Evict("R1"); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection stayed open after its race was evicted")
	}
}
