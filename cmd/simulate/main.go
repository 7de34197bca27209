package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regatta-live/src/logger"
	"regatta-live/src/models"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8090", "gateway base URL")
	raceID := flag.String("race", "demo-race", "race id to report into")
	boats := flag.Int("boats", 8, "number of simulated boats")
	hz := flag.Float64("hz", 1, "updates per second per boat")
	key := flag.String("key", os.Getenv("TRACKER_INGEST_KEY"), "shared ingest key")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	flag.Parse()

	log := logger.NewLogger(&models.MConfig{LogFormat: "console"}, "Simulator")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sim := &simulator{
		baseURL: *baseURL,
		raceID:  *raceID,
		key:     *key,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log,
		fleet:   newFleet(*boats),
	}

	for _, b := range sim.fleet {
		if err := sim.join(ctx, b); err != nil {
			log.Critical("Join %s failed: %v", b.id, err)
		}
	}
	log.Info("Joined %d boats to %s", len(sim.fleet), sim.raceID)

	// One token per update across the whole fleet
	limiter := rate.NewLimiter(rate.Limit(*hz*float64(len(sim.fleet))), len(sim.fleet))
	sim.run(ctx, limiter)
	log.Info("Simulation finished after %d updates", sim.sent)
}

// -----------------------------------------------------------------------------
// Fleet model
// -----------------------------------------------------------------------------

type simBoat struct {
	id     string
	name   string
	lat    float64
	lon    float64
	cog    float64
	sog    float64
	turn   float64
	nation string
	at     time.Time
}

var nations = []string{"NZL", "GBR", "ITA", "USA", "FRA", "AUS", "SUI", "ESP"}

func newFleet(n int) []*simBoat {
	fleet := make([]*simBoat, n)
	for i := range fleet {
		fleet[i] = &simBoat{
			id:     fmt.Sprintf("boat-%02d", i+1),
			name:   fmt.Sprintf("Boat %d", i+1),
			lat:    -36.84 + float64(i)*0.0005,
			lon:    174.76,
			cog:    float64((i * 37) % 360),
			sog:    6 + float64(i%4),
			turn:   1.5 - float64(i%3),
			nation: nations[i%len(nations)],
			at:     time.Now(),
		}
	}
	return fleet
}

// step advances the boat to now using a flat-earth approximation.
func (b *simBoat) step(now time.Time) {
	dt := now.Sub(b.at)
	b.at = now

	const metersPerKnotSecond = 0.514444
	const metersPerDegree = 111_320.0

	b.cog = math.Mod(b.cog+b.turn*dt.Seconds()+360, 360)
	dist := b.sog * metersPerKnotSecond * dt.Seconds()
	rad := b.cog * math.Pi / 180
	b.lat += dist * math.Cos(rad) / metersPerDegree
	b.lon += dist * math.Sin(rad) / (metersPerDegree * math.Cos(b.lat*math.Pi/180))
}

// -----------------------------------------------------------------------------
// HTTP
// -----------------------------------------------------------------------------

type simulator struct {
	baseURL string
	raceID  string
	key     string
	client  *http.Client
	log     *logger.Logger
	fleet   []*simBoat
	sent    int
}

func (s *simulator) run(ctx context.Context, limiter *rate.Limiter) {
	for {
		for _, b := range s.fleet {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			now := time.Now()
			b.step(now)

			rec := models.MUpdateRecord{
				RaceID: s.raceID,
				BoatID: b.id,
				Lat:    b.lat,
				Lon:    b.lon,
				T:      now.UnixMilli(),
				SOG:    models.Float(b.sog),
				COG:    models.Float(b.cog),
			}
			if err := s.post(ctx, "/api/ingest", rec); err != nil {
				s.log.Warning("Update %s failed: %v", b.id, err)
				continue
			}
			s.sent++
		}
	}
}

func (s *simulator) join(ctx context.Context, b *simBoat) error {
	body := map[string]string{"boatId": b.id, "displayName": b.name, "nation": b.nation}
	return s.post(ctx, "/api/races/"+s.raceID+"/join", body)
}

func (s *simulator) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		req.Header.Set("X-Ingest-Key", s.key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
