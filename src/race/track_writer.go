package race

import (
	"context"
	"time"

	"regatta-live/src/interfaces"
	"regatta-live/src/logger"
	"regatta-live/src/metrics"
	"regatta-live/src/models"
)

const (
	trackBatchSize     = 128
	trackAppendTimeout = 10 * time.Second
)

// trackWriter appends accepted points to the track log in the order they were queued.
// It runs outside the channel loop so slow storage never delays a broadcast.
type trackWriter struct {
	log    interfaces.ITrackLog
	logger *logger.Logger
	queue  chan models.MTrackPoint
	done   chan struct{}
}

func newTrackWriter(log interfaces.ITrackLog, lg *logger.Logger, size int) *trackWriter {
	if size <= 0 {
		size = 1024
	}
	w := &trackWriter{
		log:    log,
		logger: lg,
		queue:  make(chan models.MTrackPoint, size),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue blocks when the queue is full.
func (w *trackWriter) enqueue(p models.MTrackPoint) {
	w.queue <- p
}

// close drains everything still queued and waits for the last append.
func (w *trackWriter) close() {
	close(w.queue)
	<-w.done
}

func (w *trackWriter) run() {
	defer close(w.done)

	for p := range w.queue {
		batch := []models.MTrackPoint{p}

	drain:
		for len(batch) < trackBatchSize {
			select {
			case next, ok := <-w.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		w.flush(batch)
	}
}

func (w *trackWriter) flush(batch []models.MTrackPoint) {
	ctx, cancel := context.WithTimeout(context.Background(), trackAppendTimeout)
	defer cancel()

	if err := w.log.AppendTrackPoints(ctx, batch); err != nil {
		metrics.TrackAppendFailures.Add(float64(len(batch)))
		w.logger.Error("Failed to append %d track points: %v", len(batch), err)
	}
}
